package types

import "time"

// User represents an account in the system.
type User struct {
	// ID is the internal identifier of the user. It is never exposed.
	ID int64 `json:"-" db:"id"`

	// Username is the unique, immutable login name chosen by the user.
	Username string `json:"username" db:"username"`

	// PasswordHash stores the bcrypt representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
