package types

import "time"

// ConversionEvent is published on the event bus after a successful conversion.
type ConversionEvent struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	AudioFile  string    `json:"audio_file"`
	AudioURL   string    `json:"audio_url"`
	Language   string    `json:"language"`
	TextLength int       `json:"text_length"`
	CreatedAt  time.Time `json:"created_at"`
}
