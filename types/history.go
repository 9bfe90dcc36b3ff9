package types

import "time"

// ActionTextToSpeech is the only action recorded in history today.
const ActionTextToSpeech = "text_to_speech"

// HistoryEntry records one completed conversion for a user.
type HistoryEntry struct {
	// ID orders entries written within the same instant. It is never exposed.
	ID int64 `json:"-" db:"id"`

	Username string `json:"username" db:"username"`
	Action   string `json:"action" db:"action"`

	// Question is the optional prompt the answer responds to, "" when absent.
	Question string `json:"question" db:"question"`

	// Answer is the text that was converted to speech.
	Answer string `json:"answer" db:"answer"`

	// AudioFile is the artifact identifier, retrievable at /audio/{id}.
	AudioFile string `json:"audio_file" db:"audio_file"`

	Timestamp time.Time `json:"timestamp" db:"created_at"`
}
