package models

import "time"

// Analysis is a persisted result of one report analysis.
type Analysis struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	MimeType    string    `json:"mime_type"`
	ModelChoice string    `json:"model_choice"`
	Medical     bool      `json:"medical"`
	Record      *Record   `json:"record"`
	CreatedAt   time.Time `json:"created_at"`
}
