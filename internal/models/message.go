package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one conversational turn as sent to a completion backend.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// LastTurns returns the trailing n messages of history. The returned slice is a copy.
func LastTurns(history []Message, n int) []Message {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}
