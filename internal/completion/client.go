// Package completion talks to language-model backends.
package completion

import (
	"context"
	"errors"

	"medreport/internal/models"
)

// ErrUnavailable means no backend produced a reply (transport error, timeout
// or non-2xx status).
var ErrUnavailable = errors.New("completion service unavailable")

// Client returns the raw reply text for a conversation.
type Client interface {
	Complete(ctx context.Context, messages []models.Message) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, messages []models.Message) (string, error)

func (f ClientFunc) Complete(ctx context.Context, messages []models.Message) (string, error) {
	return f(ctx, messages)
}

// Prompt sends a single user message.
func Prompt(ctx context.Context, c Client, prompt string) (string, error) {
	return c.Complete(ctx, []models.Message{{Role: models.RoleUser, Content: prompt}})
}
