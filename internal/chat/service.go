// Package chat answers conversational turns with bounded per-session history.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"medreport/internal/completion"
	"medreport/internal/logging"
	"medreport/internal/models"
	"medreport/internal/prompt"
)

const DefaultMaxTurns = 10

var ErrEmptyMessage = errors.New("message is required")

// Backend resolves a completion client for a model choice.
type Backend interface {
	For(choice string) completion.Client
}

type Service struct {
	backend  Backend
	store    Store
	maxTurns int
	logger   *slog.Logger
}

func NewService(backend Backend, store Store, maxTurns int, logger *slog.Logger) *Service {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Service{backend: backend, store: store, maxTurns: maxTurns, logger: logging.OrDiscard(logger)}
}

type Request struct {
	SessionID   string
	Message     string
	ModelChoice string
}

type Reply struct {
	SessionID string
	Text      string
}

// Respond answers one turn of a session, creating the session when
// SessionID is empty. Completion failures wrap completion.ErrUnavailable and
// leave the history untouched.
func (s *Service) Respond(ctx context.Context, req Request) (*Reply, error) {
	log := logging.FromContext(ctx, s.logger)
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		log.Warn("chat.history_load_failed", "session_id", sessionID, "error", err)
		history = nil
	}

	text, err := Respond(ctx, s.backend.For(req.ModelChoice), msg, history, s.maxTurns)
	if err != nil {
		log.Error("chat.completion_failed", "session_id", sessionID, "error", err)
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.store.Append(ctx, sessionID,
		models.Message{Role: models.RoleUser, Content: msg, CreatedAt: now},
		models.Message{Role: models.RoleAssistant, Content: text, CreatedAt: now},
	); err != nil {
		log.Warn("chat.history_save_failed", "session_id", sessionID, "error", err)
	}
	log.Info("chat.reply", "session_id", sessionID, "history", len(history), "chars", len(text))
	return &Reply{SessionID: sessionID, Text: text}, nil
}

// Reset forgets a session.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	return s.store.Clear(ctx, sessionID)
}

// Respond sends the system instruction, the last maxTurns history messages and
// the user message, and returns the reply text unmodified.
func Respond(ctx context.Context, client completion.Client, message string, history []models.Message, maxTurns int) (string, error) {
	recent := models.LastTurns(history, maxTurns)
	msgs := make([]models.Message, 0, len(recent)+2)
	msgs = append(msgs, models.Message{Role: models.RoleSystem, Content: prompt.ChatSystem})
	for _, m := range recent {
		msgs = append(msgs, models.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, models.Message{Role: models.RoleUser, Content: message})

	reply, err := client.Complete(ctx, msgs)
	if err != nil {
		if errors.Is(err, completion.ErrUnavailable) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", completion.ErrUnavailable, err)
	}
	return reply, nil
}
