package completion

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"medreport/internal/logging"
	"medreport/internal/models"
)

const (
	ChoiceOnline = "online"
	ChoiceLocal  = "local"
)

// NormalizeChoice maps user input to ChoiceLocal or ChoiceOnline.
func NormalizeChoice(s string) string {
	if strings.EqualFold(strings.TrimSpace(s), ChoiceLocal) {
		return ChoiceLocal
	}
	return ChoiceOnline
}

// Router picks a backend for a model choice. Local requests fall back to the
// online backend when the local model fails.
type Router struct {
	online Client
	local  Client
	logger *slog.Logger
}

// NewRouter builds a router. local may be nil when no local model is configured.
func NewRouter(online, local Client, logger *slog.Logger) *Router {
	return &Router{online: online, local: local, logger: logging.OrDiscard(logger)}
}

func (r *Router) LocalAvailable() bool { return r.local != nil }

func (r *Router) Complete(ctx context.Context, choice string, messages []models.Message) (string, error) {
	log := logging.FromContext(ctx, r.logger)
	if NormalizeChoice(choice) == ChoiceLocal && r.local != nil {
		text, err := r.local.Complete(ctx, messages)
		if err == nil {
			return text, nil
		}
		log.Warn("completion.local_fallback", "error", err)
	}
	if r.online == nil {
		return "", errors.Join(ErrUnavailable, errors.New("no online backend configured"))
	}
	return r.online.Complete(ctx, messages)
}

// For returns a Client bound to choice.
func (r *Router) For(choice string) Client {
	return ClientFunc(func(ctx context.Context, messages []models.Message) (string, error) {
		return r.Complete(ctx, choice, messages)
	})
}
