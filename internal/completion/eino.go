package completion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"medreport/internal/logging"
	"medreport/internal/models"
)

// EinoClient sends conversations through an eino chat model.
type EinoClient struct {
	chatModel   model.BaseChatModel
	provider    string
	temperature float32
	timeout     time.Duration
	logger      *slog.Logger
}

type EinoConfig struct {
	Provider    string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// NewEinoClient builds a client for the openai, claude or gemini provider.
func NewEinoClient(ctx context.Context, cfg EinoConfig, logger *slog.Logger) (*EinoClient, error) {
	var (
		chatModel model.ToolCallingChatModel
		err       error
	)
	switch cfg.Provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
		if cerr != nil {
			return nil, fmt.Errorf("create gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		maxTokens := cfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 3000
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURL,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", cfg.Provider, err)
	}
	return NewEinoClientFromModel(cfg.Provider, chatModel, cfg.Temperature, cfg.Timeout, logger), nil
}

// NewEinoClientFromModel wraps an existing chat model.
func NewEinoClientFromModel(provider string, m model.BaseChatModel, temperature float32, timeout time.Duration, logger *slog.Logger) *EinoClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &EinoClient{
		chatModel:   m,
		provider:    provider,
		temperature: temperature,
		timeout:     timeout,
		logger:      logging.OrDiscard(logger),
	}
}

func (c *EinoClient) Complete(ctx context.Context, messages []models.Message) (string, error) {
	log := logging.FromContext(ctx, c.logger)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var opts []model.Option
	if c.temperature > 0 {
		opts = append(opts, model.WithTemperature(c.temperature))
	}
	log.Info("completion.eino.request", "provider", c.provider, "messages", len(messages))
	resp, err := c.chatModel.Generate(ctx, toSchemaMessages(messages), opts...)
	if err != nil {
		log.Error("completion.eino.error", "provider", c.provider, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	log.Info("completion.eino.response", "provider", c.provider, "chars", len(resp.Content), "elapsed_ms", time.Since(start).Milliseconds())
	return resp.Content, nil
}

func toSchemaMessages(messages []models.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		var role schema.RoleType
		switch m.Role {
		case models.RoleSystem:
			role = schema.System
		case models.RoleAssistant:
			role = schema.Assistant
		default:
			role = schema.User
		}
		out = append(out, &schema.Message{Role: role, Content: m.Content})
	}
	return out
}
