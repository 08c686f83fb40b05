package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"medreport/internal/logging"
	"medreport/internal/models"
)

// HTTPClient posts {model, messages} to a chat endpoint and reads the reply
// from whichever of the known response shapes is present.
type HTTPClient struct {
	url    string
	model  string
	apiKey string
	client *http.Client
	logger *slog.Logger
}

type HTTPConfig struct {
	URL     string
	Model   string
	APIKey  string
	Timeout time.Duration
}

func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &HTTPClient{
		url:    cfg.URL,
		model:  cfg.Model,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logging.OrDiscard(logger),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

func (c *HTTPClient) Complete(ctx context.Context, messages []models.Message) (string, error) {
	log := logging.FromContext(ctx, c.logger)
	start := time.Now()

	payload := chatRequest{Model: c.model, Messages: make([]chatMessage, 0, len(messages))}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	bs, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(bs))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Info("completion.http.request", "url", c.url, "model", c.model, "messages", len(messages), "content_length", len(bs))
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("completion.http.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	log.Info("completion.http.response",
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("%w: non-2xx status: %d", ErrUnavailable, resp.StatusCode)
	}
	return ReplyText(raw), nil
}

// ReplyText picks the reply out of a chat response body. It tries
// choices[0].message.content, then "response", then "content". Bodies with
// none of these are returned whole.
func ReplyText(body []byte) string {
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	doc := gjson.ParseBytes(body)
	if choices := doc.Get("choices"); choices.IsArray() && len(choices.Array()) > 0 {
		return choices.Get("0.message.content").String()
	}
	if r := doc.Get("response"); r.Exists() {
		return r.String()
	}
	if r := doc.Get("content"); r.Exists() {
		return r.String()
	}
	return doc.Raw
}
