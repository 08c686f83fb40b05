package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"medreport/internal/logging"
)

// OCR converts document bytes to plain text.
type OCR interface {
	Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error)
}

// OCRClient posts files to the remote OCR service.
type OCRClient struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func NewOCRClient(url string, timeout time.Duration, logger *slog.Logger) *OCRClient {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &OCRClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logging.OrDiscard(logger),
	}
}

type ocrResponse struct {
	Text           string          `json:"text"`
	FileType       string          `json:"fileType"`
	ProcessingTime json.RawMessage `json:"processingTime"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CollapseWhitespace joins all whitespace-separated tokens with single spaces.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// Extract uploads data as multipart field "file". Transport errors and
// non-2xx responses are returned as errors; callers treat them as empty text.
func (c *OCRClient) Extract(ctx context.Context, filename, mimeType string, data []byte) (string, error) {
	log := logging.FromContext(ctx, c.logger)
	start := time.Now()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write form part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	log.Info("ocr.request", "url", c.url, "filename", filename, "mime", mimeType, "bytes", len(data))
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("ocr.send_error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read ocr response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		log.Warn("ocr.non_2xx", "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())
		return "", fmt.Errorf("ocr non-2xx status: %d", resp.StatusCode)
	}

	var parsed ocrResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		log.Warn("ocr.decode_error", "error", err)
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	text := CollapseWhitespace(parsed.Text)
	log.Info("ocr.response",
		"status", resp.StatusCode,
		"chars", len(text),
		"file_type", parsed.FileType,
		"processing_time", string(parsed.ProcessingTime),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
