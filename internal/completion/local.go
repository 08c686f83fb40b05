package completion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"medreport/internal/logging"
	"medreport/internal/models"
)

// DefaultStop ends local generations.
var DefaultStop = []string{"</s>", "\n\n\n"}

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	Logger *slog.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	log := logging.OrDiscard(r.Logger)
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		log.Error("exec.failed", "cmd", name, "duration_ms", time.Since(start).Milliseconds(), "error", err, "stderr", truncate(errb.String(), 8<<10))
	} else {
		log.Debug("exec.ok", "cmd", name, "duration_ms", time.Since(start).Milliseconds(), "stdout_bytes", out.Len())
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

type LocalConfig struct {
	Path            string
	Repo            string
	File            string
	HubURL          string
	Binary          string
	ContextSize     int
	Threads         int
	Temperature     float32
	MaxTokens       int
	Timeout         time.Duration
	DownloadTimeout time.Duration
}

// LocalModel runs a quantized GGUF model through the llama.cpp CLI. The model
// file is downloaded from the model hub on first use when it is missing.
type LocalModel struct {
	cfg    LocalConfig
	runner Runner
	http   *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	ready bool
}

func NewLocalModel(cfg LocalConfig, runner Runner, logger *slog.Logger) *LocalModel {
	if cfg.HubURL == "" {
		cfg.HubURL = "https://huggingface.co"
	}
	if cfg.File == "" {
		cfg.File = filepath.Base(cfg.Path)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 180 * time.Second
	}
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = 30 * time.Minute
	}
	if runner == nil {
		runner = ExecRunner{Logger: logger}
	}
	return &LocalModel{
		cfg:    cfg,
		runner: runner,
		http:   &http.Client{},
		logger: logging.OrDiscard(logger),
	}
}

// Ensure makes the model file available, downloading it if needed. Concurrent
// callers wait for a single initialization. A failed attempt is not cached.
func (m *LocalModel) Ensure(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ready {
		return nil
	}
	info, err := os.Stat(m.cfg.Path)
	switch {
	case err == nil && info.Size() > 0:
		m.ready = true
		return nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("stat model: %w", err)
	}
	if err := m.download(ctx); err != nil {
		return err
	}
	m.ready = true
	return nil
}

func (m *LocalModel) download(ctx context.Context) error {
	log := logging.FromContext(ctx, m.logger)
	ctx, cancel := context.WithTimeout(ctx, m.cfg.DownloadTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/%s/resolve/main/%s", strings.TrimRight(m.cfg.HubURL, "/"), m.cfg.Repo, m.cfg.File)
	log.Info("local_model.download.start", "url", url, "path", m.cfg.Path)
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(m.cfg.Path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("download model: non-2xx status: %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.cfg.Path), ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write model: %w", errors.Join(copyErr, closeErr))
	}
	if err := os.Rename(tmp.Name(), m.cfg.Path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("move model into place: %w", err)
	}
	log.Info("local_model.download.done", "bytes", n, "elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// Generate runs one completion and cuts the output at the first stop sequence.
func (m *LocalModel) Generate(ctx context.Context, prompt string, maxTokens int, stop []string) (string, error) {
	log := logging.FromContext(ctx, m.logger)
	if err := m.Ensure(ctx); err != nil {
		log.Warn("local_model.unavailable", "error", err)
		return "", fmt.Errorf("%w: local model: %v", ErrUnavailable, err)
	}
	if maxTokens <= 0 {
		maxTokens = m.cfg.MaxTokens
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	args := []string{
		"-m", m.cfg.Path,
		"-p", prompt,
		"-n", strconv.Itoa(maxTokens),
		"--no-display-prompt",
		"-no-cnv",
	}
	if m.cfg.ContextSize > 0 {
		args = append(args, "-c", strconv.Itoa(m.cfg.ContextSize))
	}
	if m.cfg.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(m.cfg.Threads))
	}
	if m.cfg.Temperature > 0 {
		args = append(args, "--temp", strconv.FormatFloat(float64(m.cfg.Temperature), 'f', 2, 32))
	}
	for _, seq := range stop {
		if seq != "" {
			args = append(args, "-r", seq)
		}
	}

	start := time.Now()
	stdout, _, err := m.runner.Run(ctx, m.cfg.Binary, args...)
	if err != nil {
		return "", fmt.Errorf("%w: local model run: %v", ErrUnavailable, err)
	}
	text := strings.TrimSpace(cutAtStop(string(stdout), stop))
	log.Info("local_model.response", "chars", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	return text, nil
}

func (m *LocalModel) Complete(ctx context.Context, messages []models.Message) (string, error) {
	return m.Generate(ctx, InstructPrompt(messages), m.cfg.MaxTokens, DefaultStop)
}

func cutAtStop(s string, stop []string) string {
	cut := len(s)
	for _, seq := range stop {
		if seq == "" {
			continue
		}
		if i := strings.Index(s, seq); i >= 0 && i < cut {
			cut = i
		}
	}
	return s[:cut]
}

// InstructPrompt renders messages in the [INST] chat format. System messages
// are prepended to the first user turn.
func InstructPrompt(messages []models.Message) string {
	var (
		sb     strings.Builder
		system []string
		open   bool
	)
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, msg.Content)
		case models.RoleAssistant:
			if open {
				sb.WriteString(" [/INST] ")
				open = false
			}
			sb.WriteString(msg.Content)
			sb.WriteString("</s>")
		default:
			if open {
				sb.WriteString("\n\n")
			} else {
				sb.WriteString("[INST] ")
				open = true
			}
			if len(system) > 0 {
				sb.WriteString(strings.Join(system, "\n"))
				sb.WriteString("\n\n")
				system = nil
			}
			sb.WriteString(msg.Content)
		}
	}
	if open {
		sb.WriteString(" [/INST]")
	}
	return sb.String()
}
