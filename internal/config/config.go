package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server     ServerConfig     `json:"server"`
	OCR        OCRConfig        `json:"ocr"`
	Completion CompletionConfig `json:"completion"`
	LocalModel LocalModelConfig `json:"local_model"`
	Analysis   AnalysisConfig   `json:"analysis"`
	Chat       ChatConfig       `json:"chat"`
	Redis      RedisConfig      `json:"redis"`
	Database   DatabaseConfig   `json:"database"`
	Log        LogConfig        `json:"log"`
}

type ServerConfig struct {
	Address               string   `json:"address"`
	MaxUploadMB           int      `json:"max_upload_mb"`
	MaxConcurrentAnalyses int      `json:"max_concurrent_analyses"`
	APIKeys               []string `json:"api_keys"`
}

type OCRConfig struct {
	URL     string   `json:"url"`
	Timeout Duration `json:"timeout"`
}

type CompletionConfig struct {
	Provider    string   `json:"provider"`
	URL         string   `json:"url"`
	Model       string   `json:"model"`
	APIKey      string   `json:"api_key"`
	Timeout     Duration `json:"timeout"`
	Temperature float32  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
}

type LocalModelConfig struct {
	Enabled         bool     `json:"enabled"`
	Path            string   `json:"path"`
	Repo            string   `json:"repo"`
	File            string   `json:"file"`
	Binary          string   `json:"binary"`
	ContextSize     int      `json:"context_size"`
	Threads         int      `json:"threads"`
	Temperature     float32  `json:"temperature"`
	MaxTokens       int      `json:"max_tokens"`
	Timeout         Duration `json:"timeout"`
	DownloadTimeout Duration `json:"download_timeout"`
}

type AnalysisConfig struct {
	PromptMode  string `json:"prompt_mode"`
	ExcerptCap  int    `json:"excerpt_cap"`
	GateEnabled *bool  `json:"gate_enabled"`
	GateCap     int    `json:"gate_cap"`
}

// GateOn reports whether the domain gate runs before analysis. Defaults to true.
func (a AnalysisConfig) GateOn() bool {
	return a.GateEnabled == nil || *a.GateEnabled
}

type ChatConfig struct {
	HistoryBackend string   `json:"history_backend"`
	MaxTurns       int      `json:"max_turns"`
	SessionTTL     Duration `json:"session_ttl"`
	MaxSessions    int      `json:"max_sessions"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type LogConfig struct {
	Env   string `json:"env"`
	Level string `json:"level"`
}

// Duration accepts either a Go duration string ("90s") or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or number of seconds")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a configuration with every field set to its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads configuration from the provided path (defaults to config.json),
// applies defaults and environment overrides, and validates the result.
// A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	var cfg Config
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if cfg.Database.Driver == "sqlite3" && cfg.Database.DSN != "" && !isSpecialSQLiteDSN(cfg.Database.DSN) && !filepath.IsAbs(cfg.Database.DSN) {
			cfg.Database.DSN = filepath.Join(filepath.Dir(absPath), cfg.Database.DSN)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isSpecialSQLiteDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:")
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":7860"
	}
	if c.Server.MaxUploadMB == 0 {
		c.Server.MaxUploadMB = 20
	}
	if c.Server.MaxConcurrentAnalyses == 0 {
		c.Server.MaxConcurrentAnalyses = 8
	}
	if c.OCR.URL == "" {
		c.OCR.URL = "http://ocr.collegebuzz.in/api/ocr"
	}
	if c.OCR.Timeout == 0 {
		c.OCR.Timeout = Duration(180 * time.Second)
	}
	if c.Completion.Provider == "" {
		c.Completion.Provider = "http"
	}
	if c.Completion.URL == "" && c.Completion.Provider == "http" {
		c.Completion.URL = "http://ai.collegebuzz.in/cerebras/chat"
	}
	if c.Completion.Model == "" {
		c.Completion.Model = "llama3.1-8b"
	}
	if c.Completion.Timeout == 0 {
		c.Completion.Timeout = Duration(120 * time.Second)
	}
	if c.LocalModel.Path == "" {
		c.LocalModel.Path = "models/medical_mistral.gguf"
	}
	if c.LocalModel.Repo == "" {
		c.LocalModel.Repo = "DrGPT2025/dhruva"
	}
	if c.LocalModel.File == "" {
		c.LocalModel.File = filepath.Base(c.LocalModel.Path)
	}
	if c.LocalModel.Binary == "" {
		c.LocalModel.Binary = "llama-cli"
	}
	if c.LocalModel.ContextSize == 0 {
		c.LocalModel.ContextSize = 2048
	}
	if c.LocalModel.Threads == 0 {
		c.LocalModel.Threads = 4
	}
	if c.LocalModel.Temperature == 0 {
		c.LocalModel.Temperature = 0.7
	}
	if c.LocalModel.MaxTokens == 0 {
		c.LocalModel.MaxTokens = 1024
	}
	if c.LocalModel.Timeout == 0 {
		c.LocalModel.Timeout = Duration(180 * time.Second)
	}
	if c.LocalModel.DownloadTimeout == 0 {
		c.LocalModel.DownloadTimeout = Duration(30 * time.Minute)
	}
	if c.Analysis.PromptMode == "" {
		c.Analysis.PromptMode = "dynamic"
	}
	if c.Analysis.ExcerptCap == 0 {
		c.Analysis.ExcerptCap = 2500
	}
	if c.Analysis.GateCap == 0 {
		c.Analysis.GateCap = 2000
	}
	if c.Chat.HistoryBackend == "" {
		c.Chat.HistoryBackend = "memory"
	}
	if c.Chat.MaxTurns == 0 {
		c.Chat.MaxTurns = 10
	}
	if c.Chat.SessionTTL == 0 {
		c.Chat.SessionTTL = Duration(30 * time.Minute)
	}
	if c.Chat.MaxSessions == 0 {
		c.Chat.MaxSessions = 1000
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "127.0.0.1"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Log.Env == "" {
		c.Log.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnv() {
	c.Server.Address = getEnv("MEDREPORT_ADDRESS", c.Server.Address)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Address = ":" + port
	}
	c.Server.MaxConcurrentAnalyses = getEnvAsInt("MEDREPORT_MAX_CONCURRENT_ANALYSES", c.Server.MaxConcurrentAnalyses)
	if keys := os.Getenv("MEDREPORT_API_KEYS"); keys != "" {
		c.Server.APIKeys = splitList(keys)
	}
	c.OCR.URL = getEnv("OCR_API_URL", c.OCR.URL)
	c.OCR.Timeout = Duration(getEnvAsDuration("OCR_TIMEOUT", c.OCR.Timeout.Std()))
	c.Completion.Provider = getEnv("COMPLETION_PROVIDER", c.Completion.Provider)
	c.Completion.URL = getEnv("CHAT_URL", c.Completion.URL)
	c.Completion.Model = getEnv("COMPLETION_MODEL", c.Completion.Model)
	c.Completion.APIKey = getEnv("COMPLETION_API_KEY", c.Completion.APIKey)
	c.Completion.Timeout = Duration(getEnvAsDuration("COMPLETION_TIMEOUT", c.Completion.Timeout.Std()))
	c.LocalModel.Enabled = getEnvAsBool("LOCAL_MODEL_ENABLED", c.LocalModel.Enabled)
	c.LocalModel.Path = getEnv("LOCAL_MODEL_PATH", c.LocalModel.Path)
	c.LocalModel.Binary = getEnv("LOCAL_MODEL_BINARY", c.LocalModel.Binary)
	c.Analysis.PromptMode = getEnv("PROMPT_MODE", c.Analysis.PromptMode)
	if v := os.Getenv("DOMAIN_GATE_ENABLED"); v != "" {
		on := getEnvAsBool("DOMAIN_GATE_ENABLED", true)
		c.Analysis.GateEnabled = &on
	}
	c.Chat.HistoryBackend = getEnv("CHAT_HISTORY_BACKEND", c.Chat.HistoryBackend)
	c.Redis.Host = getEnv("REDIS_HOST", c.Redis.Host)
	c.Redis.Port = getEnvAsInt("REDIS_PORT", c.Redis.Port)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Log.Env = getEnv("APP_ENV", c.Log.Env)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate checks enumerations and limits.
func (c *Config) Validate() error {
	switch c.Analysis.PromptMode {
	case "fixed", "dynamic":
	default:
		return fmt.Errorf("invalid analysis.prompt_mode %q (want fixed or dynamic)", c.Analysis.PromptMode)
	}
	switch c.Completion.Provider {
	case "http", "openai", "claude", "gemini":
	default:
		return fmt.Errorf("invalid completion.provider %q", c.Completion.Provider)
	}
	if c.Completion.Provider == "http" && c.Completion.URL == "" {
		return errors.New("completion.url must be configured for the http provider")
	}
	switch c.Chat.HistoryBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid chat.history_backend %q", c.Chat.HistoryBackend)
	}
	switch c.Database.Driver {
	case "", "sqlite3", "mysql", "pgx":
	default:
		return fmt.Errorf("invalid database.driver %q", c.Database.Driver)
	}
	if c.Database.Driver != "" && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn must be configured for driver %s", c.Database.Driver)
	}
	if c.Analysis.ExcerptCap <= 0 || c.Analysis.GateCap <= 0 {
		return errors.New("analysis caps must be positive")
	}
	if c.Chat.MaxTurns <= 0 || c.Chat.MaxSessions <= 0 {
		return errors.New("chat limits must be positive")
	}
	if c.Server.MaxUploadMB <= 0 || c.Server.MaxConcurrentAnalyses <= 0 {
		return errors.New("server limits must be positive")
	}
	return nil
}

// MaxUploadBytes returns the upload limit in bytes.
func (s ServerConfig) MaxUploadBytes() int64 {
	return int64(s.MaxUploadMB) << 20
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
