package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingDefaultFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":7860" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Completion.Model != "llama3.1-8b" {
		t.Fatalf("unexpected model %q", cfg.Completion.Model)
	}
	if cfg.OCR.Timeout.Std() != 180*time.Second {
		t.Fatalf("unexpected ocr timeout %v", cfg.OCR.Timeout.Std())
	}
	if cfg.Chat.MaxTurns != 10 || !cfg.Analysis.GateOn() {
		t.Fatalf("unexpected chat/analysis defaults: %+v %+v", cfg.Chat, cfg.Analysis)
	}
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing explicit config")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{
		"completion": {"provider": "http", "url": "http://example.test/chat", "timeout": "45s"},
		"analysis": {"prompt_mode": "fixed", "gate_enabled": false},
		"database": {"driver": "sqlite3", "dsn": "data/app.db"},
		"ocr": {"timeout": 30}
	}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("COMPLETION_MODEL", "other-model")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Completion.Model != "other-model" {
		t.Fatalf("env override not applied: %q", cfg.Completion.Model)
	}
	if cfg.Completion.Timeout.Std() != 45*time.Second || cfg.OCR.Timeout.Std() != 30*time.Second {
		t.Fatalf("unexpected timeouts %v %v", cfg.Completion.Timeout.Std(), cfg.OCR.Timeout.Std())
	}
	if cfg.Analysis.PromptMode != "fixed" || cfg.Analysis.GateOn() {
		t.Fatalf("unexpected analysis config %+v", cfg.Analysis)
	}
	if cfg.Database.DSN != filepath.Join(dir, "data/app.db") {
		t.Fatalf("sqlite dsn not resolved relative to config: %q", cfg.Database.DSN)
	}
}

func TestValidateRejectsUnknownEnums(t *testing.T) {
	cfg := Default()
	cfg.Analysis.PromptMode = "freestyle"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected prompt mode error")
	}

	cfg = Default()
	cfg.Chat.HistoryBackend = "memcached"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected history backend error")
	}

	cfg = Default()
	cfg.Database.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}
