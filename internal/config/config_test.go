package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("log_level: debug\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log_level: info\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("data_dir: /var/lib/thane-voice\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Assistant.MaxHistory != 20 {
		t.Errorf("max_history = %d, want 20", cfg.Assistant.MaxHistory)
	}
	if cfg.Plugins.StateFile != "/var/lib/thane-voice/plugins.json" {
		t.Errorf("state_file = %q, want it under data_dir", cfg.Plugins.StateFile)
	}
	if cfg.IPC.Socket != "/var/lib/thane-voice/thane-voice.sock" {
		t.Errorf("socket = %q, want it under data_dir", cfg.IPC.Socket)
	}
	if cfg.Providers.Timeout != 30*time.Second {
		t.Errorf("providers.timeout = %v, want 30s", cfg.Providers.Timeout)
	}
	if cfg.WakeWord.Phrase != "hey Thane" {
		t.Errorf("wakeword.phrase = %q, want %q", cfg.WakeWord.Phrase, "hey Thane")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("providers:\n  gemini:\n    api_key: ${THANE_VOICE_TEST_KEY}\n"), 0600)
	t.Setenv("THANE_VOICE_TEST_KEY", "secret123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Providers.Gemini.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.Providers.Gemini.APIKey, "secret123")
	}
	if !cfg.Providers.Gemini.Configured() {
		t.Error("gemini should be configured when an API key is set")
	}
}

func TestLoad_Durations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("providers:\n  timeout: 5s\naudio:\n  silence: 800ms\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Providers.Timeout != 5*time.Second {
		t.Errorf("providers.timeout = %v, want 5s", cfg.Providers.Timeout)
	}
	if cfg.Audio.Silence != 800*time.Millisecond {
		t.Errorf("audio.silence = %v, want 800ms", cfg.Audio.Silence)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "unknown log level"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "log_format"},
		{name: "bad language", mutate: func(c *Config) { c.Assistant.FallbackLanguage = "not a tag!" }, wantErr: "fallback_language"},
		{name: "unknown provider", mutate: func(c *Config) { c.Providers.Preferred = "openai" }, wantErr: "providers.preferred"},
		{name: "remote without url", mutate: func(c *Config) { c.WakeWord.Mode = "remote" }, wantErr: "wakeword.url"},
		{name: "unknown mode", mutate: func(c *Config) { c.WakeWord.Mode = "psychic" }, wantErr: "wakeword.mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestProviderNames(t *testing.T) {
	cfg := Default()
	cfg.Providers.Ollama.Model = "qwen3:4b"
	cfg.Providers.Gemini.APIKey = "k"

	got := cfg.ProviderNames()
	if len(got) != 2 || got[0] != "ollama" || got[1] != "gemini" {
		t.Errorf("ProviderNames() = %v, want [ollama gemini]", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{" debug ", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_TraceName(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace, "text")
	logger.Log(t.Context(), LevelTrace, "payload")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("log output = %q, want level=TRACE", buf.String())
	}
}
