package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runArgs(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), &stdout, &stderr, args)
	return stdout.String(), err
}

func TestRun_VersionJSON(t *testing.T) {
	out, err := runArgs(t, "-o", "json", "version")
	if err != nil {
		t.Fatalf("run() error: %v", err)
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out)
	}
	for _, k := range []string{"version", "git_commit", "go_version"} {
		if _, ok := info[k]; !ok {
			t.Errorf("version JSON missing %q", k)
		}
	}
}

func TestRun_VersionText(t *testing.T) {
	out, err := runArgs(t, "version")
	if err != nil {
		t.Fatalf("run() error: %v", err)
	}
	if !strings.HasPrefix(out, "thane-voice ") {
		t.Errorf("version = %q", out)
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "bad output format", args: []string{"-o", "yaml", "version"}},
		{name: "unknown command", args: []string{"frobnicate"}},
		{name: "ask needs text", args: []string{"ask"}},
		{name: "missing explicit config", args: []string{"-c", "/nonexistent/config.yaml", "plugins"}},
		{name: "activate without server", args: []string{"activate", "--socket", "/nonexistent/thane.sock"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runArgs(t, tt.args...); err == nil {
				t.Errorf("run(%q) should fail", tt.args)
			}
		})
	}
}

func TestRun_InitNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	persona := filepath.Join(dir, "persona.md")
	if err := os.WriteFile(persona, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runArgs(t, "init", dir); err != nil {
		t.Fatalf("init error: %v", err)
	}

	for _, p := range []string{"config.yaml", "plugins/core.go", "plugins/weather.go"} {
		if _, err := os.Stat(filepath.Join(dir, p)); err != nil {
			t.Errorf("%s not installed: %v", p, err)
		}
	}
	if got, _ := os.ReadFile(persona); string(got) != "mine" {
		t.Errorf("persona.md overwritten: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "plugins", "core_test.go")); err == nil {
		t.Error("test files should not be installed")
	}
}

func TestRun_PluginsListsExamples(t *testing.T) {
	dir := t.TempDir()
	if _, err := runArgs(t, "init", dir); err != nil {
		t.Fatalf("init error: %v", err)
	}
	cfg := "data_dir: " + filepath.Join(dir, "data") + "\nplugins:\n  dir: " + filepath.Join(dir, "plugins") + "\n"
	cfgPath := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := runArgs(t, "-c", cfgPath, "-o", "json", "plugins")
	if err != nil {
		t.Fatalf("plugins error: %v", err)
	}
	var got struct {
		Functions []struct{ Name string } `json:"functions"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("plugins output is not JSON: %v\n%s", err, out)
	}
	names := map[string]bool{}
	for _, f := range got.Functions {
		names[f.Name] = true
	}
	for _, want := range []string{"core_timer", "core_reminder", "weather_current"} {
		if !names[want] {
			t.Errorf("functions = %v, want %q", names, want)
		}
	}
}
