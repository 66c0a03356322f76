package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/tandembuddy/internal/config"
)

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	for kind, names := range config.ValidProviderNames {
		registered := reg.Names(kind)
		for _, name := range names {
			found := false
			for _, r := range registered {
				if r == name {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("%s provider %q is accepted by validation but not registered", kind, name)
			}
		}
	}
}

func TestProviderFactories(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "whisper", BaseURL: "http://localhost:8080"}); err != nil {
		t.Errorf("whisper: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{
		Name: "elevenlabs", APIKey: "key", Options: map[string]any{"api_mode": "websocket"},
	}); err != nil {
		t.Errorf("elevenlabs websocket: %v", err)
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{
		Name: "coqui", BaseURL: "http://localhost:5002", Options: map[string]any{"api_mode": "bogus"},
	}); err == nil {
		t.Error("coqui accepted an unknown api_mode")
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "openai", APIKey: "sk-test"}); err != nil {
		t.Errorf("openai llm: %v", err)
	}
}

func TestOptString(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"s": "v", "n": 3}
	if optString(opts, "s") != "v" || optString(opts, "n") != "" || optString(nil, "s") != "" {
		t.Error("unexpected optString result")
	}
}

func TestRootCmd_MissingConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cmd := newRootCmd()
	cmd.SetArgs([]string{"voices",
		"--config", filepath.Join(dir, "missing.yaml"),
		"--env-file", filepath.Join(dir, "missing.env"),
	})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestTurnCmd_RequiresAudio(t *testing.T) {
	t.Parallel()
	cmd := newRootCmd()
	cmd.SetArgs([]string{"turn", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Error("expected error without --audio")
	}
}

func TestCopyReply_NoAudio(t *testing.T) {
	t.Parallel()
	dst := filepath.Join(t.TempDir(), "out.mp3")
	if err := copyReply(nil, dst); err == nil {
		t.Error("expected error for empty history")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("output created despite error")
	}
}
