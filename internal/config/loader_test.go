package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/tandembuddy/internal/config"
)

const minimalProviders = `
providers:
  llm: {name: ollama}
  stt: {name: whisper}
  tts: {name: coqui}
`

func TestValidate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		yaml      string
		wantField string
	}{
		{
			name:      "invalid log level",
			yaml:      minimalProviders + "server: {log_level: bananas}\n",
			wantField: "server.log_level",
		},
		{
			name:      "missing llm provider",
			yaml:      "providers: {stt: {name: whisper}, tts: {name: coqui}}\n",
			wantField: "providers.llm.name",
		},
		{
			name:      "missing openai credential",
			yaml:      "providers: {llm: {name: openai}, stt: {name: whisper}, tts: {name: coqui}}\n",
			wantField: "providers.llm.api_key",
		},
		{
			name:      "elevenlabs without voice",
			yaml:      "providers: {llm: {name: ollama}, stt: {name: whisper}, tts: {name: elevenlabs, api_key: k}}\n",
			wantField: "speech.voice_id",
		},
		{
			name:      "fallback without credential",
			yaml:      minimalProviders[:len(minimalProviders)-1] + "\n  fallbacks: {stt: [{name: deepgram}]}\n",
			wantField: "providers.fallbacks.stt[0].api_key",
		},
		{
			name:      "temperature out of range",
			yaml:      minimalProviders + "partner: {temperature: 3.5}\n",
			wantField: "partner.temperature",
		},
		{
			name:      "invalid busy policy",
			yaml:      minimalProviders + "session: {busy_policy: drop}\n",
			wantField: "session.busy_policy",
		},
		{
			name:      "audio format with dot",
			yaml:      minimalProviders + "session: {audio_format: .mp3}\n",
			wantField: "session.audio_format",
		},
		{
			name:      "sample ratio above one",
			yaml:      minimalProviders + "telemetry: {sample_ratio: 1.5}\n",
			wantField: "telemetry.sample_ratio",
		},
		{
			name:      "tls missing key",
			yaml:      minimalProviders + "server: {tls: {cert_file: c.pem}}\n",
			wantField: "server.tls",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml), noEnv)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var cerr *config.ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if !strings.Contains(err.Error(), tc.wantField) {
				t.Errorf("err = %q, want field %s", err, tc.wantField)
			}
		})
	}
}

func TestValidate_BaseURLWaivesCredential(t *testing.T) {
	t.Parallel()
	mustLoad(t, `
providers:
  llm: {name: openai, base_url: "http://localhost:11434/v1"}
  stt: {name: whisper}
  tts: {name: coqui}
`, noEnv)
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(`
server: {log_level: loud}
session: {busy_policy: drop}
`), noEnv)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "session.busy_policy", "providers.llm.name", "providers.stt.name", "providers.tts.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %s: %v", want, err)
		}
	}
}

func TestConfigError_Message(t *testing.T) {
	t.Parallel()
	err := &config.ConfigError{Field: "providers.llm.api_key", Reason: "missing credential"}
	if got, want := err.Error(), "config: providers.llm.api_key: missing credential"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "stt", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}
