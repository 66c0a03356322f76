package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LookupFunc resolves an environment variable. It has the signature of
// [os.LookupEnv] so callers can pass that directly; tests pass a map lookup.
type LookupFunc func(key string) (string, bool)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"elevenlabs", "openai", "whisper", "deepgram"},
	"tts": {"elevenlabs", "openai", "coqui"},
}

// apiKeyEnv maps provider names to the environment variable that supplies
// their credential when the config leaves api_key empty.
var apiKeyEnv = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
	"deepgram":   "DEEPGRAM_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"mistral":    "MISTRAL_API_KEY",
	"groq":       "GROQ_API_KEY",
}

// Environment variables that fill non-credential fields.
const (
	EnvVoiceID     = "ELEVENLABS_VOICE_ID"
	EnvPostgresDSN = "TANDEMBUDDY_POSTGRES_DSN"
)

// ConfigError reports a missing or invalid setting that prevents start-up.
// It is never worth retrying.
type ConfigError struct {
	// Field is the dotted YAML path of the offending setting.
	Field string
	// Reason describes what is wrong with it.
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. env may be nil.
func Load(path string, env LookupFunc) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, env)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references,
// overlays well-known environment variables onto empty fields, applies
// defaults and validates the result. env may be nil, in which case no
// environment is consulted and every ${VAR} expands to the empty string.
func LoadFromReader(r io.Reader, env LookupFunc) (*Config, error) {
	if env == nil {
		env = func(string) (string, bool) { return "", false }
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		v, _ := env(key)
		return v
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	overlayEnv(cfg, env)
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayEnv fills empty credentials and the other well-known settings from env.
func overlayEnv(cfg *Config, env LookupFunc) {
	fill := func(e *ProviderEntry) {
		if e.APIKey != "" {
			return
		}
		if name, ok := apiKeyEnv[e.Name]; ok {
			if v, ok := env(name); ok {
				e.APIKey = v
			}
		}
	}
	fill(&cfg.Providers.LLM)
	fill(&cfg.Providers.STT)
	fill(&cfg.Providers.TTS)
	for _, list := range [][]ProviderEntry{cfg.Providers.Fallbacks.LLM, cfg.Providers.Fallbacks.STT, cfg.Providers.Fallbacks.TTS} {
		for i := range list {
			fill(&list[i])
		}
	}

	if cfg.Speech.VoiceID == "" {
		if v, ok := env(EnvVoiceID); ok {
			cfg.Speech.VoiceID = v
		}
	}
	if cfg.Archive.PostgresDSN == "" {
		if v, ok := env(EnvPostgresDSN); ok {
			cfg.Archive.PostgresDSN = v
		}
	}
}

// ApplyDefaults fills zero-valued settings with their defaults.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, ":8080")
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Partner.TargetLanguage, "Spanish")
	setDefault(&cfg.Partner.Level, "B1 Intermediate")
	setDefault(&cfg.Speech.Language, "es")
	setDefault(&cfg.Speech.InputMIMEType, "audio/mpeg")
	setDefault(&cfg.Session.AudioDir, filepath.Join(os.TempDir(), "tandembuddy"))
	setDefault(&cfg.Session.AudioFormat, "mp3")
	setDefault(&cfg.Session.CallTimeout, 30*time.Second)
	setDefault(&cfg.Session.MaxAttempts, 3)
	setDefault(&cfg.Session.RetryBackoff, 500*time.Millisecond)
	setDefault(&cfg.Session.BusyPolicy, BusyQueue)
	setDefault(&cfg.Telemetry.ServiceName, "tandembuddy")
}

func setDefault[T comparable](field *T, v T) {
	var zero T
	if *field == zero {
		*field = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found; each
// failure is a [*ConfigError].
func Validate(cfg *Config) error {
	var errs []error
	bad := func(field, format string, args ...any) {
		errs = append(errs, &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		bad("server.log_level", "%q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel)
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		bad("server.tls", "cert_file and key_file are both required")
	}

	validateEntry := func(kind, field string, e ProviderEntry, required bool) {
		if e.Name == "" {
			if required {
				bad(field+".name", "a %s provider is required", kind)
			}
			return
		}
		validateProviderName(kind, e.Name)
		if env, keyed := apiKeyEnv[e.Name]; keyed && e.APIKey == "" && e.BaseURL == "" {
			bad(field+".api_key", "missing credential; set it in the file or via %s", env)
		}
	}
	validateEntry("llm", "providers.llm", cfg.Providers.LLM, true)
	validateEntry("stt", "providers.stt", cfg.Providers.STT, true)
	validateEntry("tts", "providers.tts", cfg.Providers.TTS, true)
	for i, e := range cfg.Providers.Fallbacks.LLM {
		validateEntry("llm", fmt.Sprintf("providers.fallbacks.llm[%d]", i), e, true)
	}
	for i, e := range cfg.Providers.Fallbacks.STT {
		validateEntry("stt", fmt.Sprintf("providers.fallbacks.stt[%d]", i), e, true)
	}
	for i, e := range cfg.Providers.Fallbacks.TTS {
		validateEntry("tts", fmt.Sprintf("providers.fallbacks.tts[%d]", i), e, true)
	}

	if cfg.Providers.TTS.Name == "elevenlabs" && cfg.Speech.VoiceID == "" {
		bad("speech.voice_id", "required for elevenlabs; set it in the file or via %s", EnvVoiceID)
	}

	if t := cfg.Partner.Temperature; t != nil && (*t < 0 || *t > 2) {
		bad("partner.temperature", "%.2f is out of range [0, 2]", *t)
	}
	if cfg.Partner.MaxTokens < 0 {
		bad("partner.max_tokens", "must not be negative")
	}
	if cfg.Partner.MaxHistory < 0 {
		bad("partner.max_history", "must not be negative")
	}

	if cfg.Session.MaxAttempts < 1 {
		bad("session.max_attempts", "must be at least 1")
	}
	if cfg.Session.CallTimeout < 0 {
		bad("session.call_timeout", "must not be negative")
	}
	if cfg.Session.RetryBackoff < 0 {
		bad("session.retry_backoff", "must not be negative")
	}
	if cfg.Session.BusyPolicy != "" && !cfg.Session.BusyPolicy.IsValid() {
		bad("session.busy_policy", "%q is invalid; valid values: queue, reject", cfg.Session.BusyPolicy)
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		bad("telemetry.sample_ratio", "%.2f is out of range [0, 1]", r)
	}
	if strings.ContainsAny(cfg.Session.AudioFormat, `/\.`) {
		bad("session.audio_format", "%q must be a bare extension like mp3", cfg.Session.AudioFormat)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
