package main

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/tandembuddy/internal/config"
	"github.com/MrWong99/tandembuddy/pkg/provider/llm"
	"github.com/MrWong99/tandembuddy/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/tandembuddy/pkg/provider/llm/openai"
	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
	"github.com/MrWong99/tandembuddy/pkg/provider/stt/deepgram"
	elstt "github.com/MrWong99/tandembuddy/pkg/provider/stt/elevenlabs"
	oastt "github.com/MrWong99/tandembuddy/pkg/provider/stt/openai"
	"github.com/MrWong99/tandembuddy/pkg/provider/stt/whisper"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts/coqui"
	eltts "github.com/MrWong99/tandembuddy/pkg/provider/tts/elevenlabs"
	oatts "github.com/MrWong99/tandembuddy/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai talks to the Chat Completions API directly through openai-go.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, modelOr(entry.Model, "gpt-4o-mini"), opts...)
	})

	// Every other backend goes through any-llm-go and shares the same
	// pattern: optional APIKey + optional BaseURL.
	for _, name := range anyllm.SupportedBackends {
		if name == "openai" {
			continue
		}
		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(name, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("elevenlabs", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []elstt.Option
		if entry.Model != "" {
			opts = append(opts, elstt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elstt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, elstt.WithLanguage(lang))
		}
		return elstt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.Model != "" {
			opts = append(opts, oastt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []eltts.Option
		if entry.Model != "" {
			opts = append(opts, eltts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, eltts.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, eltts.WithOutputFormat(outputFmt))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, eltts.WithAPIMode(eltts.APIMode(mode)))
		}
		return eltts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if format := optString(entry.Options, "response_format"); format != "" {
			opts = append(opts, oatts.WithResponseFormat(format))
		}
		if instr := optString(entry.Options, "instructions"); instr != "" {
			opts = append(opts, oatts.WithInstructions(instr))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := optString(entry.Options, "api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"llm", "stt", "tts"} {
		slog.Debug("registered providers", "kind", kind, "names", fmt.Sprint(reg.Names(kind)))
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

func modelOr(model, fallback string) string {
	if model == "" {
		return fallback
	}
	return model
}
