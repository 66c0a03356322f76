package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrWong99/tandembuddy/internal/config"
	"github.com/MrWong99/tandembuddy/internal/observe"
	"github.com/MrWong99/tandembuddy/internal/resilience"
	"github.com/MrWong99/tandembuddy/pkg/provider/llm"
	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts"
)

// Providers holds one ready-to-use provider per pipeline stage. Each value is
// a fallback group over the configured primary and its fallbacks, with a
// circuit breaker per backend.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// BuildProviders instantiates every provider named in cfg through reg and
// wraps each kind in a fallback group. Backend calls and breaker transitions
// are recorded on m.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	pc := cfg.Providers

	llmPrimary, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, err
	}
	llmGroup := resilience.NewLLMFallback(llmPrimary, entryLabel(pc.LLM), fallbackConfig(pc.CircuitBreaker, "llm", m))
	for _, e := range pc.Fallbacks.LLM {
		p, err := reg.CreateLLM(e)
		if err != nil {
			return nil, fmt.Errorf("app: llm fallback: %w", err)
		}
		llmGroup.AddFallback(entryLabel(e), p)
	}

	sttPrimary, err := reg.CreateSTT(pc.STT)
	if err != nil {
		return nil, err
	}
	sttGroup := resilience.NewSTTFallback(sttPrimary, entryLabel(pc.STT), fallbackConfig(pc.CircuitBreaker, "stt", m))
	for _, e := range pc.Fallbacks.STT {
		p, err := reg.CreateSTT(e)
		if err != nil {
			return nil, fmt.Errorf("app: stt fallback: %w", err)
		}
		sttGroup.AddFallback(entryLabel(e), p)
	}

	ttsPrimary, err := reg.CreateTTS(pc.TTS)
	if err != nil {
		return nil, err
	}
	ttsGroup := resilience.NewTTSFallback(ttsPrimary, entryLabel(pc.TTS), fallbackConfig(pc.CircuitBreaker, "tts", m))
	for _, e := range pc.Fallbacks.TTS {
		p, err := reg.CreateTTS(e)
		if err != nil {
			return nil, fmt.Errorf("app: tts fallback: %w", err)
		}
		ttsGroup.AddFallback(entryLabel(e), p, tts.VoiceProfile{ID: e.Voice, Provider: e.Name})
	}

	slog.Info("providers ready",
		"llm", entryLabel(pc.LLM), "llm_fallbacks", len(pc.Fallbacks.LLM),
		"stt", entryLabel(pc.STT), "stt_fallbacks", len(pc.Fallbacks.STT),
		"tts", entryLabel(pc.TTS), "tts_fallbacks", len(pc.Fallbacks.TTS),
	)
	return &Providers{LLM: llmGroup, STT: sttGroup, TTS: ttsGroup}, nil
}

// entryLabel names a backend for breakers, logs and metrics.
func entryLabel(e config.ProviderEntry) string {
	if e.Model == "" {
		return e.Name
	}
	return e.Name + "/" + e.Model
}

func fallbackConfig(cb config.CircuitBreakerConfig, kind string, m *observe.Metrics) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
			HalfOpenMax:  cb.HalfOpenMax,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "kind", kind, "provider", name, "from", from, "to", to)
				m.RecordCircuitTransition(context.Background(), kind+":"+name, to.String())
			},
		},
		OnAttempt: func(provider string, err error) {
			ctx := context.Background()
			if err != nil {
				m.RecordProviderRequest(ctx, provider, kind, "error")
				m.RecordProviderError(ctx, provider, kind)
				return
			}
			m.RecordProviderRequest(ctx, provider, kind, "ok")
		},
	}
}
