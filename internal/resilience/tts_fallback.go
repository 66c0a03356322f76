package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/tandembuddy/pkg/audio"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// TTS backends.
//
// Failover covers starting the synthesis only. Once a backend has returned a
// stream, errors surfacing while it is written are the caller's to retry.
type TTSFallback struct {
	group   *FallbackGroup[tts.Provider]
	primary tts.Provider
}

var (
	_ tts.Provider    = (*TTSFallback)(nil)
	_ tts.VoiceLister = (*TTSFallback)(nil)
)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group:   NewFallbackGroup(primary, primaryName, cfg),
		primary: primary,
	}
}

// AddFallback registers an additional TTS provider. voice replaces the
// caller's voice when this fallback is used, since voice IDs are not portable
// between vendors. A zero voice passes the caller's profile through.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider, voice tts.VoiceProfile) {
	if voice.ID != "" {
		provider = voiceOverride{Provider: provider, voice: voice}
	}
	f.group.AddFallback(name, provider)
}

// Synthesize starts synthesis on the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Stream, error) {
	return ExecuteWithResult(ctx, f.group, func(p tts.Provider) (audio.Stream, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns the voices of the primary backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	lister, ok := f.primary.(tts.VoiceLister)
	if !ok {
		return nil, errors.New("resilience: primary TTS provider cannot list voices")
	}
	return lister.ListVoices(ctx)
}

type voiceOverride struct {
	tts.Provider
	voice tts.VoiceProfile
}

func (v voiceOverride) Synthesize(ctx context.Context, text string, _ tts.VoiceProfile) (audio.Stream, error) {
	return v.Provider.Synthesize(ctx, text, v.voice)
}
