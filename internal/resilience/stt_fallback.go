package resilience

import (
	"context"

	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe sends the recording to the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	return ExecuteWithResult(ctx, f.group, func(p stt.Provider) (string, error) {
		return p.Transcribe(ctx, req)
	})
}
