package resilience

import (
	"context"

	"github.com/MrWong99/tandembuddy/pkg/provider/llm"
	"github.com/MrWong99/tandembuddy/pkg/types"
)

// LLMFallback implements [llm.Provider] with automatic failover across multiple
// LLM backends. Each backend has its own circuit breaker; when the primary fails
// or its breaker is open, the next healthy fallback is tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional LLM provider as a fallback.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// Complete sends the request to the first healthy provider and returns its
// response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Capabilities returns the smallest limits across all backends, so a request
// sized for it fits whichever backend ends up serving it.
func (f *LLMFallback) Capabilities() types.ModelCapabilities {
	var caps types.ModelCapabilities
	for i, e := range f.group.entries {
		c := e.value.Capabilities()
		if i == 0 || (c.ContextWindow > 0 && c.ContextWindow < caps.ContextWindow) {
			caps.ContextWindow = c.ContextWindow
		}
		if i == 0 || (c.MaxOutputTokens > 0 && c.MaxOutputTokens < caps.MaxOutputTokens) {
			caps.MaxOutputTokens = c.MaxOutputTokens
		}
	}
	return caps
}
