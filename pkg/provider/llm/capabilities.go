package llm

import (
	"strings"

	"github.com/MrWong99/tandembuddy/pkg/types"
)

// defaultCapabilities apply to models missing from knownModels.
var defaultCapabilities = types.ModelCapabilities{
	ContextWindow:   128_000,
	MaxOutputTokens: 4_096,
}

// knownModels is matched in order against the lower-cased model name, so more
// specific prefixes come first.
var knownModels = []struct {
	match string
	caps  types.ModelCapabilities
}{
	{"gpt-4o-mini", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}},
	{"gpt-4o", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 16_384}},
	{"gpt-4.1", types.ModelCapabilities{ContextWindow: 1_047_576, MaxOutputTokens: 32_768}},
	{"gpt-4-turbo", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}},
	{"gpt-4", types.ModelCapabilities{ContextWindow: 8_192, MaxOutputTokens: 4_096}},
	{"gpt-3.5-turbo", types.ModelCapabilities{ContextWindow: 16_385, MaxOutputTokens: 4_096}},
	{"o1-mini", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 65_536}},
	{"o1", types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}},
	{"o3", types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 100_000}},
	{"claude-3-opus", types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 4_096}},
	{"claude", types.ModelCapabilities{ContextWindow: 200_000, MaxOutputTokens: 8_192}},
	{"gemini-1.5-pro", types.ModelCapabilities{ContextWindow: 2_097_152, MaxOutputTokens: 8_192}},
	{"gemini-1.5-flash", types.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"gemini-2", types.ModelCapabilities{ContextWindow: 1_048_576, MaxOutputTokens: 8_192}},
	{"gemini", types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 8_192}},
}

// CapabilitiesFor returns ModelCapabilities for a model name. Matching is
// case-insensitive and ignores a leading vendor path such as "models/" or
// "anthropic/". Unknown models receive conservative defaults.
func CapabilitiesFor(model string) types.ModelCapabilities {
	lower := strings.ToLower(model)
	lower = lower[strings.LastIndex(lower, "/")+1:]
	for _, km := range knownModels {
		if strings.HasPrefix(lower, km.match) {
			return km.caps
		}
	}
	return defaultCapabilities
}
