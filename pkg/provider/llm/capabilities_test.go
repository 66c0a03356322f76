package llm

import "testing"

func TestCapabilitiesFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		model         string
		wantContext   int
		wantMaxOutput int
	}{
		{"gpt-4o-mini", 128_000, 16_384},
		{"GPT-4o-2024-08-06", 128_000, 16_384},
		{"gpt-4", 8_192, 4_096},
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"o1-mini", 128_000, 65_536},
		{"claude-3-opus-20240229", 200_000, 4_096},
		{"claude-sonnet-4-5", 200_000, 8_192},
		{"anthropic/claude-3-5-haiku-latest", 200_000, 8_192},
		{"models/gemini-1.5-pro", 2_097_152, 8_192},
		{"gemini-2.0-flash", 1_048_576, 8_192},
		{"llama3", 128_000, 4_096},
	}
	for _, tc := range tests {
		t.Run(tc.model, func(t *testing.T) {
			t.Parallel()
			caps := CapabilitiesFor(tc.model)
			if caps.ContextWindow != tc.wantContext {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tc.wantContext)
			}
			if caps.MaxOutputTokens != tc.wantMaxOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tc.wantMaxOutput)
			}
		})
	}
}
