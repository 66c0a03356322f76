// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs, OpenAI,
// or a local Coqui server) and turns one complete reply into encoded audio.
// The result is an [audio.Stream]: HTTP backends hand back the response body,
// streaming backends hand back chunks as they arrive over a socket, and the
// caller persists either with a single WriteAllTo call.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/tandembuddy/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into audio spoken with voice. The returned
	// stream must be consumed (or at least written once) to release the
	// underlying connection.
	//
	// Returns a non-nil error if the request cannot be started or the backend
	// rejects it. Errors occurring while the audio is still streaming surface
	// from the stream's WriteAllTo.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) (audio.Stream, error)
}

// VoiceLister is implemented by providers that can enumerate their voice
// catalogue.
type VoiceLister interface {
	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
