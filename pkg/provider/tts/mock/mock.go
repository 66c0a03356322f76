// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio and to verify which text and voice
// reached the TTS backend.
//
// Example:
//
//	p := &mock.Provider{Audio: []byte("mp3")}
//	s, _ := p.Synthesize(ctx, "hola", tts.VoiceProfile{ID: "v1"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tandembuddy/pkg/audio"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the VoiceProfile passed to Synthesize.
	Voice tts.VoiceProfile
}

// Provider is a mock implementation of tts.Provider and tts.VoiceLister.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Audio is the payload returned by every successful Synthesize call.
	Audio []byte

	// Chunks, if non-nil, is streamed chunk by chunk instead of Audio.
	Chunks [][]byte

	// StreamErr, if non-nil, is reported by the returned stream after all
	// chunks were written. Simulates a socket dropping mid-reply.
	StreamErr error

	// Errs are returned in order by successive calls. A nil entry lets that
	// call succeed.
	Errs []error

	// Err, if non-nil, is returned by every call once Errs is exhausted.
	Err error

	// Block, if non-nil, makes Synthesize wait until the channel is closed or
	// ctx is done.
	Block chan struct{}

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// ListErr is returned by ListVoices.
	ListErr error

	// --- Call records ---

	// Calls records every invocation of Synthesize in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns the configured audio.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Stream, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return nil, err
		}
	} else if p.Err != nil {
		return nil, p.Err
	}

	if p.Chunks == nil && p.StreamErr == nil {
		out := make([]byte, len(p.Audio))
		copy(out, p.Audio)
		return audio.FromBytes(out), nil
	}

	ch := make(chan []byte, len(p.Chunks))
	for _, c := range p.Chunks {
		ch <- c
	}
	close(ch)
	streamErr := p.StreamErr
	return audio.FromChunks(ch, func() error { return streamErr }), nil
}

// ListVoices returns Voices and ListErr.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ListErr != nil {
		return nil, p.ListErr
	}
	out := make([]tts.VoiceProfile, len(p.Voices))
	copy(out, p.Voices)
	return out, nil
}

// CallCount returns the number of Synthesize invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Texts returns the text of every Synthesize call in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Calls))
	for i, c := range p.Calls {
		out[i] = c.Text
	}
	return out
}
