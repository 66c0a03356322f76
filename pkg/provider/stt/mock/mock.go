// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcripts and to inspect which requests
// were sent. Texts is consumed in order, one entry per call; once exhausted,
// Text is returned for every further call.
//
// Example:
//
//	p := &mock.Provider{Texts: []string{"hola", "adiós"}}
//	text, _ := p.Transcribe(ctx, stt.Request{Audio: pcm})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Req is the Request passed to Transcribe.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Texts are returned in order by successive successful calls.
	Texts []string

	// Text is returned once Texts is exhausted.
	Text string

	// Errs are returned in order by successive calls before any text is
	// consumed. A nil entry lets that call succeed.
	Errs []error

	// Err, if non-nil, is returned by every call once Errs is exhausted.
	Err error

	// Block, if non-nil, makes Transcribe wait until the channel is closed or
	// ctx is done. Used to simulate slow backends.
	Block chan struct{}

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns the next configured result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Req: req})
	block := p.Block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return "", err
		}
	} else if p.Err != nil {
		return "", p.Err
	}
	if len(p.Texts) > 0 {
		text := p.Texts[0]
		p.Texts = p.Texts[1:]
		return text, nil
	}
	return p.Text, nil
}

// CallCount returns the number of Transcribe invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
