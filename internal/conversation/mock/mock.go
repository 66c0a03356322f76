// Package mock provides in-memory collaborators for conversation sessions:
// a speech service, a dialogue engine and an audio store.
//
// All mocks are safe for concurrent use, record method calls, and expose
// exported fields for configuring return values.
package mock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/tandembuddy/pkg/audio"
)

// ─── Speech ──────────────────────────────────────────────────────────────────

// Speech is a mock speech service.
type Speech struct {
	mu sync.Mutex

	// Transcript is returned by SpeechToText for non-empty input.
	Transcript string

	// TranscribeErrs are returned in order by successive SpeechToText calls.
	// A nil entry lets that call succeed. TranscribeErr is used afterwards.
	TranscribeErrs []error
	TranscribeErr  error

	// Audio is the payload of every synthesized stream.
	Audio []byte

	// SynthesizeErrs and SynthesizeErr mirror the transcription fields.
	SynthesizeErrs []error
	SynthesizeErr  error

	// Block, when non-nil, stalls SpeechToText until it is closed or the
	// context ends.
	Block chan struct{}

	Recordings [][]byte
	Texts      []string
}

// SpeechToText records the call and returns Transcript.
func (s *Speech) SpeechToText(ctx context.Context, recording []byte) (string, error) {
	s.mu.Lock()
	s.Recordings = append(s.Recordings, bytes.Clone(recording))
	block := s.Block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := next(&s.TranscribeErrs, s.TranscribeErr); err != nil {
		return "", err
	}
	if len(recording) == 0 {
		return "", nil
	}
	return s.Transcript, nil
}

// TextToSpeech records the call and returns a stream over Audio.
func (s *Speech) TextToSpeech(_ context.Context, text string) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Texts = append(s.Texts, text)
	if err := next(&s.SynthesizeErrs, s.SynthesizeErr); err != nil {
		return nil, err
	}
	return audio.FromBytes(bytes.Clone(s.Audio)), nil
}

// TranscribeCount returns the number of SpeechToText calls.
func (s *Speech) TranscribeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Recordings)
}

// SynthesizeCount returns the number of TextToSpeech calls.
func (s *Speech) SynthesizeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Texts)
}

// ─── Engine ──────────────────────────────────────────────────────────────────

// Engine is a mock dialogue engine that also implements Revert.
type Engine struct {
	mu sync.Mutex

	// Reply is returned by Respond.
	Reply string

	// RespondErr is returned by Respond when non-nil.
	RespondErr error

	// Feedback and FeedbackErr are returned by DetailedFeedback.
	Feedback    string
	FeedbackErr error

	Inputs        []string
	ResetCalls    int
	RevertCalls   int
	FeedbackCalls int
}

// Respond records text and returns Reply.
func (e *Engine) Respond(_ context.Context, text string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Inputs = append(e.Inputs, text)
	if e.RespondErr != nil {
		return "", e.RespondErr
	}
	return e.Reply, nil
}

// Reset records the call.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ResetCalls++
}

// Revert records the call.
func (e *Engine) Revert() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.RevertCalls++
}

// DetailedFeedback records the call and returns Feedback.
func (e *Engine) DetailedFeedback(context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.FeedbackCalls++
	if e.FeedbackErr != nil {
		return "", e.FeedbackErr
	}
	return e.Feedback, nil
}

// RespondCount returns the number of Respond calls.
func (e *Engine) RespondCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Inputs)
}

// Counts returns the Reset, Revert and DetailedFeedback call counts.
func (e *Engine) Counts() (reset, revert, feedback int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ResetCalls, e.RevertCalls, e.FeedbackCalls
}

// ─── AudioStore ──────────────────────────────────────────────────────────────

// AudioStore keeps written files in memory, keyed by "<role>_audio_<turn>".
type AudioStore struct {
	mu sync.Mutex

	// WriteErr is returned by Write for the role it names, or for every role
	// when WriteErrRole is empty.
	WriteErr     error
	WriteErrRole string

	// ClearErr is returned by Clear after the files are dropped.
	ClearErr error

	Files      map[string][]byte
	Removed    []string
	ClearCalls int
}

// Write consumes stream into memory.
func (a *AudioStore) Write(turn int, role string, stream audio.Stream) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.WriteErr != nil && (a.WriteErrRole == "" || a.WriteErrRole == role) {
		return "", a.WriteErr
	}
	var buf bytes.Buffer
	if _, err := stream.WriteAllTo(&buf); err != nil {
		return "", err
	}
	if a.Files == nil {
		a.Files = make(map[string][]byte)
	}
	path := fmt.Sprintf("%s_audio_%d", role, turn)
	a.Files[path] = buf.Bytes()
	return path, nil
}

// Remove drops path.
func (a *AudioStore) Remove(path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.Files, path)
	a.Removed = append(a.Removed, path)
	return nil
}

// Clear drops every file.
func (a *AudioStore) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ClearCalls++
	clear(a.Files)
	return a.ClearErr
}

// Paths returns the stored keys.
func (a *AudioStore) Paths() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.Files))
	for p := range a.Files {
		out = append(out, p)
	}
	return out
}

func next(queue *[]error, fallback error) error {
	if len(*queue) > 0 {
		err := (*queue)[0]
		*queue = (*queue)[1:]
		return err
	}
	return fallback
}

// ErrInjected is a convenience error for tests.
var ErrInjected = errors.New("mock: injected failure")
