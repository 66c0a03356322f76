// Package conversation implements the turn-based state machine behind a voice
// practice session.
//
// A [Session] owns the visible chat history, the parallel transcription log,
// the turn counter and the transcription panel flag. Each turn runs the user's
// recording through speech-to-text, the dialogue engine and text-to-speech,
// and is committed to the session only when every step succeeded: callers
// never observe a half-recorded turn.
//
// Turns and clears are serialized per session. Read-only views and the
// visibility toggle never wait for an in-flight turn.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/tandembuddy/internal/archive"
	"github.com/MrWong99/tandembuddy/internal/observe"
	"github.com/MrWong99/tandembuddy/pkg/audio"
)

// ErrTurnInProgress is returned when a turn or feedback request arrives while
// another one is running and the session rejects concurrent work.
var ErrTurnInProgress = errors.New("conversation: a turn is already in progress")

// SpeechService converts between recordings and text.
type SpeechService interface {
	// SpeechToText transcribes recording. An empty recording yields "".
	SpeechToText(ctx context.Context, recording []byte) (string, error)

	// TextToSpeech synthesizes text into a single-use audio stream.
	TextToSpeech(ctx context.Context, text string) (audio.Stream, error)
}

// DialogueEngine produces the partner's replies and keeps its own hidden
// conversation history.
type DialogueEngine interface {
	Respond(ctx context.Context, text string) (string, error)
	Reset()
	DetailedFeedback(ctx context.Context) (string, error)
}

// Reverter is implemented by dialogue engines that can forget their most
// recent exchange. A turn that fails after the engine answered is reverted so
// that the engine's hidden history matches the visible one.
type Reverter interface {
	Revert()
}

// AudioStore persists turn recordings.
type AudioStore interface {
	Write(turn int, role string, stream audio.Stream) (string, error)
	Remove(path string) error
	Clear() error
}

// Role identifies who produced a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) emoji() string {
	if r == RoleUser {
		return "🎤"
	}
	return "🤖"
}

func (r Role) title() string {
	if r == RoleUser {
		return "User"
	}
	return "Assistant"
}

// Label returns the caption shown above the audio message of turn.
func (r Role) Label(turn int) string {
	return fmt.Sprintf("%s %s Audio Message #%d", r.emoji(), r.title(), turn)
}

// HistoryEntry is one item of the visible chat log. Exactly one of Label and
// AudioPath is set.
type HistoryEntry struct {
	Role      Role
	Turn      int
	Label     string
	AudioPath string
}

// IsAudio reports whether e references a persisted recording.
func (e HistoryEntry) IsAudio() bool { return e.AudioPath != "" }

// TranscriptionRecord is the text spoken by one side during a turn.
type TranscriptionRecord struct {
	Role Role
	Text string
	Turn int
}

// State is a point-in-time copy of a session.
type State struct {
	SessionID             string
	History               []HistoryEntry
	Transcriptions        []TranscriptionRecord
	TurnCounter           int
	TranscriptionsVisible bool
}

// TurnResult is returned by [Session.SubmitTurn].
type TurnResult struct {
	History        []HistoryEntry
	Transcriptions string

	// Turn is the index of the committed turn, or 0 when Skipped.
	Turn int

	// Skipped is set when the recording was empty and nothing happened.
	Skipped bool
}

// ToggleResult is returned by [Session.ToggleTranscriptions].
type ToggleResult struct {
	Visible bool

	// Label is the caption for the toggle control in its new state.
	Label string

	Text string
}

// ClearResult is returned by [Session.ClearAll]. History is always empty and
// non-nil.
type ClearResult struct {
	History        []HistoryEntry
	Transcriptions string
	Feedback       string
}

// Session is one conversation. All methods are safe for concurrent use.
type Session struct {
	speech  SpeechService
	engine  DialogueEngine
	store   AudioStore
	archive archive.Store
	metrics *observe.Metrics

	callTimeout  time.Duration
	maxAttempts  int
	retryBackoff time.Duration
	rejectBusy   bool

	// turns serializes SubmitTurn, GenerateFeedback and ClearAll.
	turns *semaphore.Weighted

	mu             sync.Mutex
	id             string
	history        []HistoryEntry
	transcriptions []TranscriptionRecord
	counter        int
	visible        bool
}

// Option configures a [Session].
type Option func(*Session)

// WithArchive records every committed turn in a.
func WithArchive(a archive.Store) Option {
	return func(s *Session) { s.archive = a }
}

// WithMetrics records turn metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithCallTimeout bounds each collaborator call. Zero disables the deadline.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Session) { s.callTimeout = d }
}

// WithRetry sets how often transcription and synthesis are attempted and the
// linear backoff between attempts.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(s *Session) {
		s.maxAttempts = maxAttempts
		s.retryBackoff = backoff
	}
}

// WithRejectWhenBusy makes concurrent turns fail with [ErrTurnInProgress]
// instead of waiting.
func WithRejectWhenBusy() Option {
	return func(s *Session) { s.rejectBusy = true }
}

// WithTranscriptionsVisible sets the initial panel state.
func WithTranscriptionsVisible(v bool) Option {
	return func(s *Session) { s.visible = v }
}

// New returns an empty session at turn 1.
func New(speech SpeechService, engine DialogueEngine, store AudioStore, opts ...Option) (*Session, error) {
	switch {
	case speech == nil:
		return nil, errors.New("conversation: speech service must not be nil")
	case engine == nil:
		return nil, errors.New("conversation: dialogue engine must not be nil")
	case store == nil:
		return nil, errors.New("conversation: audio store must not be nil")
	}

	s := &Session{
		speech:      speech,
		engine:      engine,
		store:       store,
		maxAttempts: 1,
		turns:       semaphore.NewWeighted(1),
		id:          uuid.NewString(),
		counter:     1,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s, nil
}

// ID returns the current session identifier. It changes on every clear.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns a copy of the session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		SessionID:             s.id,
		History:               slices.Clone(s.history),
		Transcriptions:        slices.Clone(s.transcriptions),
		TurnCounter:           s.counter,
		TranscriptionsVisible: s.visible,
	}
}

// History returns a copy of the visible chat log, never nil.
func (s *Session) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked()
}

func (s *Session) historyLocked() []HistoryEntry {
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// acquire claims the turn slot according to the busy policy.
func (s *Session) acquire(ctx context.Context) error {
	if s.rejectBusy {
		if !s.turns.TryAcquire(1) {
			return ErrTurnInProgress
		}
		return nil
	}
	if err := s.turns.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("conversation: wait for turn: %w", err)
	}
	return nil
}
