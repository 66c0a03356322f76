package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/tandembuddy/internal/observe"
)

const (
	// EmptyTranscriptionsMessage is shown when the panel is hidden or there is
	// nothing to show.
	EmptyTranscriptionsMessage = "## 📝 Transcriptions\n\nNo messages yet."

	// NoFeedbackMessage is returned by GenerateFeedback before the first turn.
	NoFeedbackMessage = "## ⚠️ No conversation to analyze yet."

	ShowTranscriptionsLabel = "Show Transcriptions"
	HideTranscriptionsLabel = "Hide Transcriptions"

	transcriptionsHeader = "## 📝 Transcriptions\n\n"
	feedbackHeader       = "## 📊 Final Conversation Feedback\n\n"
)

// FormatTranscriptions renders records as markdown in insertion order. It
// returns [EmptyTranscriptionsMessage] when visible is false or records is
// empty.
func FormatTranscriptions(records []TranscriptionRecord, visible bool) string {
	if !visible || len(records) == 0 {
		return EmptyTranscriptionsMessage
	}
	var b strings.Builder
	b.WriteString(transcriptionsHeader)
	for _, r := range records {
		fmt.Fprintf(&b, "**%s**\n\n%s\n\n---\n\n", r.Role.Label(r.Turn), r.Text)
	}
	return b.String()
}

// FormatTranscriptions renders the session's transcription log.
func (s *Session) FormatTranscriptions() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FormatTranscriptions(s.transcriptions, s.visible)
}

// TranscriptionsVisible reports the panel state.
func (s *Session) TranscriptionsVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// ToggleTranscriptions flips the panel state and returns the new state, the
// caption for the toggle control and the rendered log.
func (s *Session) ToggleTranscriptions() ToggleResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = !s.visible
	label := ShowTranscriptionsLabel
	if s.visible {
		label = HideTranscriptionsLabel
	}
	return ToggleResult{
		Visible: s.visible,
		Label:   label,
		Text:    FormatTranscriptions(s.transcriptions, s.visible),
	}
}

// ClearAll waits for any running turn, then empties the session, resets the
// dialogue engine and deletes persisted audio. Audio cleanup is best effort:
// failures are logged and never returned. The panel state is kept.
//
// ClearAll only fails when ctx ends while waiting for the running turn.
func (s *Session) ClearAll(ctx context.Context) (ClearResult, error) {
	if err := s.turns.Acquire(ctx, 1); err != nil {
		return ClearResult{}, fmt.Errorf("conversation: wait for turn: %w", err)
	}
	defer s.turns.Release(1)

	s.mu.Lock()
	old := s.id
	s.history = nil
	s.transcriptions = nil
	s.counter = 1
	s.id = uuid.NewString()
	s.mu.Unlock()

	s.engine.Reset()
	if err := s.store.Clear(); err != nil {
		observe.Logger(ctx).Warn("failed to remove session audio", "session_id", old, "err", err)
	}
	observe.Logger(ctx).Debug("conversation cleared", "old_session_id", old)

	return ClearResult{
		History:        []HistoryEntry{},
		Transcriptions: EmptyTranscriptionsMessage,
		Feedback:       "",
	}, nil
}

// GenerateFeedback asks the dialogue engine for an assessment of the
// conversation so far, prefixed with the number of completed turns. Before the
// first completed turn it returns [NoFeedbackMessage] without calling the
// engine.
func (s *Session) GenerateFeedback(ctx context.Context) (string, error) {
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.turns.Release(1)

	s.mu.Lock()
	empty := len(s.transcriptions) == 0
	turns := s.counter - 1
	s.mu.Unlock()
	if empty {
		return NoFeedbackMessage, nil
	}

	ctx, span := observe.StartSpan(ctx, "conversation.feedback")
	start := time.Now()
	callCtx, cancel := s.callContext(ctx)
	feedback, err := s.engine.DetailedFeedback(callCtx)
	cancel()
	s.recordStage(ctx, s.metrics.LLMDuration, start, err)
	observe.EndSpan(span, err)
	if err != nil {
		return "", fmt.Errorf("conversation: feedback: %w", err)
	}

	var b strings.Builder
	b.WriteString(feedbackHeader)
	fmt.Fprintf(&b, "**Total Interactions:** %d turns\n\n", turns)
	b.WriteString(feedback)
	return b.String(), nil
}

func (s *Session) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.callTimeout)
}
