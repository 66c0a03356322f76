package conversation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/tandembuddy/internal/archive"
	"github.com/MrWong99/tandembuddy/internal/observe"
	"github.com/MrWong99/tandembuddy/internal/resilience"
	"github.com/MrWong99/tandembuddy/pkg/audio"
)

// Stage names the step of a turn that failed.
type Stage string

const (
	StagePersist    Stage = "persist"
	StageTranscribe Stage = "transcribe"
	StageRespond    Stage = "respond"
	StageSynthesize Stage = "synthesize"
)

// TurnError reports a failed turn. The session is unchanged and the same turn
// index is used on the next attempt.
type TurnError struct {
	Turn  int
	Stage Stage
	Err   error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("conversation: turn %d: %s: %v", e.Turn, e.Stage, e.Err)
}

func (e *TurnError) Unwrap() error { return e.Err }

// pendingTurn collects everything a turn produces before it is committed.
type pendingTurn struct {
	index         int
	userPath      string
	assistantPath string
	userText      string
	replyText     string
	responded     bool
}

func (p *pendingTurn) entries() []HistoryEntry {
	return []HistoryEntry{
		{Role: RoleUser, Turn: p.index, Label: RoleUser.Label(p.index)},
		{Role: RoleUser, Turn: p.index, AudioPath: p.userPath},
		{Role: RoleAssistant, Turn: p.index, Label: RoleAssistant.Label(p.index)},
		{Role: RoleAssistant, Turn: p.index, AudioPath: p.assistantPath},
	}
}

func (p *pendingTurn) records() []TranscriptionRecord {
	return []TranscriptionRecord{
		{Role: RoleUser, Text: p.userText, Turn: p.index},
		{Role: RoleAssistant, Text: p.replyText, Turn: p.index},
	}
}

// SubmitTurn runs one exchange for recording. An empty recording is a no-op
// that returns the current state with Skipped set.
//
// On success the history grows by four entries and the transcription log by
// two, and the turn counter advances. On failure a [*TurnError] is returned
// and the session is left exactly as it was before the call.
func (s *Session) SubmitTurn(ctx context.Context, recording []byte) (TurnResult, error) {
	if len(recording) == 0 {
		s.metrics.RecordTurn(ctx, observe.TurnStatusSkipped, 0)
		s.mu.Lock()
		defer s.mu.Unlock()
		return TurnResult{
			History:        s.historyLocked(),
			Transcriptions: FormatTranscriptions(s.transcriptions, s.visible),
			Skipped:        true,
		}, nil
	}

	if err := s.acquire(ctx); err != nil {
		return TurnResult{}, err
	}
	defer s.turns.Release(1)

	s.mu.Lock()
	index, sessionID := s.counter, s.id
	s.mu.Unlock()

	ctx, span := observe.StartSpan(ctx, "conversation.turn",
		trace.WithAttributes(attribute.Int("turn.index", index)))
	start := time.Now()
	s.metrics.ActiveTurns.Add(ctx, 1)
	defer s.metrics.ActiveTurns.Add(ctx, -1)

	p := &pendingTurn{index: index}
	if err := s.runTurn(ctx, p, recording); err != nil {
		s.discard(ctx, p)
		s.metrics.RecordTurn(ctx, observe.TurnStatusError, time.Since(start))
		observe.EndSpan(span, err)
		observe.Logger(ctx).Warn("turn failed", "turn", index, "err", err)
		return TurnResult{}, err
	}

	s.mu.Lock()
	s.history = append(s.history, p.entries()...)
	s.transcriptions = append(s.transcriptions, p.records()...)
	s.counter++
	res := TurnResult{
		History:        s.historyLocked(),
		Transcriptions: FormatTranscriptions(s.transcriptions, s.visible),
		Turn:           index,
	}
	s.mu.Unlock()

	s.metrics.RecordTurn(ctx, observe.TurnStatusOK, time.Since(start))
	observe.EndSpan(span, nil)
	s.record(ctx, sessionID, p)
	return res, nil
}

func (s *Session) runTurn(ctx context.Context, p *pendingTurn, recording []byte) error {
	fail := func(stage Stage, err error) error {
		return &TurnError{Turn: p.index, Stage: stage, Err: err}
	}

	path, err := s.store.Write(p.index, string(RoleUser), audio.FromBytes(recording))
	if err != nil {
		return fail(StagePersist, err)
	}
	p.userPath = path

	sttStart := time.Now()
	err = resilience.Retry(ctx, s.retryConfig("transcribe", s.maxAttempts), func(ctx context.Context) error {
		text, err := s.speech.SpeechToText(ctx, recording)
		if err != nil {
			return err
		}
		p.userText = text
		return nil
	})
	s.recordStage(ctx, s.metrics.STTDuration, sttStart, err)
	if err != nil {
		return fail(StageTranscribe, err)
	}

	llmStart := time.Now()
	err = resilience.Retry(ctx, s.retryConfig("respond", 1), func(ctx context.Context) error {
		reply, err := s.engine.Respond(ctx, p.userText)
		if err != nil {
			return err
		}
		p.replyText = reply
		p.responded = true
		return nil
	})
	s.recordStage(ctx, s.metrics.LLMDuration, llmStart, err)
	if err != nil {
		return fail(StageRespond, err)
	}

	ttsStart := time.Now()
	err = resilience.Retry(ctx, s.retryConfig("synthesize", s.maxAttempts), func(ctx context.Context) error {
		stream, err := s.speech.TextToSpeech(ctx, p.replyText)
		if err != nil {
			return err
		}
		path, err := s.store.Write(p.index, string(RoleAssistant), stream)
		if err != nil {
			return err
		}
		p.assistantPath = path
		return nil
	})
	s.recordStage(ctx, s.metrics.TTSDuration, ttsStart, err)
	if err != nil {
		return fail(StageSynthesize, err)
	}
	return nil
}

// recordStage observes the wall time of one turn stage, retries included.
func (s *Session) recordStage(ctx context.Context, h metric.Float64Histogram, start time.Time, err error) {
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.Bool("error", err != nil)))
}

func (s *Session) retryConfig(name string, attempts int) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: attempts,
		CallTimeout: s.callTimeout,
		Backoff:     s.retryBackoff,
		Name:        name,
	}
}

// discard undoes the side effects of an abandoned turn.
func (s *Session) discard(ctx context.Context, p *pendingTurn) {
	var errs []error
	for _, path := range []string{p.userPath, p.assistantPath} {
		if path == "" {
			continue
		}
		if err := s.store.Remove(path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		observe.Logger(ctx).Warn("failed to remove audio of abandoned turn", "turn", p.index, "err", err)
	}
	if p.responded {
		if r, ok := s.engine.(Reverter); ok {
			r.Revert()
		}
	}
}

// record archives a committed turn. Failures are logged only.
func (s *Session) record(ctx context.Context, sessionID string, p *pendingTurn) {
	if s.archive == nil {
		return
	}
	err := s.archive.RecordTurn(ctx, archive.Turn{
		SessionID:      sessionID,
		Index:          p.index,
		UserText:       p.userText,
		AssistantText:  p.replyText,
		UserAudio:      filepath.Base(p.userPath),
		AssistantAudio: filepath.Base(p.assistantPath),
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		observe.Logger(ctx).Warn("failed to archive turn", "session_id", sessionID, "turn", p.index, "err", err)
	}
}
