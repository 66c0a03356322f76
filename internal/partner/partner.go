// Package partner implements the language partner that answers the learner.
//
// A [LanguagePartner] wraps an [llm.Provider] with a CEFR tutor persona and a
// hidden conversation history. Each successful [LanguagePartner.Respond]
// appends the learner's message and the reply to that history, so later
// replies and the final assessment see the whole conversation.
package partner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/tandembuddy/internal/observe"
	"github.com/MrWong99/tandembuddy/pkg/provider/llm"
	"github.com/MrWong99/tandembuddy/pkg/types"
)

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("partner: model returned an empty reply")

// Defaults applied by [New] to zero-valued [Config] fields.
const (
	DefaultTargetLanguage = "Spanish"
	DefaultLevel          = "B1 Intermediate"
)

// Config configures a [LanguagePartner].
type Config struct {
	// TargetLanguage is the language the learner practises.
	TargetLanguage string

	// Level is the learner's CEFR level, e.g. "B1 Intermediate".
	Level string

	// SystemPrompt replaces the rendered tutor prompt when non-empty.
	SystemPrompt string

	// Temperature is passed to the model when non-zero.
	Temperature float64

	// MaxTokens caps each reply. It is clamped to the model's output limit.
	MaxTokens int

	// MaxHistory bounds the remembered exchanges; older ones are dropped
	// first. Zero keeps everything.
	MaxHistory int
}

// LanguagePartner is safe for concurrent use; calls are serialised.
type LanguagePartner struct {
	llm            llm.Provider
	cfg            Config
	systemPrompt   string
	feedbackPrompt string

	mu      sync.Mutex
	history []types.Message
	// trimmed holds what the last Respond dropped for MaxHistory, so Revert
	// can put it back.
	trimmed []types.Message
}

// New renders the prompts for cfg and returns a partner backed by provider.
func New(provider llm.Provider, cfg Config) (*LanguagePartner, error) {
	if provider == nil {
		return nil, errors.New("partner: llm provider must not be nil")
	}
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = DefaultTargetLanguage
	}
	if cfg.Level == "" {
		cfg.Level = DefaultLevel
	}
	if caps := provider.Capabilities(); caps.MaxOutputTokens > 0 && cfg.MaxTokens > caps.MaxOutputTokens {
		cfg.MaxTokens = caps.MaxOutputTokens
	}

	data := promptData{Language: cfg.TargetLanguage, Level: cfg.Level, NextLevel: NextLevel(cfg.Level)}
	system := cfg.SystemPrompt
	if system == "" {
		var err error
		if system, err = render(systemPromptTmpl, data); err != nil {
			return nil, fmt.Errorf("partner: render system prompt: %w", err)
		}
	}
	feedback, err := render(feedbackPromptTmpl, data)
	if err != nil {
		return nil, fmt.Errorf("partner: render feedback prompt: %w", err)
	}

	return &LanguagePartner{
		llm:            provider,
		cfg:            cfg,
		systemPrompt:   system,
		feedbackPrompt: feedback,
	}, nil
}

// SystemPrompt returns the prompt sent ahead of every request.
func (p *LanguagePartner) SystemPrompt() string { return p.systemPrompt }

// FeedbackPrompt returns the assessment request used by [LanguagePartner.DetailedFeedback].
func (p *LanguagePartner) FeedbackPrompt() string { return p.feedbackPrompt }

// Respond sends text with the accumulated history and returns the reply.
// On failure the history is left untouched.
func (p *LanguagePartner) Respond(ctx context.Context, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	userMsg := types.Message{Role: types.RoleUser, Content: text}
	msgs := make([]types.Message, len(p.history), len(p.history)+1)
	copy(msgs, p.history)
	msgs = append(msgs, userMsg)

	resp, err := p.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: p.systemPrompt,
		Messages:     msgs,
		Temperature:  p.cfg.Temperature,
		MaxTokens:    p.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("partner: complete: %w", err)
	}
	if resp.Content == "" {
		return "", ErrEmptyReply
	}

	observe.Logger(ctx).Debug("partner replied",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	p.history = append(msgs, types.Message{Role: types.RoleAssistant, Content: resp.Content})
	p.trimmed = p.trim()
	return resp.Content, nil
}

// trim drops the oldest exchanges beyond MaxHistory and returns them.
// Caller holds mu.
func (p *LanguagePartner) trim() []types.Message {
	if p.cfg.MaxHistory <= 0 {
		return nil
	}
	excess := len(p.history) - 2*p.cfg.MaxHistory
	if excess <= 0 {
		return nil
	}
	dropped := p.history[:excess:excess]
	p.history = append(p.history[:0:0], p.history[excess:]...)
	return dropped
}

// Revert drops the most recent exchange and restores anything that exchange
// pushed out of the history window. It is used when a turn fails after the
// partner already answered.
func (p *LanguagePartner) Revert() {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.history)
	if n < 2 {
		return
	}
	restored := make([]types.Message, 0, len(p.trimmed)+n-2)
	restored = append(restored, p.trimmed...)
	p.history = append(restored, p.history[:n-2]...)
	p.trimmed = nil
}

// Reset forgets the whole conversation.
func (p *LanguagePartner) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = nil
	p.trimmed = nil
}

// DetailedFeedback asks the model for a CEFR assessment of the conversation
// so far. The request and the assessment become part of the history.
func (p *LanguagePartner) DetailedFeedback(ctx context.Context) (string, error) {
	return p.Respond(ctx, p.feedbackPrompt)
}

// History returns a copy of the remembered messages.
func (p *LanguagePartner) History() []types.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Message, len(p.history))
	copy(out, p.history)
	return out
}
