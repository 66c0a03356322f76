// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/tandembuddy/pkg/audio"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts"
)

const (
	defaultModel  = "gpt-4o-mini-tts"
	defaultVoice  = "alloy"
	defaultFormat = "mp3"
)

// builtinVoices is the fixed OpenAI voice catalogue.
var builtinVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer", "verse"}

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	format       string
	instructions string
}

type config struct {
	baseURL      string
	model        string
	format       string
	instructions string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model. Defaults to "gpt-4o-mini-tts".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithResponseFormat sets the encoded output format ("mp3", "wav", "opus", ...).
func WithResponseFormat(format string) Option {
	return func(c *config) {
		c.format = format
	}
}

// WithInstructions sets style instructions (accent, pace) for models that
// accept them.
func WithInstructions(s string) Option {
	return func(c *config) {
		c.instructions = s
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel, format: defaultFormat}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}
	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.model,
		format:       cfg.format,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Stream, error) {
	if text == "" {
		return nil, errors.New("openai: text must not be empty")
	}
	v := voice.ID
	if v == "" {
		v = defaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(v),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormat(p.format),
	}
	if voice.SpeedFactor > 0 {
		params.Speed = oai.Float(voice.SpeedFactor)
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}
	return audio.FromReader(resp.Body), nil
}

// ListVoices returns the built-in OpenAI voices.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	out := make([]tts.VoiceProfile, 0, len(builtinVoices))
	for _, v := range builtinVoices {
		out = append(out, tts.VoiceProfile{ID: v, Name: v, Provider: "openai"})
	}
	return out, nil
}
