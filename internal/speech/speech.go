// Package speech adapts the STT and TTS providers to the two calls a
// conversation turn needs: recording in, transcript out; reply text in,
// audio stream out.
package speech

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/tandembuddy/internal/observe"
	"github.com/MrWong99/tandembuddy/pkg/audio"
	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts"
)

// ErrVoicesUnsupported is returned by [Service.Voices] when the TTS provider
// cannot enumerate voices.
var ErrVoicesUnsupported = errors.New("speech: tts provider cannot list voices")

// Service implements the speech side of a conversation turn.
type Service struct {
	stt stt.Provider
	tts tts.Provider

	language string
	mimeType string
	voice    tts.VoiceProfile
}

// Option configures a [Service].
type Option func(*Service)

// WithLanguage sets the transcription language hint (ISO-639-1).
func WithLanguage(lang string) Option {
	return func(s *Service) { s.language = lang }
}

// WithInputMIMEType sets the content type reported for recordings.
func WithInputMIMEType(mime string) Option {
	return func(s *Service) { s.mimeType = mime }
}

// WithVoice selects the voice used for replies.
func WithVoice(v tts.VoiceProfile) Option {
	return func(s *Service) { s.voice = v }
}


// New returns a Service over the given providers.
func New(sttProvider stt.Provider, ttsProvider tts.Provider, opts ...Option) (*Service, error) {
	if sttProvider == nil {
		return nil, errors.New("speech: stt provider must not be nil")
	}
	if ttsProvider == nil {
		return nil, errors.New("speech: tts provider must not be nil")
	}
	s := &Service{stt: sttProvider, tts: ttsProvider}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// SpeechToText transcribes recording. An empty recording yields an empty
// transcript and no error; the provider is not called.
func (s *Service) SpeechToText(ctx context.Context, recording []byte) (text string, err error) {
	if len(recording) == 0 {
		return "", nil
	}

	ctx, span := observe.StartSpan(ctx, "speech.stt",
		trace.WithAttributes(attribute.Int("audio.bytes", len(recording))))
	defer func() { observe.EndSpan(span, err) }()

	text, err = s.stt.Transcribe(ctx, stt.Request{
		Audio:    recording,
		MIMEType: s.mimeType,
		Language: s.language,
	})
	if err != nil {
		return "", fmt.Errorf("speech: transcribe: %w", err)
	}
	return text, nil
}

// TextToSpeech synthesizes text with the configured voice. The returned
// stream must be consumed before ctx is cancelled.
func (s *Service) TextToSpeech(ctx context.Context, text string) (stream audio.Stream, err error) {
	ctx, span := observe.StartSpan(ctx, "speech.tts",
		trace.WithAttributes(attribute.Int("text.chars", len(text))))
	defer func() { observe.EndSpan(span, err) }()

	stream, err = s.tts.Synthesize(ctx, text, s.voice)
	if err != nil {
		return nil, fmt.Errorf("speech: synthesize: %w", err)
	}
	return stream, nil
}

// Voices lists the voices offered by the TTS provider.
func (s *Service) Voices(ctx context.Context) ([]tts.VoiceProfile, error) {
	lister, ok := s.tts.(tts.VoiceLister)
	if !ok {
		return nil, ErrVoicesUnsupported
	}
	voices, err := lister.ListVoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("speech: list voices: %w", err)
	}
	return voices, nil
}
