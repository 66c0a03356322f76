// Package elevenlabs provides an ElevenLabs-backed TTS provider. It implements
// the tts.Provider and tts.VoiceLister interfaces.
//
// Two API modes are supported:
//
//   - APIModeHTTP (default): one POST /v1/text-to-speech/{voice} per reply.
//     The response body is streamed straight to the caller.
//
//   - APIModeWebSocket: the stream-input WebSocket endpoint. Audio chunks are
//     forwarded as soon as ElevenLabs produces them.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/tandembuddy/pkg/audio"
	"github.com/MrWong99/tandembuddy/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "mp3_44100_128"

	// wsReadLimit bounds a single WebSocket message. Base64 audio frames
	// routinely exceed the library default of 32 KiB.
	wsReadLimit = 4 << 20
)

// APIMode selects the ElevenLabs endpoint used for synthesis.
type APIMode string

const (
	// APIModeHTTP uses the REST text-to-speech endpoint.
	APIModeHTTP APIMode = "http"
	// APIModeWebSocket uses the stream-input WebSocket endpoint.
	APIModeWebSocket APIMode = "websocket"
)

var (
	_ tts.Provider    = (*Provider)(nil)
	_ tts.VoiceLister = (*Provider)(nil)
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128", "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithAPIMode selects between the HTTP and WebSocket endpoints.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithBaseURL overrides the API host. WebSocket URLs are derived from it.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithVoiceSettings overrides stability and similarity boost.
func WithVoiceSettings(stability, similarityBoost float64) Option {
	return func(p *Provider) {
		p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarityBoost}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	apiMode      APIMode
	baseURL      string
	settings     voiceSettings
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		apiMode:      APIModeHTTP,
		baseURL:      defaultBaseURL,
		settings:     voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeHTTP, APIModeWebSocket:
	default:
		return nil, fmt.Errorf("elevenlabs: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// ---- message types ----

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64  `json:"stability"`
	SimilarityBoost float64  `json:"similarity_boost"`
	Speed           *float64 `json:"speed,omitempty"`
}

// speechRequest is the JSON body of POST /v1/text-to-speech/{voice}.
type speechRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// textMessage is a WebSocket text frame sent to ElevenLabs.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key,omitempty"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Stream, error) {
	if voice.ID == "" {
		return nil, errors.New("elevenlabs: voice.ID must not be empty")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("elevenlabs: text must not be empty")
	}
	if p.apiMode == APIModeWebSocket {
		return p.synthesizeWS(ctx, text, voice)
	}
	return p.synthesizeHTTP(ctx, text, voice)
}

func (p *Provider) voiceSettingsFor(voice tts.VoiceProfile) *voiceSettings {
	vs := p.settings
	if voice.SpeedFactor > 0 {
		speed := voice.SpeedFactor
		vs.Speed = &speed
	}
	return &vs
}

// ---- HTTP mode ----

func (p *Provider) synthesizeHTTP(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Stream, error) {
	body, err := json.Marshal(speechRequest{
		Text:          text,
		ModelID:       p.model,
		VoiceSettings: p.voiceSettingsFor(voice),
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal request: %w", err)
	}

	endpoint := p.baseURL + "/v1/text-to-speech/" + url.PathEscape(voice.ID) +
		"?output_format=" + url.QueryEscape(p.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: text-to-speech HTTP: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("elevenlabs: text-to-speech: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return audio.FromReader(resp.Body), nil
}

// ---- WebSocket mode ----

func (p *Provider) synthesizeWS(ctx context.Context, text string, voice tts.VoiceProfile) (audio.Stream, error) {
	conn, _, err := websocket.Dial(ctx, p.wsURL(voice.ID), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)

	// ElevenLabs requires a single space as the first text value; the reply
	// itself must end with a space; an empty text closes the input.
	frames := []textMessage{
		{Text: " ", VoiceSettings: p.voiceSettingsFor(voice), XiAPIKey: p.apiKey},
		{Text: text + " "},
		{Text: ""},
	}
	for _, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			conn.CloseNow()
			return nil, fmt.Errorf("elevenlabs: marshal frame: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			conn.CloseNow()
			return nil, fmt.Errorf("elevenlabs: send frame: %w", err)
		}
	}

	chunks := make(chan []byte, 64)
	var streamErr error

	go func() {
		defer close(chunks)
		defer conn.CloseNow()

		for {
			_, msg, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
					streamErr = fmt.Errorf("elevenlabs: read: %w", err)
				}
				return
			}
			var resp audioResponse
			if err := json.Unmarshal(msg, &resp); err != nil {
				continue
			}
			if resp.Error != "" {
				streamErr = fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message)
				return
			}
			if resp.Audio != "" {
				chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
				if err != nil {
					streamErr = fmt.Errorf("elevenlabs: decode audio: %w", err)
					return
				}
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					streamErr = ctx.Err()
					return
				}
			}
			if resp.IsFinal {
				return
			}
		}
	}()

	return audio.FromChunks(chunks, func() error { return streamErr }), nil
}

// wsURL derives the stream-input WebSocket URL from the configured base URL.
func (p *Provider) wsURL(voiceID string) string {
	base := p.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return base + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream-input?" + q.Encode()
}

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	profiles, err := parseVoicesResponse(data)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return profiles, nil
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, err
	}
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}
