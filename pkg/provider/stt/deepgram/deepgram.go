// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded audio API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
)

const (
	defaultBaseURL  = "https://api.deepgram.com"
	listenPath      = "/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code for recognition (e.g., "en", "es").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithBaseURL overrides the API host. Used by tests.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(u, "/")
	}
}

// Provider implements stt.Provider backed by the Deepgram REST API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe posts the raw recording to /v1/listen and returns the first
// alternative of the first channel.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", stt.ErrEmptyAudio
	}
	endpoint, err := p.buildURL(req)
	if err != nil {
		return "", fmt.Errorf("deepgram: build URL: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.Audio))
	if err != nil {
		return "", fmt.Errorf("deepgram: create request: %w", err)
	}
	mime := req.MIMEType
	if mime == "" {
		mime = "audio/mpeg"
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Content-Type", mime)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("deepgram: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	text, err := parseDeepgramResponse(data)
	if err != nil {
		return "", fmt.Errorf("deepgram: %w", err)
	}
	return text, nil
}

// buildURL constructs the Deepgram listen endpoint URL for the given request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.baseURL + listenPath)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	if lang != "" {
		q.Set("language", lang)
	}
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// deepgramResponse mirrors the subset of the pre-recorded response we read.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseDeepgramResponse extracts the top transcript from a response body.
// A response without channels or alternatives yields an empty transcript.
func parseDeepgramResponse(data []byte) (string, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Results.Channels[0].Alternatives[0].Transcript), nil
}
