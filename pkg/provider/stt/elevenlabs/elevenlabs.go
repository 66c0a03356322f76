// Package elevenlabs provides an ElevenLabs Scribe-backed STT provider. It
// implements the stt.Provider interface.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	transcribePath = "/v1/speech-to-text"
	defaultModel   = "scribe_v1"
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the Scribe model ID (e.g., "scribe_v1").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language code used when a request has none.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithBaseURL overrides the API host.
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

// Provider implements stt.Provider backed by the ElevenLabs speech-to-text API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
}

// New creates a new ElevenLabs STT Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type transcriptionResponse struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
}

// Transcribe uploads the recording and returns the recognised text.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (string, error) {
	if len(req.Audio) == 0 {
		return "", stt.ErrEmptyAudio
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	body, contentType, err := buildMultipart(req, p.model, lang)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+transcribePath, body)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("elevenlabs: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("elevenlabs: decode response: %w", err)
	}
	return strings.TrimSpace(tr.Text), nil
}

func buildMultipart(req stt.Request, model, lang string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile("file", stt.FileName(req.MIMEType))
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(req.Audio); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("model_id", model); err != nil {
		return nil, "", err
	}
	if lang != "" {
		if err := mw.WriteField("language_code", lang); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}
