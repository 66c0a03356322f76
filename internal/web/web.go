// Package web serves the browser front end and its JSON API.
//
// The API mirrors the operations of a conversation session one to one:
// submitting a recorded turn, reading and toggling the transcription panel,
// clearing the conversation, and requesting final feedback. Persisted audio
// is served back for playback under /audio/{name}.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/MrWong99/tandembuddy/internal/audiostore"
	"github.com/MrWong99/tandembuddy/internal/conversation"
	"github.com/MrWong99/tandembuddy/internal/observe"
)

//go:embed static
var staticFS embed.FS

// DefaultMaxUploadBytes bounds a single recording upload.
const DefaultMaxUploadBytes = 25 << 20

// Session is the subset of [conversation.Session] the handlers use.
type Session interface {
	SubmitTurn(ctx context.Context, recording []byte) (conversation.TurnResult, error)
	History() []conversation.HistoryEntry
	FormatTranscriptions() string
	TranscriptionsVisible() bool
	ToggleTranscriptions() conversation.ToggleResult
	ClearAll(ctx context.Context) (conversation.ClearResult, error)
	GenerateFeedback(ctx context.Context) (string, error)
}

// AudioOpener opens persisted recordings by bare file name.
type AudioOpener interface {
	Open(name string) (*os.File, error)
}

var (
	_ Session     = (*conversation.Session)(nil)
	_ AudioOpener = (*audiostore.Store)(nil)
)

// Handler serves the API for one conversation session.
type Handler struct {
	sess     Session
	audio    AudioOpener
	maxBytes int64
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMaxUploadBytes overrides [DefaultMaxUploadBytes].
func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) { h.maxBytes = n }
}

// New returns a Handler for sess serving audio from a.
func New(sess Session, a AudioOpener, opts ...Option) *Handler {
	h := &Handler{sess: sess, audio: a, maxBytes: DefaultMaxUploadBytes}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/turns", h.submitTurn)
	mux.HandleFunc("GET /api/history", h.history)
	mux.HandleFunc("GET /api/transcriptions", h.transcriptions)
	mux.HandleFunc("POST /api/transcriptions/toggle", h.toggle)
	mux.HandleFunc("POST /api/clear", h.clear)
	mux.HandleFunc("POST /api/feedback", h.feedback)
	mux.HandleFunc("GET /audio/{name}", h.serveAudio)

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /", http.FileServerFS(static))
}

// historyEntry is the wire form of a [conversation.HistoryEntry].
type historyEntry struct {
	Role     string `json:"role"`
	Turn     int    `json:"turn"`
	Label    string `json:"label,omitempty"`
	AudioURL string `json:"audio_url,omitempty"`
}

func toWire(entries []conversation.HistoryEntry) []historyEntry {
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		we := historyEntry{Role: string(e.Role), Turn: e.Turn, Label: e.Label}
		if e.IsAudio() {
			we.AudioURL = "/audio/" + filepath.Base(e.AudioPath)
		}
		out = append(out, we)
	}
	return out
}

type turnResponse struct {
	History        []historyEntry `json:"history"`
	Transcriptions string         `json:"transcriptions"`
	Turn           int            `json:"turn,omitempty"`
	Skipped        bool           `json:"skipped,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Stage string `json:"stage,omitempty"`
	Turn  int    `json:"turn,omitempty"`
}

func (h *Handler) submitTurn(w http.ResponseWriter, r *http.Request) {
	recording, err := h.readRecording(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "recording too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	res, err := h.sess.SubmitTurn(r.Context(), recording)
	if err != nil {
		h.writeTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse{
		History:        toWire(res.History),
		Transcriptions: res.Transcriptions,
		Turn:           res.Turn,
		Skipped:        res.Skipped,
	})
}

// readRecording returns the uploaded audio: either the multipart field
// "audio" or the raw request body.
func (h *Handler) readRecording(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	}

	f, _, err := r.FormFile("audio")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read form: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read audio field: %w", err)
	}
	return data, nil
}

func (h *Handler) writeTurnError(w http.ResponseWriter, r *http.Request, err error) {
	var te *conversation.TurnError
	switch {
	case errors.Is(err, conversation.ErrTurnInProgress):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.As(err, &te):
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error: te.Err.Error(),
			Stage: string(te.Stage),
			Turn:  te.Turn,
		})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (h *Handler) history(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, turnResponse{
		History:        toWire(h.sess.History()),
		Transcriptions: h.sess.FormatTranscriptions(),
	})
}

type transcriptionsResponse struct {
	Visible bool   `json:"visible"`
	Label   string `json:"label,omitempty"`
	Text    string `json:"text"`
}

func (h *Handler) transcriptions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, transcriptionsResponse{
		Visible: h.sess.TranscriptionsVisible(),
		Text:    h.sess.FormatTranscriptions(),
	})
}

func (h *Handler) toggle(w http.ResponseWriter, _ *http.Request) {
	res := h.sess.ToggleTranscriptions()
	writeJSON(w, http.StatusOK, transcriptionsResponse{
		Visible: res.Visible,
		Label:   res.Label,
		Text:    res.Text,
	})
}

type clearResponse struct {
	History        []historyEntry `json:"history"`
	Transcriptions string         `json:"transcriptions"`
	Feedback       string         `json:"feedback"`
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	res, err := h.sess.ClearAll(r.Context())
	if err != nil {
		h.writeTurnError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clearResponse{
		History:        toWire(res.History),
		Transcriptions: res.Transcriptions,
		Feedback:       res.Feedback,
	})
}

func (h *Handler) feedback(w http.ResponseWriter, r *http.Request) {
	text, err := h.sess.GenerateFeedback(r.Context())
	if err != nil {
		if errors.Is(err, conversation.ErrTurnInProgress) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			h.writeTurnError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"feedback": text})
}

func (h *Handler) serveAudio(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	f, err := h.audio.Open(name)
	switch {
	case errors.Is(err, audiostore.ErrInvalidName):
		http.Error(w, "invalid audio name", http.StatusBadRequest)
		return
	case errors.Is(err, fs.ErrNotExist):
		http.NotFound(w, r)
		return
	case err != nil:
		observe.Logger(r.Context()).Error("failed to open audio", "name", name, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}
