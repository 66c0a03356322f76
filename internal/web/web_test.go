package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/tandembuddy/internal/audiostore"
	"github.com/MrWong99/tandembuddy/internal/conversation"
	"github.com/MrWong99/tandembuddy/internal/conversation/mock"
	"github.com/MrWong99/tandembuddy/internal/web"
)

type env struct {
	srv    *httptest.Server
	speech *mock.Speech
	engine *mock.Engine
	sess   *conversation.Session
}

func newEnv(t *testing.T, opts ...conversation.Option) *env {
	t.Helper()
	store, err := audiostore.New(t.TempDir(), "mp3")
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		speech: &mock.Speech{Transcript: "hola", Audio: []byte("reply-audio")},
		engine: &mock.Engine{Reply: "¡hola!", Feedback: "Muy bien."},
	}
	e.sess, err = conversation.New(e.speech, e.engine, store, opts...)
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	web.New(e.sess, store, web.WithMaxUploadBytes(1<<10)).Register(mux)
	e.srv = httptest.NewServer(mux)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *env) do(t *testing.T, method, path, contentType string, body io.Reader) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return resp, out
}

func TestSubmitTurn_RawBody(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp, body := e.do(t, http.MethodPost, "/api/turns", "audio/mpeg", strings.NewReader("A"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	history := body["history"].([]any)
	if len(history) != 4 {
		t.Fatalf("history len = %d", len(history))
	}
	first := history[0].(map[string]any)
	if first["role"] != "user" || first["label"] != "🎤 User Audio Message #1" {
		t.Errorf("first entry = %v", first)
	}
	last := history[3].(map[string]any)
	if last["audio_url"] != "/audio/assistant_audio_1.mp3" {
		t.Errorf("last entry = %v", last)
	}
	if body["turn"].(float64) != 1 {
		t.Errorf("turn = %v", body["turn"])
	}

	audio, err := e.srv.Client().Get(e.srv.URL + "/audio/assistant_audio_1.mp3")
	if err != nil {
		t.Fatal(err)
	}
	defer audio.Body.Close()
	data, _ := io.ReadAll(audio.Body)
	if audio.StatusCode != http.StatusOK || string(data) != "reply-audio" {
		t.Errorf("audio = %d %q", audio.StatusCode, data)
	}
}

func TestSubmitTurn_Multipart(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("audio", "recording.webm")
	_, _ = fw.Write([]byte("webm-bytes"))
	_ = mw.Close()

	resp, body := e.do(t, http.MethodPost, "/api/turns", mw.FormDataContentType(), &buf)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if got := string(e.speech.Recordings[0]); got != "webm-bytes" {
		t.Errorf("recording = %q", got)
	}
}

func TestSubmitTurn_EmptyBody(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	resp, body := e.do(t, http.MethodPost, "/api/turns", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["skipped"] != true || len(body["history"].([]any)) != 0 {
		t.Errorf("body = %v", body)
	}
	if e.speech.TranscribeCount() != 0 {
		t.Error("speech service called for empty body")
	}
}

func TestSubmitTurn_TooLarge(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	resp, _ := e.do(t, http.MethodPost, "/api/turns", "audio/mpeg", bytes.NewReader(make([]byte, 2<<10)))
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestSubmitTurn_CollaboratorFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.engine.RespondErr = errors.New("model overloaded")

	resp, body := e.do(t, http.MethodPost, "/api/turns", "audio/mpeg", strings.NewReader("A"))
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["stage"] != "respond" || body["turn"].(float64) != 1 || body["error"] != "model overloaded" {
		t.Errorf("body = %v", body)
	}

	_, hist := e.do(t, http.MethodGet, "/api/history", "", nil)
	if len(hist["history"].([]any)) != 0 {
		t.Errorf("history changed after failure: %v", hist)
	}
}

func TestSubmitTurn_Busy(t *testing.T) {
	t.Parallel()
	e := newEnv(t, conversation.WithRejectWhenBusy())
	e.speech.Block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.sess.SubmitTurn(context.Background(), []byte("A"))
	}()
	deadline := time.Now().Add(2 * time.Second)
	for e.speech.TranscribeCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first turn did not start")
		}
		time.Sleep(time.Millisecond)
	}

	resp, _ := e.do(t, http.MethodPost, "/api/turns", "audio/mpeg", strings.NewReader("B"))
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	close(e.speech.Block)
	<-done
}

func TestToggleAndTranscriptions(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.do(t, http.MethodPost, "/api/turns", "audio/mpeg", strings.NewReader("A"))

	_, before := e.do(t, http.MethodGet, "/api/transcriptions", "", nil)
	if before["visible"] != false || before["text"] != conversation.EmptyTranscriptionsMessage {
		t.Errorf("before = %v", before)
	}

	_, on := e.do(t, http.MethodPost, "/api/transcriptions/toggle", "", nil)
	if on["visible"] != true || on["label"] != "Hide Transcriptions" {
		t.Errorf("toggle = %v", on)
	}
	if text := on["text"].(string); !strings.Contains(text, "¡hola!") {
		t.Errorf("text = %q", text)
	}

	_, off := e.do(t, http.MethodPost, "/api/transcriptions/toggle", "", nil)
	if off["visible"] != false || off["label"] != "Show Transcriptions" {
		t.Errorf("second toggle = %v", off)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.do(t, http.MethodPost, "/api/turns", "audio/mpeg", strings.NewReader("A"))

	resp, body := e.do(t, http.MethodPost, "/api/clear", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	history, ok := body["history"].([]any)
	if !ok || len(history) != 0 {
		t.Errorf("history = %#v, want empty array", body["history"])
	}
	if body["transcriptions"] != conversation.EmptyTranscriptionsMessage || body["feedback"] != "" {
		t.Errorf("body = %v", body)
	}

	audio, err := e.srv.Client().Get(e.srv.URL + "/audio/user_audio_1.mp3")
	if err != nil {
		t.Fatal(err)
	}
	audio.Body.Close()
	if audio.StatusCode != http.StatusNotFound {
		t.Errorf("audio after clear = %d, want 404", audio.StatusCode)
	}
}

func TestFeedback(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	_, empty := e.do(t, http.MethodPost, "/api/feedback", "", nil)
	if empty["feedback"] != conversation.NoFeedbackMessage {
		t.Errorf("feedback = %v", empty)
	}

	e.do(t, http.MethodPost, "/api/turns", "audio/mpeg", strings.NewReader("A"))
	_, body := e.do(t, http.MethodPost, "/api/feedback", "", nil)
	text, _ := body["feedback"].(string)
	if !strings.Contains(text, "**Total Interactions:** 1 turns") || !strings.HasSuffix(text, "Muy bien.") {
		t.Errorf("feedback = %q", text)
	}
}

func TestServeAudio_Rejects(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	tests := []struct {
		path string
		want int
	}{
		{"/audio/missing.mp3", http.StatusNotFound},
		{"/audio/.hidden", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := e.srv.Client().Get(e.srv.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
	}
}

func TestIndexPage(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	resp, err := e.srv.Client().Get(e.srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "Tandem Buddy") {
		t.Errorf("index = %d", resp.StatusCode)
	}
}
