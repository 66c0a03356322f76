package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
)

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rawURL, err := p.buildURL(stt.Request{})
	if err != nil {
		t.Fatalf("buildURL error: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("url.Parse error: %v", err)
	}

	q := u.Query()
	assertEqual(t, "scheme", "https", u.Scheme)
	assertEqual(t, "host", "api.deepgram.com", u.Host)
	assertEqual(t, "path", "/v1/listen", u.Path)
	assertEqual(t, "model", defaultModel, q.Get("model"))
	assertEqual(t, "language", defaultLanguage, q.Get("language"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
}

func TestBuildURL_LanguageOverriddenByRequest(t *testing.T) {
	p, _ := New("key", WithLanguage("en"), WithModel("base"))
	rawURL, _ := p.buildURL(stt.Request{Language: "es"})
	u, _ := url.Parse(rawURL)
	assertEqual(t, "language", "es", u.Query().Get("language"))
	assertEqual(t, "model", "base", u.Query().Get("model"))
}

func TestParseDeepgramResponse_Transcript(t *testing.T) {
	data := []byte(`{"results":{"channels":[{"alternatives":[{"transcript":" hola ","confidence":0.98}]}]}}`)
	got, err := parseDeepgramResponse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEqual(t, "transcript", "hola", got)
}

func TestParseDeepgramResponse_EmptyAlternatives(t *testing.T) {
	got, err := parseDeepgramResponse([]byte(`{"results":{"channels":[{"alternatives":[]}]}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEqual(t, "transcript", "", got)
}

func TestParseDeepgramResponse_InvalidJSON(t *testing.T) {
	if _, err := parseDeepgramResponse([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestTranscribe_SendsAudioAndAuth(t *testing.T) {
	var gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte(`{"results":{"channels":[{"alternatives":[{"transcript":"buenos días"}]}]}}`))
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURL(srv.URL))
	text, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("wav"), MIMEType: "audio/wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "buenos días", text)
	assertEqual(t, "auth", "Token secret", gotAuth)
	assertEqual(t, "content-type", "audio/wav", gotType)
	assertEqual(t, "body", "wav", gotBody)
}

func TestTranscribe_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURL(srv.URL))
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error for HTTP 429")
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func assertEqual(t *testing.T, label, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", label, want, got)
	}
}
