package openai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
}

func TestTranscribe_AgainstFakeServer(t *testing.T) {
	t.Parallel()

	var gotModel, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %q, want /audio/transcriptions", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"¿qué tal?"}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL), WithLanguage("es"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("abc"), MIMEType: "audio/wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "¿qué tal?" {
		t.Errorf("text = %q, want %q", text, "¿qué tal?")
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
	if gotLang != "es" {
		t.Errorf("language = %q, want es", gotLang)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()

	p, _ := New("sk-test")
	if _, err := p.Transcribe(context.Background(), stt.Request{}); err != stt.ErrEmptyAudio {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}
