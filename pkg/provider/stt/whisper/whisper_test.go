package whisper_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/tandembuddy/pkg/provider/stt"
	"github.com/MrWong99/tandembuddy/pkg/provider/stt/whisper"
)

// newMockServer creates a test server that responds to POST /inference with a
// JSON body containing responseText. It records the form fields of the last
// request into fields.
func newMockServer(t *testing.T, responseText string, calls *atomic.Int32, fields map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if fields != nil {
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			f, hdr, err := r.FormFile("file")
			if err == nil {
				data, _ := io.ReadAll(f)
				fields["file.name"] = hdr.Filename
				fields["file.data"] = string(data)
				f.Close()
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
}

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	_, err := whisper.New("")
	if err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestTranscribe_ReturnsTrimmedText(t *testing.T) {
	var calls atomic.Int32
	fields := map[string]string{}
	srv := newMockServer(t, "  hola mundo \n", &calls, fields)
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithModel("small"), whisper.WithLanguage("es"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("mp3-bytes")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hola mundo" {
		t.Errorf("text = %q, want %q", text, "hola mundo")
	}
	if calls.Load() != 1 {
		t.Errorf("server calls = %d, want 1", calls.Load())
	}
	if fields["language"] != "es" {
		t.Errorf("language field = %q, want es", fields["language"])
	}
	if fields["model"] != "small" {
		t.Errorf("model field = %q, want small", fields["model"])
	}
	if fields["file.name"] != "audio.mp3" {
		t.Errorf("file name = %q, want audio.mp3", fields["file.name"])
	}
	if fields["file.data"] != "mp3-bytes" {
		t.Errorf("file data = %q, want mp3-bytes", fields["file.data"])
	}
}

func TestTranscribe_RequestLanguageOverridesDefault(t *testing.T) {
	fields := map[string]string{}
	srv := newMockServer(t, "bonjour", nil, fields)
	defer srv.Close()

	p, _ := whisper.New(srv.URL, whisper.WithLanguage("es"))
	if _, err := p.Transcribe(context.Background(), stt.Request{
		Audio:    []byte("x"),
		Language: "fr",
		MIMEType: "audio/wav",
	}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if fields["language"] != "fr" {
		t.Errorf("language = %q, want fr", fields["language"])
	}
	if fields["file.name"] != "audio.wav" {
		t.Errorf("file name = %q, want audio.wav", fields["file.name"])
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, _ := whisper.New("http://127.0.0.1:1")
	_, err := p.Transcribe(context.Background(), stt.Request{})
	if !errors.Is(err, stt.ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error for HTTP 500")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	srv := newMockServer(t, "late", nil, nil)
	defer srv.Close()

	p, _ := whisper.New(srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, stt.Request{Audio: []byte("x")}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
