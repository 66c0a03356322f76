package audiostore

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/tandembuddy/pkg/audio"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "audio"), "mp3")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNew_RequiresDir(t *testing.T) {
	t.Parallel()
	if _, err := New("", "mp3"); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestPath_Deterministic(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	if got := s.Name(3, "user"); got != "user_audio_3.mp3" {
		t.Errorf("Name = %q, want user_audio_3.mp3", got)
	}
	if got := s.Path(1, "assistant"); got != filepath.Join(s.Dir(), "assistant_audio_1.mp3") {
		t.Errorf("Path = %q", got)
	}
	if s.Path(2, "user") != s.Path(2, "user") {
		t.Error("Path is not deterministic")
	}
}

func TestNew_StripsLeadingDot(t *testing.T) {
	t.Parallel()
	s, err := New(t.TempDir(), ".wav")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := s.Name(1, "user"); got != "user_audio_1.wav" {
		t.Errorf("Name = %q", got)
	}
}

func TestWrite_ConsumesStream(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	ch := make(chan []byte, 2)
	ch <- []byte("abc")
	ch <- []byte("def")
	close(ch)

	path, err := s.Write(1, "assistant", audio.FromChunks(ch, nil))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "abcdef" {
		t.Errorf("content = %q, want abcdef", data)
	}
}

func TestWrite_StreamErrorLeavesNoFile(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	ch := make(chan []byte, 1)
	ch <- []byte("partial")
	close(ch)
	boom := errors.New("socket closed")

	_, err := s.Write(1, "assistant", audio.FromChunks(ch, func() error { return boom }))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want stream error", err)
	}
	if _, err := os.Stat(s.Path(1, "assistant")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("final file exists after failed write: %v", err)
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 0 {
		t.Errorf("leftover files: %v", entries)
	}
}

func TestWriteBytes_ReplacesExisting(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	if _, err := s.WriteBytes(1, "user", []byte("first")); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	path, err := s.WriteBytes(1, "user", []byte("retry"))
	if err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "retry" {
		t.Errorf("content = %q, want retry", data)
	}
}

func TestRemove_MissingIsNotError(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := s.Remove(s.Path(9, "user")); err != nil {
		t.Errorf("Remove missing: %v", err)
	}
}

func TestClear(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	for turn := 1; turn <= 3; turn++ {
		if _, err := s.WriteBytes(turn, "user", []byte("u")); err != nil {
			t.Fatal(err)
		}
		if _, err := s.WriteBytes(turn, "assistant", []byte("a")); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(s.Dir(), "keep"), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 || entries[0].Name() != "keep" {
		t.Errorf("entries after Clear = %v, want only the subdirectory", entries)
	}

	if err := s.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestOpen(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if _, err := s.WriteBytes(1, "user", []byte("hola")); err != nil {
		t.Fatal(err)
	}

	f, err := s.Open("user_audio_1.mp3")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "hola" {
		t.Errorf("content = %q", data)
	}

	for _, name := range []string{"", "../etc/passwd", "sub/file.mp3", ".hidden", ".."} {
		if _, err := s.Open(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("Open(%q) err = %v, want ErrInvalidName", name, err)
		}
	}
	if _, err := s.Open("assistant_audio_7.mp3"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open missing err = %v, want ErrNotExist", err)
	}
}

func TestClear_LeavesForeignFiles(t *testing.T) {
	t.Parallel()
	s := newStore(t)

	foreign := []string{"config.yaml", ".env", "user_audio_1.wav", "user_audio_x.mp3", "notes_audio_01.mp3", "User_audio_2.mp3"}
	for _, name := range foreign {
		if err := os.WriteFile(filepath.Join(s.Dir(), name), []byte("keep"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.WriteBytes(1, "user", []byte("u")); err != nil {
		t.Fatal(err)
	}
	// Leftover from an interrupted write.
	leftover := filepath.Join(s.Dir(), ".assistant_audio_1.mp3.123456")
	if err := os.WriteFile(leftover, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	for _, name := range foreign {
		if _, err := os.Stat(filepath.Join(s.Dir(), name)); err != nil {
			t.Errorf("%s removed by Clear: %v", name, err)
		}
	}
	for _, path := range []string{s.Path(1, "user"), leftover} {
		if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("%s still present after Clear: %v", path, err)
		}
	}
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestWrite_TempFailureReleasesStream(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	if err := os.RemoveAll(s.Dir()); err != nil {
		t.Fatal(err)
	}

	body := &closeTracker{Reader: strings.NewReader("audio")}
	if _, err := s.Write(1, "assistant", audio.FromReader(body)); err == nil {
		t.Fatal("expected error when the directory is gone")
	}
	if !body.closed {
		t.Error("stream body was not closed after the temp file failed")
	}
}
