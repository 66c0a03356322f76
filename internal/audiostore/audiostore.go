// Package audiostore persists per-turn audio files under deterministic names.
//
// Every conversation turn writes at most two files, one per role, named
// <role>_audio_<turn>.<ext>. Files are written through a temporary file and
// renamed into place, so a reader never observes a partial recording.
package audiostore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrWong99/tandembuddy/pkg/audio"
)

// ErrInvalidName is returned by [Store.Open] for names that do not refer to a
// plain file inside the store directory.
var ErrInvalidName = errors.New("audiostore: invalid file name")

// Store writes turn audio into a single directory.
type Store struct {
	dir string
	ext string
}

// New creates dir if needed and returns a Store whose files use extension ext
// (without the leading dot).
func New(dir, ext string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("audiostore: directory is required")
	}
	if ext == "" {
		ext = "mp3"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audiostore: create %s: %w", dir, err)
	}
	return &Store{dir: dir, ext: strings.TrimPrefix(ext, ".")}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Name returns the bare file name for (turn, role).
func (s *Store) Name(turn int, role string) string {
	return fmt.Sprintf("%s_audio_%d.%s", role, turn, s.ext)
}

// Path returns the absolute location for (turn, role).
func (s *Store) Path(turn int, role string) string {
	return filepath.Join(s.dir, s.Name(turn, role))
}

// Write consumes stream into the file for (turn, role) and returns its path.
// An existing file for the same key is replaced; that only happens when a
// failed turn is retried under its original index.
func (s *Store) Write(turn int, role string, stream audio.Stream) (string, error) {
	path := s.Path(turn, role)

	tmp, err := os.CreateTemp(s.dir, "."+s.Name(turn, role)+".*")
	if err != nil {
		_, _ = stream.WriteAllTo(io.Discard)
		return "", fmt.Errorf("audiostore: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	_, werr := stream.WriteAllTo(tmp)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("audiostore: write %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("audiostore: rename %s: %w", path, err)
	}
	return path, nil
}

// WriteBytes stores raw bytes for (turn, role).
func (s *Store) WriteBytes(turn int, role string, data []byte) (string, error) {
	return s.Write(turn, role, audio.FromBytes(data))
}

// Remove deletes path. A missing file is not an error.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("audiostore: remove %s: %w", path, err)
	}
	return nil
}

// Clear removes the turn audio files in the store directory, along with
// temporary files left behind by interrupted writes. Other files are left
// alone. Per-file failures do not stop the sweep; they are returned joined.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("audiostore: list %s: %w", s.dir, err)
	}
	var errs []error
	for _, e := range entries {
		if !e.Type().IsRegular() || !s.owns(e.Name()) {
			continue
		}
		if err := s.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// owns reports whether name was produced by this store: either
// <role>_audio_<turn>.<ext> or a temporary .<role>_audio_<turn>.<ext>.<suffix>.
func (s *Store) owns(name string) bool {
	if rest, ok := strings.CutPrefix(name, "."); ok {
		i := strings.LastIndexByte(rest, '.')
		if i < 0 {
			return false
		}
		name = rest[:i]
	}
	base, ok := strings.CutSuffix(name, "."+s.ext)
	if !ok {
		return false
	}
	role, num, ok := strings.Cut(base, "_audio_")
	if !ok || role == "" || strings.ContainsFunc(role, func(r rune) bool { return r < 'a' || r > 'z' }) {
		return false
	}
	turn, err := strconv.Atoi(num)
	return err == nil && turn > 0 && strconv.Itoa(turn) == num
}

// Open opens the stored file called name for reading. name must be a bare
// file name; anything that could escape the directory is rejected.
func (s *Store) Open(name string) (*os.File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, fmt.Errorf("audiostore: open root: %w", err)
	}
	defer root.Close()
	f, err := root.Open(name)
	if err != nil {
		return nil, fmt.Errorf("audiostore: open %s: %w", name, err)
	}
	return f, nil
}
