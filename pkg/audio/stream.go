// Package audio provides the consumable audio payload shared by speech
// providers and the persistence layer.
//
// Providers return synthesized speech in different shapes: a complete byte
// slice, an HTTP response body, or a channel of chunks arriving over a
// WebSocket. [Stream] hides that difference behind a single WriteAllTo call so
// that callers never branch on the representation.
//
// A Stream is consumed exactly once. A second WriteAllTo returns
// [ErrConsumed].
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrConsumed is returned by [Stream.WriteAllTo] when the stream has already
// been written.
var ErrConsumed = errors.New("audio: stream already consumed")

// Stream is a single-use audio payload.
type Stream interface {
	// WriteAllTo copies the entire payload to w and releases any underlying
	// resources. It returns the number of bytes written.
	WriteAllTo(w io.Writer) (int64, error)
}

// ---- byte slice -------------------------------------------------------------

type bytesStream struct {
	mu   sync.Mutex
	data []byte
	used bool
}

// FromBytes wraps an in-memory payload. The slice is not copied.
func FromBytes(b []byte) Stream {
	return &bytesStream{data: b}
}

func (s *bytesStream) WriteAllTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return 0, ErrConsumed
	}
	s.used = true
	data := s.data
	s.data = nil
	s.mu.Unlock()

	n, err := w.Write(data)
	return int64(n), err
}

// ---- reader -----------------------------------------------------------------

type readerStream struct {
	mu   sync.Mutex
	r    io.ReadCloser
	used bool
}

// FromReader wraps rc, typically an HTTP response body. rc is closed once
// WriteAllTo returns.
func FromReader(rc io.ReadCloser) Stream {
	return &readerStream{r: rc}
}

func (s *readerStream) WriteAllTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return 0, ErrConsumed
	}
	s.used = true
	s.mu.Unlock()

	n, err := io.Copy(w, s.r)
	if cerr := s.r.Close(); err == nil && cerr != nil {
		err = cerr
	}
	return n, err
}

// ---- chunk channel ----------------------------------------------------------

type chunkStream struct {
	mu     sync.Mutex
	chunks <-chan []byte
	errFn  func() error
	used   bool
}

// FromChunks wraps a channel of audio chunks produced by a streaming
// provider. The producer must close chunks when done. errFn, when non-nil, is
// called after the channel closes and reports whether the producer stopped
// because of an error.
func FromChunks(chunks <-chan []byte, errFn func() error) Stream {
	return &chunkStream{chunks: chunks, errFn: errFn}
}

func (s *chunkStream) WriteAllTo(w io.Writer) (int64, error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return 0, ErrConsumed
	}
	s.used = true
	s.mu.Unlock()

	var total int64
	for chunk := range s.chunks {
		n, err := w.Write(chunk)
		total += int64(n)
		if err != nil {
			Drain(s.chunks)
			return total, fmt.Errorf("audio: write chunk: %w", err)
		}
	}
	if s.errFn != nil {
		if err := s.errFn(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// ReadAll drains s into memory. Intended for small payloads and tests.
func ReadAll(s Stream) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.WriteAllTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
