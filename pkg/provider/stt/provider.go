// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a batch transcription service (e.g., ElevenLabs
// Scribe, OpenAI Whisper, or a local whisper.cpp server) and exposes a uniform
// request/response interface: one recorded utterance in, one transcript out.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyAudio is returned by providers that are handed a zero-length
// payload. Callers that treat empty recordings as a no-op should check for
// empty input before calling Transcribe.
var ErrEmptyAudio = errors.New("stt: audio payload is empty")

// Request describes a single transcription job.
type Request struct {
	// Audio is the encoded recording (MP3, WAV, WebM, ...). It must not be
	// empty.
	Audio []byte

	// MIMEType is the content type of Audio (e.g., "audio/mpeg"). Providers use
	// it to pick an upload file name; an empty value means "audio/mpeg".
	MIMEType string

	// Language is the ISO-639-1 language code hint (e.g., "es"). An empty
	// string lets the provider auto-detect the language, if supported.
	Language string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe sends the recording in req to the backend and returns the
	// recognised text. It returns an error if the backend cannot be reached,
	// rejects the request, or ctx is cancelled first.
	Transcribe(ctx context.Context, req Request) (string, error)
}

// FileName returns an upload file name whose extension matches mimeType.
// Backends that sniff the format from the multipart file name rely on it.
func FileName(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "audio.wav"
	case "audio/webm":
		return "audio.webm"
	case "audio/ogg":
		return "audio.ogg"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "audio.m4a"
	case "audio/flac":
		return "audio.flac"
	default:
		return "audio.mp3"
	}
}
