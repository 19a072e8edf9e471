// Package stt defines the Provider interface for Speech-to-Text backends that
// produce word-level timestamps.
//
// A provider turns a complete recording into a [Transcript] whose Words carry
// start and end offsets and a confidence score. [Tokens] converts those words
// into the recognised tokens consumed by the alignment engine.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrNoAudio is returned by providers when asked to transcribe an empty
// recording.
var ErrNoAudio = errors.New("stt: no audio")

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe recognises speech in audio and returns the transcript with
	// per-word timing. It returns [ErrNoAudio] (possibly wrapped) for an empty
	// recording and respects ctx cancellation for network-backed providers.
	Transcribe(ctx context.Context, audio Audio) (Transcript, error)
}
