// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return a canned Transcript and inspect which audio was
// submitted for transcription.
//
// Example:
//
//	p := &mock.Provider{Result: stt.Transcript{Words: words}}
//	tr, _ := p.Transcribe(ctx, audio)
package mock

import (
	"bytes"
	"context"
	"sync"

	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the recording passed to Transcribe.
	Audio stt.Audio
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result stt.Transcript

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Result, Err. An empty recording
// yields stt.ErrNoAudio like the real providers.
func (p *Provider) Transcribe(ctx context.Context, audio stt.Audio) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := audio
	cp.PCM = bytes.Clone(audio.PCM)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: cp})
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	if len(audio.PCM) == 0 {
		return stt.Transcript{}, stt.ErrNoAudio
	}
	return p.Result, nil
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
