package stt

import (
	"time"

	"github.com/MrWong99/scriptsync/pkg/align"
)

// Tokens converts the transcript's words into recognised tokens with
// millisecond timestamps. Negative offsets are clamped to 0, an end before
// its start is clamped to the start, and confidence is clamped to [0, 1].
func Tokens(t Transcript) []align.RecognizedToken {
	out := make([]align.RecognizedToken, 0, len(t.Words))
	for _, w := range t.Words {
		start := max(w.Start, 0)
		end := max(w.End, start)
		out = append(out, align.RecognizedToken{
			Text:       w.Word,
			StartMs:    start.Milliseconds(),
			EndMs:      end.Milliseconds(),
			Confidence: min(max(w.Confidence, 0), 1),
		})
	}
	return out
}

// Seconds converts a fractional second offset, as reported by most JSON
// transcription APIs, to a [time.Duration] rounded to the millisecond.
func Seconds(s float64) time.Duration {
	return (time.Duration(s*1000+0.5) * time.Millisecond)
}
