package stt_test

import (
	"testing"
	"time"

	"github.com/MrWong99/scriptsync/pkg/align"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

func TestTokens(t *testing.T) {
	t.Parallel()

	tr := stt.Transcript{
		Words: []stt.WordDetail{
			{Word: "hello", Start: 0, End: 500 * time.Millisecond, Confidence: 0.9},
			{Word: "early", Start: -20 * time.Millisecond, End: 600 * time.Millisecond, Confidence: 1.4},
			{Word: "inverted", Start: 900 * time.Millisecond, End: 800 * time.Millisecond, Confidence: -0.2},
		},
	}
	got := stt.Tokens(tr)
	want := []align.RecognizedToken{
		{Text: "hello", StartMs: 0, EndMs: 500, Confidence: 0.9},
		{Text: "early", StartMs: 0, EndMs: 600, Confidence: 1},
		{Text: "inverted", StartMs: 900, EndMs: 900, Confidence: 0},
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestTokens_Empty(t *testing.T) {
	t.Parallel()

	got := stt.Tokens(stt.Transcript{})
	if got == nil || len(got) != 0 {
		t.Errorf("Tokens(empty) = %#v, want empty non-nil slice", got)
	}
}

func TestSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want time.Duration
	}{
		{0, 0},
		{0.5, 500 * time.Millisecond},
		{1.2345, 1235 * time.Millisecond},
		{12.0, 12 * time.Second},
	}
	for _, tt := range tests {
		if got := stt.Seconds(tt.in); got != tt.want {
			t.Errorf("Seconds(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestAudio_Duration(t *testing.T) {
	t.Parallel()

	a := stt.Audio{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 1}
	if got := a.Duration(); got != time.Second {
		t.Errorf("Duration() = %v, want 1s", got)
	}
	if got := (stt.Audio{PCM: make([]byte, 10)}).Duration(); got != 0 {
		t.Errorf("Duration() with no format = %v, want 0", got)
	}
}
