package stt

import "time"

// Transcript is a complete speech-to-text result for one audio recording.
type Transcript struct {
	// Text is the full transcribed text as reported by the provider.
	Text string

	// Language is the detected or requested language, if reported.
	Language string

	// Words contains per-word timing in recognition order. Providers that
	// cannot report word timing return an error instead of an empty slice.
	Words []WordDetail

	// Duration is the length of the transcribed audio, if reported.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Audio is a recording of 16-bit signed little-endian PCM samples.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration returns the playback length of a.
func (a Audio) Duration() time.Duration {
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	samples := len(a.PCM) / (2 * a.Channels)
	return time.Duration(samples) * time.Second / time.Duration(a.SampleRate)
}
