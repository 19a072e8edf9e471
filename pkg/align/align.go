// Package align maps machine-transcribed speech tokens onto a trusted
// reference script, producing a word-by-word timing map for the script.
//
// The engine runs three stages in sequence:
//
//  1. Tokenization: the script is split into [ReferenceWord] values that keep
//     the surface form for display and a normalized form for comparison.
//  2. Matching: a forward-only cursor walks the recognised tokens. For every
//     reference word a bounded lookahead window is scanned and the candidate
//     with the smallest Levenshtein distance under a length-relative
//     threshold is consumed.
//  3. Interpolation: runs of words that matched nothing receive timestamps
//     linearly spread between the surrounding matched anchors.
//
// The engine is pure: it performs no I/O, holds no state between calls and
// never returns an error. An [Aligner] is read-only after construction and
// safe for concurrent use.
package align

const (
	// DefaultLookahead is the number of upcoming recognised tokens considered
	// as candidates for each reference word.
	DefaultLookahead = 5
)

// RecognizedToken is one unit of speech-recognizer output. Tokens are ordered
// by recognition order; their timestamps are approximate and may be noisy.
type RecognizedToken struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
}

// ReferenceWord is one word of the reference script in reading order.
type ReferenceWord struct {
	// Surface is the word as written, possibly with trailing punctuation.
	Surface string `json:"surface"`

	// Normalized is the comparison form produced by [Normalize].
	Normalized string `json:"normalized"`
}

// AlignedWord is the timing assigned to a single reference word.
type AlignedWord struct {
	// Word is the reference word's surface form.
	Word string `json:"word"`

	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`

	// Matched reports whether the word was anchored to a recognised token.
	// Unmatched words carry interpolated timestamps.
	Matched bool `json:"matched"`

	// TokenIndex is the index of the consumed token in the caller's input
	// slice, or -1 when the word is unmatched.
	TokenIndex int `json:"token_index"`
}

// Stats summarises a single alignment run.
type Stats struct {
	ReferenceWords int `json:"reference_words"`
	Tokens         int `json:"tokens"`
	UsableTokens   int `json:"usable_tokens"`
	Matched        int `json:"matched"`
	Interpolated   int `json:"interpolated"`

	// Coverage is Matched / ReferenceWords, or 0 for an empty script.
	Coverage float64 `json:"coverage"`
}

// Alignment is the detailed result of [Aligner.AlignDetailed].
type Alignment struct {
	Words []AlignedWord `json:"words"`
	Stats Stats         `json:"stats"`
}

// Option is a functional option for configuring an [Aligner].
type Option func(*Aligner)

// WithLookahead sets the size of the candidate window scanned for every
// reference word. Values below 1 are clamped to 1. Default: 5.
func WithLookahead(n int) Option {
	return func(a *Aligner) {
		a.lookahead = max(n, 1)
	}
}

// WithInterpolation selects how the interpolation pass decides which words
// are unmatched. Default: [InterpolateUnmatched].
func WithInterpolation(mode InterpolationMode) Option {
	return func(a *Aligner) {
		if mode.IsValid() {
			a.mode = mode
		}
	}
}

// Aligner aligns recognised tokens against reference scripts. The zero value
// is not usable; construct one with [New].
type Aligner struct {
	lookahead int
	mode      InterpolationMode
}

// New returns an [Aligner] configured with the supplied options.
func New(opts ...Option) *Aligner {
	a := &Aligner{
		lookahead: DefaultLookahead,
		mode:      InterpolateUnmatched,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Lookahead returns the configured candidate window size.
func (a *Aligner) Lookahead() int { return a.lookahead }

// Interpolation returns the configured interpolation mode.
func (a *Aligner) Interpolation() InterpolationMode { return a.mode }

var defaultAligner = New()

// Align aligns tokens against script using the default settings.
func Align(tokens []RecognizedToken, script string) []AlignedWord {
	return defaultAligner.Align(tokens, script)
}

// Align returns one [AlignedWord] per word produced by [Tokenize] for script,
// in script order. It never fails: a blank script yields an empty slice and
// an empty (or unusable) token list yields every word with zero timestamps.
func (a *Aligner) Align(tokens []RecognizedToken, script string) []AlignedWord {
	return a.AlignDetailed(tokens, script).Words
}

// AlignDetailed is like [Aligner.Align] but also reports run statistics.
func (a *Aligner) AlignDetailed(tokens []RecognizedToken, script string) Alignment {
	words := Tokenize(script)
	cands := prepareTokens(tokens)

	stats := Stats{
		ReferenceWords: len(words),
		Tokens:         len(tokens),
		UsableTokens:   len(cands),
	}

	if len(words) == 0 {
		return Alignment{Words: []AlignedWord{}, Stats: stats}
	}

	if len(cands) == 0 {
		out := make([]AlignedWord, len(words))
		for i, w := range words {
			out[i] = AlignedWord{Word: w.Surface, TokenIndex: -1}
		}
		return Alignment{Words: out, Stats: stats}
	}

	matched := a.match(words, cands)
	out, interpolated := interpolate(matched, a.mode)

	for _, w := range out {
		if w.Matched {
			stats.Matched++
		}
	}
	stats.Interpolated = interpolated
	stats.Coverage = float64(stats.Matched) / float64(stats.ReferenceWords)

	return Alignment{Words: out, Stats: stats}
}
