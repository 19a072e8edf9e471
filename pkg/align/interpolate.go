package align

import "slices"

// InterpolationMode selects how the interpolation pass recognises words
// that need timestamps.
type InterpolationMode string

const (
	// InterpolateUnmatched treats exactly the words with Matched == false as
	// unmatched. A matched token that legitimately starts and ends at 0 keeps
	// its timestamps.
	InterpolateUnmatched InterpolationMode = "unmatched"

	// InterpolateZeroTimestamps treats any word with StartMs == EndMs == 0 as
	// unmatched, regardless of Matched. Unmatched placeholders emitted after
	// the first match carry the previous end time and are therefore left
	// as zero-width entries.
	InterpolateZeroTimestamps InterpolationMode = "zero_timestamps"
)

// IsValid reports whether m is a recognised interpolation mode.
func (m InterpolationMode) IsValid() bool {
	return m == InterpolateUnmatched || m == InterpolateZeroTimestamps
}

func (m InterpolationMode) unmatched(w AlignedWord) bool {
	if m == InterpolateZeroTimestamps {
		return w.StartMs == 0 && w.EndMs == 0
	}
	return !w.Matched
}

// Interpolate returns a copy of words in which every maximal run of
// unmatched entries is spread linearly between the end of the entry before
// the run (0 at the start) and the start of the entry after it (the same
// boundary again at the end of the sequence).
//
// Anchors that are out of order produce inverted or zero-width intervals;
// they are passed through as is.
func Interpolate(words []AlignedWord, mode InterpolationMode) []AlignedWord {
	out, _ := interpolate(words, mode)
	return out
}

// interpolate implements [Interpolate] and also reports how many entries
// were rewritten.
func interpolate(words []AlignedWord, mode InterpolationMode) ([]AlignedWord, int) {
	out := slices.Clone(words)
	rewritten := 0

	i := 0
	for i < len(out) {
		if !mode.unmatched(out[i]) {
			i++
			continue
		}

		j := i
		for j < len(out) && mode.unmatched(out[j]) {
			j++
		}

		var lo int64
		if i > 0 {
			lo = out[i-1].EndMs
		}
		hi := lo
		if j < len(out) {
			hi = out[j].StartMs
		}

		n := j - i
		step := (hi - lo) / int64(n+1)
		for o := 1; o <= n; o++ {
			start := lo + int64(o)*step
			w := &out[i+o-1]
			w.StartMs = start
			w.EndMs = min(start+step, hi)
		}
		rewritten += n
		i = j
	}
	return out, rewritten
}
