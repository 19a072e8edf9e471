package align

import (
	"math"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// candidate is a recognised token prepared for matching.
type candidate struct {
	text    string
	startMs int64
	endMs   int64

	// index is the token's position in the caller's input slice.
	index int
}

// prepareTokens normalizes every token and drops those whose normalized text
// is empty. Input order is preserved.
func prepareTokens(tokens []RecognizedToken) []candidate {
	cands := make([]candidate, 0, len(tokens))
	for i, t := range tokens {
		n := Normalize(t.Text)
		if n == "" {
			continue
		}
		cands = append(cands, candidate{
			text:    n,
			startMs: t.StartMs,
			endMs:   t.EndMs,
			index:   i,
		})
	}
	return cands
}

// Levenshtein returns the minimum number of single-rune insertions,
// deletions and substitutions needed to turn a into b.
func Levenshtein(a, b string) int {
	return matchr.Levenshtein(a, b)
}

// Threshold returns the largest edit distance at which a candidate is still
// accepted for the normalized word: max(1, runes/3).
func Threshold(normalized string) int {
	return max(1, utf8.RuneCountInString(normalized)/3)
}

// match walks the reference words once, carrying the token cursor and the
// end time of the last emitted word. Unmatched words get a zero-width
// placeholder at that end time and do not move the cursor.
func (a *Aligner) match(words []ReferenceWord, cands []candidate) []AlignedWord {
	out := make([]AlignedWord, 0, len(words))
	cursor := 0
	var prevEnd int64

	for _, w := range words {
		k := bestCandidate(w.Normalized, cands, cursor, a.lookahead)
		if k < 0 {
			out = append(out, AlignedWord{
				Word:       w.Surface,
				StartMs:    prevEnd,
				EndMs:      prevEnd,
				TokenIndex: -1,
			})
			continue
		}

		c := cands[k]
		out = append(out, AlignedWord{
			Word:       w.Surface,
			StartMs:    c.startMs,
			EndMs:      c.endMs,
			Matched:    true,
			TokenIndex: c.index,
		})
		prevEnd = c.endMs
		cursor = k + 1
	}
	return out
}

// bestCandidate returns the index in cands of the closest eligible token in
// the window [from, from+lookahead), or -1. Ties go to the earliest index.
func bestCandidate(word string, cands []candidate, from, lookahead int) int {
	if word == "" || from >= len(cands) {
		return -1
	}
	end := min(from+lookahead, len(cands))
	limit := Threshold(word)

	best, bestDist := -1, math.MaxInt
	for i := from; i < end; i++ {
		d := Levenshtein(word, cands[i].text)
		if d <= limit && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
