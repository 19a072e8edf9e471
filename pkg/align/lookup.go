package align

// WordAt returns the index of the first word whose [StartMs, EndMs) interval
// contains positionMs, or -1 when no word does. Zero-width and inverted
// intervals never contain a position.
func WordAt(words []AlignedWord, positionMs int64) int {
	for i, w := range words {
		if positionMs >= w.StartMs && positionMs < w.EndMs {
			return i
		}
	}
	return -1
}

// Duration returns the end time of the last word, or 0 for an empty slice.
func Duration(words []AlignedWord) int64 {
	if len(words) == 0 {
		return 0
	}
	return words[len(words)-1].EndMs
}

// SeekTarget returns the start time of the word at index. ok is false when
// index is out of range.
func SeekTarget(words []AlignedWord, index int) (positionMs int64, ok bool) {
	if index < 0 || index >= len(words) {
		return 0, false
	}
	return words[index].StartMs, true
}
