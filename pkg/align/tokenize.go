package align

import "regexp"

// wordPattern matches a run of word characters with optional trailing
// sentence punctuation, or a lone punctuation character.
var wordPattern = regexp.MustCompile(`[\p{L}\p{M}\p{N}'’ʼ]+[.,!?;:]*|[.,!?;:]`)

// Tokenize splits script into reference words in reading order. Words whose
// normalized form is empty, such as isolated punctuation, are dropped. A
// blank script yields an empty slice.
func Tokenize(script string) []ReferenceWord {
	matches := wordPattern.FindAllString(script, -1)
	words := make([]ReferenceWord, 0, len(matches))
	for _, m := range matches {
		n := Normalize(m)
		if n == "" {
			continue
		}
		words = append(words, ReferenceWord{Surface: m, Normalized: n})
	}
	return words
}
