package stt

import (
	"strings"
	"time"
	"unicode"
)

// Piece is one sub-word token emitted by whisper.cpp.
type Piece struct {
	Text       string
	P          float64
	Start, End time.Duration
}

// MergePieces joins whisper.cpp sub-word tokens into words. A token that
// begins with whitespace, or follows a token ending in sentence punctuation
// (.,!?;:) while not being punctuation itself, starts a new word; any other
// token continues the current one. A merged word spans from its first
// piece's start to its last piece's end and its confidence is the lowest
// piece probability.
func MergePieces(pieces []Piece) []WordDetail {
	words := []WordDetail{}
	var cur *WordDetail
	var b strings.Builder
	afterPunct := false

	flush := func() {
		if cur == nil {
			return
		}
		cur.Word = strings.TrimSpace(b.String())
		if cur.Word != "" {
			words = append(words, *cur)
		}
		cur = nil
		b.Reset()
	}

	for _, pc := range pieces {
		if pc.Text == "" {
			continue
		}
		if cur == nil || startsWithSpace(pc.Text) || (afterPunct && !isPunctOnly(pc.Text)) {
			flush()
			cur = &WordDetail{Start: pc.Start, End: pc.End, Confidence: pc.P}
		} else {
			cur.End = max(cur.End, pc.End)
			cur.Confidence = min(cur.Confidence, pc.P)
		}
		b.WriteString(pc.Text)
		afterPunct = endsWithPunct(pc.Text)
	}
	flush()
	return words
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return false
}

func endsWithPunct(s string) bool {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	return s != "" && strings.ContainsRune(sentencePunct, rune(s[len(s)-1]))
}

func isPunctOnly(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && strings.Trim(s, sentencePunct) == ""
}

const sentencePunct = ".,!?;:"
