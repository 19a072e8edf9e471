// Package tokenfile reads and writes recognised-token files.
//
// Three JSON layouts are understood:
//
//   - native: a top-level array of {"text","start_ms","end_ms","confidence"}
//     objects, the format written by [Write] and accepted by the HTTP API.
//   - whisper-cpp: the full JSON output of whisper.cpp (-ojf), whose
//     transcription segments carry sub-word tokens with millisecond offsets.
//     Special tokens are dropped and pieces are merged into words.
//   - whisperx: {"segments":[{"words":[{"word","start","end","score"}]}]} with
//     offsets in seconds.
//
// [Read] detects the layout when called with [FormatAuto].
package tokenfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/MrWong99/scriptsync/pkg/align"
	"github.com/MrWong99/scriptsync/pkg/provider/stt"
)

// Format names a token file layout.
type Format string

const (
	FormatAuto       Format = ""
	FormatNative     Format = "native"
	FormatWhisperCpp Format = "whisper-cpp"
	FormatWhisperX   Format = "whisperx"
)

// ErrUnknownFormat is returned when a file matches none of the known layouts
// or a format name is not recognised.
var ErrUnknownFormat = errors.New("tokenfile: unknown format")

// ParseFormat maps a user-supplied name to a [Format]. "auto" and the empty
// string both select detection.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case "auto", FormatAuto:
		return FormatAuto, nil
	case FormatNative, FormatWhisperCpp, FormatWhisperX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// ReadFile reads tokens from the file at path. See [Read].
func ReadFile(path string, format Format) ([]align.RecognizedToken, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("tokenfile: open: %w", err)
	}
	defer f.Close()
	return Read(f, format)
}

// Read decodes recognised tokens from r. With [FormatAuto] the layout is
// detected from the document shape. The detected or requested format is
// returned alongside the tokens.
func Read(r io.Reader, format Format) ([]align.RecognizedToken, Format, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("tokenfile: read: %w", err)
	}
	if format == FormatAuto {
		if format, err = Detect(data); err != nil {
			return nil, "", err
		}
	}

	var tokens []align.RecognizedToken
	switch format {
	case FormatNative:
		tokens, err = decodeNative(data)
	case FormatWhisperCpp:
		tokens, err = decodeWhisperCpp(data)
	case FormatWhisperX:
		tokens, err = decodeWhisperX(data)
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, "", fmt.Errorf("tokenfile: decode %s: %w", format, err)
	}
	return tokens, format, nil
}

// Detect inspects a JSON document and reports its layout.
func Detect(data []byte) (Format, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty document", ErrUnknownFormat)
	}
	switch data[0] {
	case '[':
		return FormatNative, nil
	case '{':
	default:
		return "", fmt.Errorf("%w: not a JSON array or object", ErrUnknownFormat)
	}

	var probe struct {
		Transcription json.RawMessage `json:"transcription"`
		Segments      json.RawMessage `json:"segments"`
		Tokens        json.RawMessage `json:"tokens"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	switch {
	case probe.Transcription != nil:
		return FormatWhisperCpp, nil
	case probe.Segments != nil:
		return FormatWhisperX, nil
	case probe.Tokens != nil:
		return FormatNative, nil
	}
	return "", ErrUnknownFormat
}

// Write encodes tokens in the native layout.
func Write(w io.Writer, tokens []align.RecognizedToken) error {
	if tokens == nil {
		tokens = []align.RecognizedToken{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tokens); err != nil {
		return fmt.Errorf("tokenfile: write: %w", err)
	}
	return nil
}

// decodeNative accepts a bare array or an object wrapping it under "tokens".
func decodeNative(data []byte) ([]align.RecognizedToken, error) {
	var tokens []align.RecognizedToken
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Tokens []align.RecognizedToken `json:"tokens"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		tokens = wrapped.Tokens
	} else if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []align.RecognizedToken{}
	}
	return tokens, nil
}

type offsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type whisperCppDoc struct {
	Transcription []struct {
		Text    string  `json:"text"`
		Offsets offsets `json:"offsets"`
		Tokens  []struct {
			Text    string  `json:"text"`
			Offsets offsets `json:"offsets"`
			P       float64 `json:"p"`
		} `json:"tokens"`
	} `json:"transcription"`
}

func decodeWhisperCpp(data []byte) ([]align.RecognizedToken, error) {
	var doc whisperCppDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var pieces []stt.Piece
	for _, seg := range doc.Transcription {
		for _, tok := range seg.Tokens {
			if isSpecialToken(tok.Text) {
				continue
			}
			pieces = append(pieces, stt.Piece{
				Text:  tok.Text,
				P:     tok.P,
				Start: ms(tok.Offsets.From),
				End:   ms(tok.Offsets.To),
			})
		}
	}
	return stt.Tokens(stt.Transcript{Words: stt.MergePieces(pieces)}), nil
}

// isSpecialToken reports whisper.cpp control tokens such as [_BEG_] and
// [_TT_150].
func isSpecialToken(s string) bool {
	return strings.HasPrefix(s, "[_") && strings.HasSuffix(s, "]")
}

type whisperXDoc struct {
	Segments []struct {
		Words []struct {
			Word  string   `json:"word"`
			Start *float64 `json:"start"`
			End   *float64 `json:"end"`
			Score *float64 `json:"score"`
		} `json:"words"`
	} `json:"segments"`
}

// decodeWhisperX converts word offsets from seconds. WhisperX leaves start
// and end unset for words it could not align (typically numerals); those
// words are placed at the previous word's end.
func decodeWhisperX(data []byte) ([]align.RecognizedToken, error) {
	var doc whisperXDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var (
		words []stt.WordDetail
		last  float64
	)
	for _, seg := range doc.Segments {
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			start, end, score := last, last, 1.0
			if w.Start != nil {
				start = *w.Start
			}
			if w.End != nil {
				end = *w.End
			} else {
				end = start
			}
			if w.Score != nil {
				score = *w.Score
			}
			last = end
			words = append(words, stt.WordDetail{
				Word:       text,
				Start:      stt.Seconds(start),
				End:        stt.Seconds(end),
				Confidence: score,
			})
		}
	}
	return stt.Tokens(stt.Transcript{Words: words}), nil
}

func ms(n int64) time.Duration { return time.Duration(n) * time.Millisecond }
