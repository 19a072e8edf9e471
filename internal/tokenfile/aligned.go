package tokenfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/MrWong99/scriptsync/pkg/align"
)

// ReadAlignedFile reads aligned words from path. See [ReadAligned].
func ReadAlignedFile(path string) ([]align.AlignedWord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tokenfile: open: %w", err)
	}
	defer f.Close()
	return ReadAligned(f)
}

// ReadAligned decodes aligned words written by the align command or returned
// by the HTTP API. Both a bare array and an {"words": [...]} object are
// accepted.
func ReadAligned(r io.Reader) ([]align.AlignedWord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tokenfile: read: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrUnknownFormat)
	}

	var words []align.AlignedWord
	switch data[0] {
	case '[':
		err = json.Unmarshal(data, &words)
	case '{':
		var res align.Alignment
		err = json.Unmarshal(data, &res)
		words = res.Words
	default:
		return nil, fmt.Errorf("%w: not a JSON array or object", ErrUnknownFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("tokenfile: decode aligned words: %w", err)
	}
	if words == nil {
		words = []align.AlignedWord{}
	}
	return words, nil
}

// WriteAligned encodes an alignment result as indented JSON.
func WriteAligned(w io.Writer, res align.Alignment) error {
	if res.Words == nil {
		res.Words = []align.AlignedWord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("tokenfile: write aligned: %w", err)
	}
	return nil
}
