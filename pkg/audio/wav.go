package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrNotWAV is returned by DecodeWAV when the input is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("audio: not a RIFF/WAVE file")

// ErrUnsupportedEncoding is returned by DecodeWAV for sample encodings other
// than 8/16/24/32-bit integer PCM and 32-bit IEEE float.
var ErrUnsupportedEncoding = errors.New("audio: unsupported WAV encoding")

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE

	// WAVE_FORMAT_EXTENSIBLE is the largest fmt layout we read; any
	// remainder is skipped.
	maxFmtBytes = 40
)

// PCM is decoded 16-bit signed little-endian audio together with its format.
type PCM struct {
	Data []byte
	Format
}

// DecodeWAV reads a RIFF/WAVE stream and returns its samples as 16-bit signed
// little-endian PCM. Integer PCM of 8, 16, 24 or 32 bits and 32-bit float are
// accepted; unknown chunks are skipped.
func DecodeWAV(r io.Reader) (PCM, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return PCM{}, fmt.Errorf("%w: %w", ErrNotWAV, err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return PCM{}, ErrNotWAV
	}

	var (
		format     uint16
		channels   int
		sampleRate int
		bits       int
		haveFmt    bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return PCM{}, errors.New("audio: WAV has no data chunk")
			}
			return PCM{}, fmt.Errorf("audio: read chunk header: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return PCM{}, fmt.Errorf("audio: fmt chunk too short (%d bytes)", size)
			}
			buf := make([]byte, min(size, maxFmtBytes))
			if _, err := io.ReadFull(r, buf); err != nil {
				return PCM{}, fmt.Errorf("audio: read fmt chunk: %w", err)
			}
			if rest := size - int64(len(buf)); rest > 0 {
				if _, err := io.CopyN(io.Discard, r, rest); err != nil {
					return PCM{}, fmt.Errorf("audio: read fmt chunk: %w", err)
				}
			}
			format = binary.LittleEndian.Uint16(buf[0:2])
			channels = int(binary.LittleEndian.Uint16(buf[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(buf[4:8]))
			bits = int(binary.LittleEndian.Uint16(buf[14:16]))
			if format == wavFormatExtensible && len(buf) >= 26 {
				// The first two bytes of the sub-format GUID carry the real tag.
				format = binary.LittleEndian.Uint16(buf[24:26])
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return PCM{}, errors.New("audio: WAV data chunk before fmt chunk")
			}
			if channels <= 0 || sampleRate <= 0 {
				return PCM{}, fmt.Errorf("audio: invalid WAV format %d Hz, %d channels", sampleRate, channels)
			}
			raw, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return PCM{}, fmt.Errorf("audio: read data chunk: %w", err)
			}
			data, err := to16(raw, format, bits)
			if err != nil {
				return PCM{}, err
			}
			// Drop a trailing partial frame.
			data = data[:len(data)-len(data)%(2*channels)]
			return PCM{Data: data, Format: Format{SampleRate: sampleRate, Channels: channels}}, nil
		default:
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return PCM{}, fmt.Errorf("audio: skip %q chunk: %w", id, err)
			}
		}
		if size%2 == 1 {
			// Chunks are word aligned.
			if _, err := io.CopyN(io.Discard, r, 1); err != nil && !errors.Is(err, io.EOF) {
				return PCM{}, fmt.Errorf("audio: skip pad byte: %w", err)
			}
		}
	}
}

// to16 converts raw WAV samples to 16-bit signed little-endian PCM.
func to16(raw []byte, format uint16, bits int) ([]byte, error) {
	switch {
	case format == wavFormatPCM && bits == 16:
		return raw[:len(raw)-len(raw)%2], nil
	case format == wavFormatPCM && bits == 8:
		out := make([]byte, len(raw)*2)
		for i, b := range raw {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(int(b)-128)<<8))
		}
		return out, nil
	case format == wavFormatPCM && bits == 24:
		n := len(raw) / 3
		out := make([]byte, n*2)
		for i := range n {
			// Keep the two most significant bytes.
			out[i*2] = raw[i*3+1]
			out[i*2+1] = raw[i*3+2]
		}
		return out, nil
	case format == wavFormatPCM && bits == 32:
		n := len(raw) / 4
		out := make([]byte, n*2)
		for i := range n {
			out[i*2] = raw[i*4+2]
			out[i*2+1] = raw[i*4+3]
		}
		return out, nil
	case format == wavFormatFloat && bits == 32:
		n := len(raw) / 4
		out := make([]byte, n*2)
		for i := range n {
			f := math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			v := min(max(float64(f)*32767, -32768), 32767)
			binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: format tag %d, %d bits", ErrUnsupportedEncoding, format, bits)
}

// EncodeWAV writes 16-bit signed little-endian PCM as a canonical RIFF/WAVE
// stream.
func EncodeWAV(w io.Writer, pcm PCM) error {
	const bps = 16
	channels := max(pcm.Channels, 1)
	dataSize := len(pcm.Data)

	var hdr bytes.Buffer
	hdr.Grow(44)
	hdr.WriteString("RIFF")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(36+dataSize))
	hdr.WriteString("WAVEfmt ")
	for _, v := range []any{
		uint32(16),
		uint16(wavFormatPCM),
		uint16(channels),
		uint32(pcm.SampleRate),
		uint32(pcm.SampleRate * channels * bps / 8),
		uint16(channels * bps / 8),
		uint16(bps),
	} {
		_ = binary.Write(&hdr, binary.LittleEndian, v)
	}
	hdr.WriteString("data")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(dataSize))

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("audio: write WAV header: %w", err)
	}
	if _, err := w.Write(pcm.Data); err != nil {
		return fmt.Errorf("audio: write WAV data: %w", err)
	}
	return nil
}
