package audio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"runtime"
	"testing"

	"github.com/MrWong99/scriptsync/pkg/audio"
)

// rawWAV builds a WAV file with an arbitrary fmt tag and bit depth. When
// extra is non-nil it is inserted as a "LIST" chunk before the data chunk.
func rawWAV(format uint16, channels, rate, bits int, data, extra []byte) []byte {
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(0))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, format)
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&b, binary.LittleEndian, uint32(rate*channels*bits/8))
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels*bits/8))
	_ = binary.Write(&b, binary.LittleEndian, uint16(bits))
	if extra != nil {
		b.WriteString("LIST")
		_ = binary.Write(&b, binary.LittleEndian, uint32(len(extra)))
		b.Write(extra)
		if len(extra)%2 == 1 {
			b.WriteByte(0)
		}
	}
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(len(data)))
	b.Write(data)
	return b.Bytes()
}

func TestWAV_RoundTrip(t *testing.T) {
	t.Parallel()

	in := audio.PCM{
		Data:   samplesToBytes([]int16{0, 1000, -1000, 32767, -32768, 42}),
		Format: audio.Format{SampleRate: 22050, Channels: 2},
	}
	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, in); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if buf.Len() != 44+len(in.Data) {
		t.Errorf("encoded size = %d, want %d", buf.Len(), 44+len(in.Data))
	}
	out, err := audio.DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if out.Format != in.Format {
		t.Errorf("Format = %v, want %v", out.Format, in.Format)
	}
	if !bytes.Equal(out.Data, in.Data) {
		t.Errorf("Data = %v, want %v", out.Data, in.Data)
	}
}

func TestDecodeWAV_Encodings(t *testing.T) {
	t.Parallel()

	float32LE := func(vs ...float32) []byte {
		b := make([]byte, 4*len(vs))
		for i, v := range vs {
			binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
		}
		return b
	}

	tests := []struct {
		name   string
		format uint16
		bits   int
		data   []byte
		want   []int16
	}{
		{"8-bit unsigned", 1, 8, []byte{128, 255, 0}, []int16{0, 127 << 8, -128 << 8}},
		{"24-bit", 1, 24, []byte{0xAA, 0x34, 0x12, 0x00, 0x00, 0x80}, []int16{0x1234, -32768}},
		{"32-bit int", 1, 32, []byte{0, 0, 0x34, 0x12}, []int16{0x1234}},
		{"32-bit float", 3, 32, float32LE(0, 1, -1, 2), []int16{0, 32767, -32767, 32767}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pcm, err := audio.DecodeWAV(bytes.NewReader(rawWAV(tt.format, 1, 8000, tt.bits, tt.data, nil)))
			if err != nil {
				t.Fatalf("DecodeWAV: %v", err)
			}
			equalSamples(t, bytesToSamples(pcm.Data), tt.want)
		})
	}
}

func TestDecodeWAV_SkipsUnknownChunks(t *testing.T) {
	t.Parallel()

	data := samplesToBytes([]int16{5, 6})
	pcm, err := audio.DecodeWAV(bytes.NewReader(rawWAV(1, 1, 16000, 16, data, []byte("odd"))))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	equalSamples(t, bytesToSamples(pcm.Data), []int16{5, 6})
}

func TestDecodeWAV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      []byte
		wantErr error
	}{
		{"empty", nil, audio.ErrNotWAV},
		{"not riff", []byte("ID3\x04\x00\x00\x00\x00\x00\x00\x00\x00"), audio.ErrNotWAV},
		{"adpcm", rawWAV(2, 1, 8000, 4, []byte{1, 2}, nil), audio.ErrUnsupportedEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := audio.DecodeWAV(bytes.NewReader(tt.in)); !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}

	noData := rawWAV(1, 1, 8000, 16, nil, nil)
	noData = noData[:len(noData)-8] // strip the data chunk header
	if _, err := audio.DecodeWAV(bytes.NewReader(noData)); err == nil {
		t.Error("expected error for missing data chunk")
	}
}

func TestDecodeWAV_OversizedFmtChunk(t *testing.T) {
	// Not parallel: measures allocations.
	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(0))
	hdr.WriteString("WAVEfmt ")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(0x7FFFFFFF))

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := audio.DecodeWAV(bytes.NewReader(hdr.Bytes()))
	runtime.ReadMemStats(&after)
	if err == nil {
		t.Fatal("expected error for truncated fmt chunk")
	}
	if delta := after.TotalAlloc - before.TotalAlloc; delta > 1<<20 {
		t.Errorf("DecodeWAV allocated %d bytes for a 20-byte header", delta)
	}
}

func TestDecodeWAV_SkipsFmtExtension(t *testing.T) {
	t.Parallel()

	// A 16-bit mono fmt chunk followed by 50 extension bytes.
	var b bytes.Buffer
	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, uint32(0))
	b.WriteString("WAVEfmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(66))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1))
	_ = binary.Write(&b, binary.LittleEndian, uint32(16000))
	_ = binary.Write(&b, binary.LittleEndian, uint32(32000))
	_ = binary.Write(&b, binary.LittleEndian, uint16(2))
	_ = binary.Write(&b, binary.LittleEndian, uint16(16))
	b.Write(make([]byte, 50))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, uint32(4))
	b.Write([]byte{1, 0, 2, 0})

	pcm, err := audio.DecodeWAV(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if pcm.SampleRate != 16000 || pcm.Channels != 1 || !bytes.Equal(pcm.Data, []byte{1, 0, 2, 0}) {
		t.Errorf("DecodeWAV() = %+v", pcm)
	}
}
