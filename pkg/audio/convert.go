package audio

import (
	"encoding/binary"
	"fmt"
)

// Format describes the sample rate and channel count of 16-bit PCM audio.
type Format struct {
	SampleRate int
	Channels   int
}

// SpeechFormat is the format expected by the speech recognisers: 16 kHz mono.
var SpeechFormat = Format{SampleRate: 16000, Channels: 1}

// String returns a human-readable form, e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Convert converts 16-bit little-endian PCM from one format to another. If the
// formats already match the input is returned unchanged. Multi-channel input
// is down-mixed before resampling so only one channel has to be resampled.
// A trailing partial frame is dropped.
func Convert(pcm []byte, from, to Format) []byte {
	if from == to {
		return pcm
	}
	channels := max(from.Channels, 1)
	if to.Channels == 1 && channels > 1 {
		pcm = DownmixToMono(pcm, channels)
		channels = 1
	}
	if from.SampleRate != to.SampleRate {
		if channels == 1 {
			pcm = ResampleMono16(pcm, from.SampleRate, to.SampleRate)
		} else {
			pcm = resampleInterleaved16(pcm, channels, from.SampleRate, to.SampleRate)
		}
	}
	if channels == 1 && to.Channels == 2 {
		pcm = MonoToStereo(pcm)
	}
	return pcm
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// Input must be little-endian int16 PCM (2 bytes per sample).
func MonoToStereo(pcm []byte) []byte {
	out := make([]byte, (len(pcm)/2)*4)
	for i := 0; i+1 < len(pcm); i += 2 {
		lo, hi := pcm[i], pcm[i+1]
		j := i * 2
		out[j] = lo
		out[j+1] = hi
		out[j+2] = lo
		out[j+3] = hi
	}
	return out
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
func StereoToMono(pcm []byte) []byte {
	return DownmixToMono(pcm, 2)
}

// DownmixToMono averages all channels of each interleaved frame. Uses int32
// arithmetic to prevent overflow and clamps to int16 range.
func DownmixToMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	frameBytes := channels * 2
	frames := len(pcm) / frameBytes
	out := make([]byte, frames*2)
	for i := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(sampleAt(pcm, i*channels+ch))
		}
		avg := min(max(sum/int32(channels), -32768), 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(avg)))
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. The input must be little-endian int16 samples. If srcRate ==
// dstRate, the input is returned unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	return resampleInterleaved16(pcm, 1, srcRate, dstRate)
}

func resampleInterleaved16(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 {
		return pcm
	}
	frameBytes := channels * 2
	if srcRate == dstRate || len(pcm) < frameBytes {
		return pcm
	}
	srcFrames := len(pcm) / frameBytes
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*frameBytes)
	ratio := float64(srcRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)
		next := min(srcIdx+1, srcFrames-1)

		for ch := range channels {
			s0 := sampleAt(pcm, srcIdx*channels+ch)
			s1 := sampleAt(pcm, next*channels+ch)
			v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
			binary.LittleEndian.PutUint16(out[(i*channels+ch)*2:], uint16(v))
		}
	}
	return out
}

// Float32Mono converts 16-bit PCM to mono float32 samples normalised to
// [-1.0, 1.0], averaging all channels per frame. A trailing partial frame is
// ignored.
func Float32Mono(pcm []byte, channels int) []float32 {
	channels = max(channels, 1)
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			sum += float32(sampleAt(pcm, i*channels+ch)) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}
