package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// Resample converts mono float32 PCM from srcRate to dstRate using linear
// interpolation. If the rates match or either is non-positive, the input is
// returned unchanged.
func Resample(pcm []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) == 0 {
		return pcm
	}
	dstSamples := int(int64(len(pcm)) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]float32, dstSamples)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		s0 := pcm[srcIdx]
		s1 := s0
		if srcIdx+1 < len(pcm) {
			s1 = pcm[srcIdx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return out
}

// MonoToStereo duplicates each sample into an interleaved L+R pair.
func MonoToStereo(pcm []float32) []float32 {
	out := make([]float32, len(pcm)*2)
	for i, s := range pcm {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// ToInt16 converts float32 samples to int16, clamping to [-1, 1] first.
func ToInt16(pcm []float32) []int16 {
	out := make([]int16, len(pcm))
	for i, s := range pcm {
		out[i] = int16(clamp(s) * math.MaxInt16)
	}
	return out
}

// Float32ToBytes encodes samples as little-endian IEEE-754 float32.
func Float32ToBytes(pcm []float32) []byte {
	out := make([]byte, len(pcm)*4)
	for i, s := range pcm {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// BytesToFloat32 decodes little-endian float32 samples. A trailing partial
// sample is an error.
func BytesToFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("audio: float32 PCM length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
