// Package audio holds the float32 PCM helpers shared by generators, the
// transition manager and outputs: resampling, sample format conversion and
// the gain ramps used for fades and crossfades.
//
// All buffers are mono unless a function says otherwise.
package audio

import "time"

// Samples converts a duration to a sample count at rate.
func Samples(d time.Duration, rate int) int {
	if d <= 0 || rate <= 0 {
		return 0
	}
	return int(int64(d) * int64(rate) / int64(time.Second))
}

// CrossfadeGains returns the linear, complementary gains applied to the old
// and new stream at sample i of an n-sample overlap. gOld+gNew is always 1;
// the old stream starts at full gain.
func CrossfadeGains(i, n int) (gOld, gNew float32) {
	if n <= 0 {
		return 0, 1
	}
	gNew = float32(i) / float32(n)
	if gNew > 1 {
		gNew = 1
	}
	return 1 - gNew, gNew
}

// Crossfade overlaps the last overlap samples of oldTail with the first
// overlap samples of newHead under complementary linear ramps and sums them.
// The overlap is clamped to both lengths, so the result is always
// len(oldTail)+len(newHead)-overlap samples long.
func Crossfade(oldTail, newHead []float32, overlap int) []float32 {
	overlap = max(0, min(overlap, len(oldTail), len(newHead)))
	out := make([]float32, 0, len(oldTail)+len(newHead)-overlap)

	lead := len(oldTail) - overlap
	out = append(out, oldTail[:lead]...)
	for i := range overlap {
		gOld, gNew := CrossfadeGains(i, overlap)
		out = append(out, oldTail[lead+i]*gOld+newHead[i]*gNew)
	}
	return append(out, newHead[overlap:]...)
}

// FadeOut returns a copy of pcm truncated to n samples with a linear ramp
// from full gain to silence.
func FadeOut(pcm []float32, n int) []float32 {
	n = max(0, min(n, len(pcm)))
	out := make([]float32, n)
	for i := range n {
		out[i] = pcm[i] * (1 - float32(i+1)/float32(n))
	}
	return out
}

// FadeIn returns a copy of pcm whose first n samples ramp up linearly from
// silence.
func FadeIn(pcm []float32, n int) []float32 {
	n = max(0, min(n, len(pcm)))
	out := make([]float32, len(pcm))
	copy(out, pcm)
	for i := range n {
		out[i] *= float32(i) / float32(n)
	}
	return out
}

// Gain scales pcm in place.
func Gain(pcm []float32, g float32) {
	for i := range pcm {
		pcm[i] *= g
	}
}
