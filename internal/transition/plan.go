package transition

import (
	"time"

	"github.com/MrWong99/sonoscope/pkg/audio"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// plan is the stream handed to the output for one transition.
type plan struct {
	mode    Mode
	samples []float32
	rate    int
	// region is how long the blended part lasts from the handoff.
	region time.Duration
}

// tail returns the unplayed part of cur given how long it has been playing.
func tail(cur []float32, rate int, elapsed time.Duration) []float32 {
	pos := audio.Samples(max(0, elapsed), rate)
	if pos >= len(cur) {
		return nil
	}
	return cur[pos:]
}

// build blends the unplayed old tail into next. An empty tail degrades
// every mode to instant. next is resampled to rate when rate is set.
func build(mode Mode, old []float32, oldParams types.MusicalParameters, rate int, next *types.GeneratedAudio, crossfade time.Duration) plan {
	if rate <= 0 || len(old) == 0 {
		return plan{mode: ModeInstant, samples: next.Samples, rate: next.SampleRate}
	}
	incoming := audio.Resample(next.Samples, next.SampleRate, rate)

	switch mode {
	case ModeFade:
		out := audio.FadeOut(old, audio.Samples(oldParams.FadeOut, rate))
		fadeIn := min(audio.Samples(next.Parameters.FadeIn, rate), len(incoming))
		region := len(out) + fadeIn
		out = append(out, audio.FadeIn(incoming, fadeIn)...)
		return plan{mode: ModeFade, samples: out, rate: rate, region: duration(region, rate)}

	case ModeCrossfade:
		n := audio.Samples(crossfade, rate)
		old = old[:min(len(old), n)]
		out := audio.Crossfade(old, incoming, n)
		return plan{mode: ModeCrossfade, samples: out, rate: rate, region: duration(len(old), rate)}

	default:
		return plan{mode: ModeInstant, samples: next.Samples, rate: next.SampleRate}
	}
}

func duration(n, rate int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(rate)
}
