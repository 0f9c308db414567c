package types

import (
	"fmt"
	"time"
)

// durationTolerance is the minimum slack allowed between a GeneratedAudio's
// declared duration and its sample count.
const durationTolerance = 20 * time.Millisecond

// GeneratedAudio is a rendered musical state. Samples are mono float32 in
// [-1, 1].
type GeneratedAudio struct {
	Samples    []float32
	SampleRate int
	Duration   time.Duration
	Parameters MusicalParameters

	// MIDI is an optional Standard MIDI File rendering of the same music.
	MIDI []byte

	// GenerationTime is the wall-clock time the generator spent, if known.
	GenerationTime time.Duration
}

// SampleDuration returns the playback length implied by the buffer.
func (a *GeneratedAudio) SampleDuration() time.Duration {
	if a.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(a.Samples)) * time.Second / time.Duration(a.SampleRate)
}

// Validate checks the sample rate and that Duration agrees with the buffer
// length within max(20ms, 1%).
func (a *GeneratedAudio) Validate() error {
	if a.SampleRate <= 0 {
		return fmt.Errorf("types: sample rate must be positive, got %d", a.SampleRate)
	}
	actual := a.SampleDuration()
	diff := actual - a.Duration
	if diff < 0 {
		diff = -diff
	}
	tol := max(durationTolerance, a.Duration/100)
	if diff > tol {
		return fmt.Errorf("types: audio duration %s disagrees with %d samples at %d Hz (%s)",
			a.Duration, len(a.Samples), a.SampleRate, actual)
	}
	return nil
}
