// Package output defines the Output interface for audio playback devices.
//
// An Output plays one buffer at a time. Play replaces whatever is currently
// sounding, so the transition manager can hand over a blended buffer at any
// playhead position.
package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/sonoscope/pkg/provider"
)

// ErrNotInitialized is returned by outputs used before Initialize.
var ErrNotInitialized = errors.New("output: not initialized")

// Device describes a playback device.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Default    bool   `json:"default"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// Output is an audio playback sink. Implementations must be safe for
// concurrent use.
type Output interface {
	// Initialize opens the device. Unknown option keys are an error.
	Initialize(ctx context.Context, opts provider.Options) error

	// Play starts samples (mono float32 in [-1,1]) at sampleRate, replacing
	// current playback. When blocking is true Play returns after the buffer
	// has played, Stop was called, or ctx is done.
	Play(ctx context.Context, samples []float32, sampleRate int, blocking bool) error

	// Stop silences the output. It is not an error to stop an idle output.
	Stop() error

	// SetVolume sets the playback gain in [0,1].
	SetVolume(v float64) error

	// ListDevices returns the devices this output can address.
	ListDevices(ctx context.Context) ([]Device, error)

	// Close releases the device.
	Close() error
}

// CheckVolume validates a SetVolume argument.
func CheckVolume(v float64) error {
	if v < 0 || v > 1 || v != v {
		return fmt.Errorf("output: volume must be in [0,1], got %v", v)
	}
	return nil
}

// CheckPlay validates Play arguments shared by every output.
func CheckPlay(samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("output: sample rate must be positive, got %d", sampleRate)
	}
	if len(samples) == 0 {
		return errors.New("output: empty buffer")
	}
	return nil
}
