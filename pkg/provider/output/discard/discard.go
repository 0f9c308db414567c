// Package discard implements an output.Output that drops audio while
// keeping real-time playback timing. It serves headless deployments and
// demos where the MIDI payload or the history store is the product.
package discard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
)

// Output discards audio. Blocking Play waits for the buffer's duration
// divided by speed.
type Output struct {
	mu      sync.Mutex
	speed   float64
	volume  float64
	stop    chan struct{}
	played  time.Duration
	started bool
}

// New returns a real-time discard output.
func New() *Output {
	return &Output{speed: 1, volume: 1, stop: make(chan struct{})}
}

// Initialize reads speed (playback clock multiplier, default 1).
func (o *Output) Initialize(_ context.Context, opts provider.Options) error {
	if err := opts.Check("speed"); err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	speed, err := opts.Float("speed", 1)
	if err != nil {
		return fmt.Errorf("discard: %w", err)
	}
	if speed <= 0 {
		return fmt.Errorf("discard: speed must be positive, got %v", speed)
	}
	o.mu.Lock()
	o.speed, o.started = speed, true
	o.mu.Unlock()
	return nil
}

// Play implements output.Output.
func (o *Output) Play(ctx context.Context, samples []float32, sampleRate int, blocking bool) error {
	if err := output.CheckPlay(samples, sampleRate); err != nil {
		return err
	}
	d := time.Duration(len(samples)) * time.Second / time.Duration(sampleRate)

	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return output.ErrNotInitialized
	}
	// Replacing playback interrupts a blocked caller.
	close(o.stop)
	o.stop = make(chan struct{})
	stop := o.stop
	wait := time.Duration(float64(d) / o.speed)
	o.played += d
	o.mu.Unlock()

	if !blocking {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-stop:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Stop implements output.Output.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	close(o.stop)
	o.stop = make(chan struct{})
	return nil
}

// SetVolume implements output.Output.
func (o *Output) SetVolume(v float64) error {
	if err := output.CheckVolume(v); err != nil {
		return err
	}
	o.mu.Lock()
	o.volume = v
	o.mu.Unlock()
	return nil
}

// ListDevices implements output.Output.
func (o *Output) ListDevices(context.Context) ([]output.Device, error) {
	return []output.Device{{ID: "discard", Name: "Discard", Default: true}}, nil
}

// Close implements output.Output.
func (o *Output) Close() error { return o.Stop() }

// Played returns the total duration of audio handed to Play.
func (o *Output) Played() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.played
}

var _ output.Output = (*Output)(nil)
