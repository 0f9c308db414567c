// Package mock provides a test double for the output.Output interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
)

// PlayCall records a single Play invocation.
type PlayCall struct {
	Samples    []float32
	SampleRate int
	Blocking   bool
}

// Output is a mock implementation of output.Output. Play never blocks.
type Output struct {
	mu sync.Mutex

	// PlayErrs are returned by successive Play calls; once exhausted PlayErr
	// is used.
	PlayErrs []error
	PlayErr  error
	InitErr  error

	Devices []output.Device

	PlayCalls  []PlayCall
	StopCalls  int
	CloseCalls int
	InitCalls  int
	Volume     float64
}

// Initialize implements output.Output.
func (o *Output) Initialize(context.Context, provider.Options) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.InitCalls++
	return o.InitErr
}

// Play implements output.Output.
func (o *Output) Play(_ context.Context, samples []float32, sampleRate int, blocking bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PlayCalls = append(o.PlayCalls, PlayCall{Samples: samples, SampleRate: sampleRate, Blocking: blocking})
	if len(o.PlayErrs) > 0 {
		err := o.PlayErrs[0]
		o.PlayErrs = o.PlayErrs[1:]
		return err
	}
	return o.PlayErr
}

// Stop implements output.Output.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.StopCalls++
	return nil
}

// SetVolume implements output.Output.
func (o *Output) SetVolume(v float64) error {
	if err := output.CheckVolume(v); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Volume = v
	return nil
}

// ListDevices implements output.Output.
func (o *Output) ListDevices(context.Context) ([]output.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Devices, nil
}

// Close implements output.Output.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CloseCalls++
	return nil
}

// Plays returns a copy of the recorded Play calls.
func (o *Output) Plays() []PlayCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PlayCall, len(o.PlayCalls))
	copy(out, o.PlayCalls)
	return out
}

// SetPlayErr changes PlayErr under the lock.
func (o *Output) SetPlayErr(err error) {
	o.mu.Lock()
	o.PlayErr = err
	o.mu.Unlock()
}

// Stops returns the number of Stop calls.
func (o *Output) Stops() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.StopCalls
}

var _ output.Output = (*Output)(nil)
