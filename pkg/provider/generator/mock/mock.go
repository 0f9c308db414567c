// Package mock provides a test double for the generator.Generator interface.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/generator"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// SampleRate is the rate of the silent audio the mock renders.
const SampleRate = 8000

// GenerateCall records a single Generate invocation.
type GenerateCall struct {
	Params types.MusicalParameters
	// Cancelled reports whether ctx was done when the call returned.
	Cancelled bool
}

// Generator is a mock implementation of generator.Generator. By default it
// renders silence whose length matches params.Duration, capped at
// MaxDuration when set.
type Generator struct {
	mu sync.Mutex

	// Delay is how long Generate blocks before answering. Cancellation of
	// ctx during the delay aborts the call with ctx.Err().
	Delay time.Duration

	// Estimate is returned from EstimateTime.
	Estimate time.Duration

	// MaxDuration caps the rendered length. Zero renders 100ms.
	MaxDuration time.Duration

	// GenerateErr, if non-nil, is returned from Generate.
	GenerateErr error

	// InitErr, if non-nil, is returned from Initialize.
	InitErr error

	// Audio, if non-nil, is returned from Generate instead of silence.
	Audio *types.GeneratedAudio

	GenerateCalls   []GenerateCall
	TransitionCalls int
	InitCalls       int
	CleanupCalls    int
}

// Initialize implements generator.Generator.
func (g *Generator) Initialize(_ context.Context, _ provider.Options) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.InitCalls++
	return g.InitErr
}

// Generate implements generator.Generator.
func (g *Generator) Generate(ctx context.Context, params types.MusicalParameters) (*types.GeneratedAudio, error) {
	g.mu.Lock()
	delay, err, audio := g.Delay, g.GenerateErr, g.Audio
	g.mu.Unlock()

	record := func(cancelled bool) {
		g.mu.Lock()
		g.GenerateCalls = append(g.GenerateCalls, GenerateCall{Params: params, Cancelled: cancelled})
		g.mu.Unlock()
	}

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			record(true)
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	record(false)
	if err != nil {
		return nil, err
	}
	if audio != nil {
		return audio, nil
	}
	return g.silence(params, params.Duration), nil
}

func (g *Generator) silence(params types.MusicalParameters, d time.Duration) *types.GeneratedAudio {
	g.mu.Lock()
	limit := g.MaxDuration
	g.mu.Unlock()
	if limit <= 0 {
		limit = 100 * time.Millisecond
	}
	d = min(d, limit)
	n := int(d * SampleRate / time.Second)
	return &types.GeneratedAudio{
		Samples:    make([]float32, n),
		SampleRate: SampleRate,
		Duration:   time.Duration(n) * time.Second / SampleRate,
		Parameters: params.Clone(),
	}
}

// GenerateTransition implements generator.Generator.
func (g *Generator) GenerateTransition(ctx context.Context, _, to types.MusicalParameters, d time.Duration) (*types.GeneratedAudio, error) {
	g.mu.Lock()
	g.TransitionCalls++
	err := g.GenerateErr
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.silence(to, d), nil
}

// EstimateTime implements generator.Generator.
func (g *Generator) EstimateTime(types.MusicalParameters) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Estimate
}

// SupportedStyles implements generator.Generator.
func (g *Generator) SupportedStyles() []types.Style { return types.AllStyles }

// SupportedInstruments implements generator.Generator.
func (g *Generator) SupportedInstruments() []types.Instrument { return types.AllInstruments }

// Cleanup implements generator.Generator.
func (g *Generator) Cleanup() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CleanupCalls++
	return nil
}

// Calls returns a copy of the recorded Generate calls.
func (g *Generator) Calls() []GenerateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GenerateCall, len(g.GenerateCalls))
	copy(out, g.GenerateCalls)
	return out
}

// SetDelay changes Delay under the lock.
func (g *Generator) SetDelay(d time.Duration) {
	g.mu.Lock()
	g.Delay = d
	g.mu.Unlock()
}

var _ generator.Generator = (*Generator)(nil)
