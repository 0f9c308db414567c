// Package generator defines the Generator interface that renders a musical
// parameter set into audio.
//
// Generators must honour context cancellation: the processor time-boxes
// every Generate call and abandons the result on timeout.
package generator

import (
	"context"
	"time"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// Generator renders MusicalParameters into GeneratedAudio.
type Generator interface {
	// Initialize prepares the generator. Unknown option keys are an error.
	Initialize(ctx context.Context, opts provider.Options) error

	// Generate renders params. The returned audio must pass
	// [types.GeneratedAudio.Validate].
	Generate(ctx context.Context, params types.MusicalParameters) (*types.GeneratedAudio, error)

	// GenerateTransition renders a bridge of length d that moves from one
	// parameter set to another. The result carries the target parameters.
	GenerateTransition(ctx context.Context, from, to types.MusicalParameters, d time.Duration) (*types.GeneratedAudio, error)

	// EstimateTime predicts how long Generate will take for params. Zero
	// means unknown.
	EstimateTime(params types.MusicalParameters) time.Duration

	SupportedStyles() []types.Style
	SupportedInstruments() []types.Instrument

	// Cleanup releases resources. The generator may be re-initialized.
	Cleanup() error
}
