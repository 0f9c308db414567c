package resilience

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/generator"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// GeneratorFallback is a [generator.Generator] that renders with the first
// healthy generator of a chain. Every member is initialized and cleaned up;
// estimates and capabilities come from the primary, the generator expected
// to serve nearly every request.
type GeneratorFallback struct {
	group *FallbackGroup[generator.Generator]
	opts  map[string]provider.Options
}

var _ generator.Generator = (*GeneratorFallback)(nil)

// NewGeneratorFallback returns a chain preferring primary.
func NewGeneratorFallback(primary generator.Generator, primaryName string, opts provider.Options, cfg FallbackConfig) *GeneratorFallback {
	return &GeneratorFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
		opts:  map[string]provider.Options{primaryName: opts},
	}
}

// AddFallback appends g, initialized with opts.
func (f *GeneratorFallback) AddFallback(name string, g generator.Generator, opts provider.Options) {
	f.group.AddFallback(name, g)
	f.opts[name] = opts
}

// Names returns the chain order.
func (f *GeneratorFallback) Names() []string { return f.group.Names() }

// Initialize initializes every member with its own options. The opts
// argument is used for members registered without options.
func (f *GeneratorFallback) Initialize(ctx context.Context, opts provider.Options) error {
	return f.group.Each(func(name string, g generator.Generator) error {
		o, ok := f.opts[name]
		if !ok || o == nil {
			o = opts
		}
		if err := g.Initialize(ctx, o); err != nil {
			return fmt.Errorf("generator %q: %w", name, err)
		}
		return nil
	})
}

// Generate implements generator.Generator. A cancelled ctx is returned as
// is rather than failing over.
func (f *GeneratorFallback) Generate(ctx context.Context, params types.MusicalParameters) (*types.GeneratedAudio, error) {
	audio, err := ExecuteWithResult(f.group, func(g generator.Generator) (*types.GeneratedAudio, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return g.Generate(ctx, params)
	})
	if cerr := ctx.Err(); cerr != nil && err != nil {
		return nil, cerr
	}
	return audio, err
}

// GenerateTransition implements generator.Generator.
func (f *GeneratorFallback) GenerateTransition(ctx context.Context, from, to types.MusicalParameters, d time.Duration) (*types.GeneratedAudio, error) {
	return ExecuteWithResult(f.group, func(g generator.Generator) (*types.GeneratedAudio, error) {
		return g.GenerateTransition(ctx, from, to, d)
	})
}

// EstimateTime returns the primary's estimate.
func (f *GeneratorFallback) EstimateTime(params types.MusicalParameters) time.Duration {
	return f.group.Primary().EstimateTime(params)
}

// SupportedStyles returns the union over the chain.
func (f *GeneratorFallback) SupportedStyles() []types.Style {
	var out []types.Style
	_ = f.group.Each(func(_ string, g generator.Generator) error {
		for _, s := range g.SupportedStyles() {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
		return nil
	})
	return out
}

// SupportedInstruments returns the union over the chain.
func (f *GeneratorFallback) SupportedInstruments() []types.Instrument {
	var out []types.Instrument
	_ = f.group.Each(func(_ string, g generator.Generator) error {
		for _, in := range g.SupportedInstruments() {
			if !slices.Contains(out, in) {
				out = append(out, in)
			}
		}
		return nil
	})
	return out
}

// Cleanup cleans up every member and joins their errors.
func (f *GeneratorFallback) Cleanup() error {
	var errs []error
	_ = f.group.Each(func(name string, g generator.Generator) error {
		if err := g.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("generator %q: %w", name, err))
		}
		return nil
	})
	return errors.Join(errs...)
}
