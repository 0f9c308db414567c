package app

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/MrWong99/sonoscope/internal/config"
	"github.com/MrWong99/sonoscope/internal/resilience"
	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/generator"
	"github.com/MrWong99/sonoscope/pkg/provider/llm"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
	"github.com/MrWong99/sonoscope/pkg/provider/vision"
	"github.com/MrWong99/sonoscope/pkg/source"
)

// Provider names used when a slot is left empty in the config.
const (
	DefaultSource    = "ticker"
	DefaultVision    = "simulated"
	DefaultMapper    = "table"
	DefaultGenerator = "synth"
	DefaultOutput    = "discard"
)

// Providers holds one collaborator per pipeline slot plus the options each
// is initialized with. LLM is nil unless configured.
type Providers struct {
	Source    source.Source
	Vision    vision.Processor
	Mapper    mapper.Mapper
	LLM       llm.Provider
	Generator generator.Generator
	Output    output.Output

	VisionOptions    provider.Options
	GeneratorOptions provider.Options
	OutputOptions    provider.Options
}

// BuildProviders instantiates every configured provider through reg. Empty
// slots fall back to the Default* names. An LLM backed by llm_fallbacks is
// wrapped in a [resilience.LLMFallback]; a generator with fallbacks in a
// [resilience.GeneratorFallback].
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	pc := cfg.Providers
	p := &Providers{
		VisionOptions: provider.Options(pc.Vision.Options),
		OutputOptions: provider.Options(pc.Output.Options),
	}
	var err error

	if p.Source, err = reg.CreateSource(withDefault(pc.Source, DefaultSource)); err != nil {
		return nil, fmt.Errorf("app: create source: %w", err)
	}
	if p.Vision, err = reg.CreateVision(withDefault(pc.Vision, DefaultVision)); err != nil {
		return nil, fmt.Errorf("app: create vision: %w", err)
	}
	if p.LLM, err = buildLLM(pc, reg); err != nil {
		return nil, err
	}
	if p.Mapper, err = reg.CreateMapper(withDefault(pc.Mapper, DefaultMapper), p.LLM); err != nil {
		return nil, fmt.Errorf("app: create mapper: %w", err)
	}
	if p.Generator, p.GeneratorOptions, err = buildGenerator(pc, reg); err != nil {
		return nil, err
	}
	if p.Output, err = reg.CreateOutput(withDefault(pc.Output, DefaultOutput)); err != nil {
		return nil, fmt.Errorf("app: create output: %w", err)
	}
	return p, nil
}

func buildLLM(pc config.ProvidersConfig, reg *config.Registry) (llm.Provider, error) {
	if pc.LLM.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, fmt.Errorf("app: create llm: %w", err)
	}
	if len(pc.LLMFallbacks) == 0 {
		return primary, nil
	}
	chain := resilience.NewLLMFallback(primary, pc.LLM.Name, resilience.FallbackConfig{})
	for _, e := range pc.LLMFallbacks {
		fb, err := reg.CreateLLM(e)
		if err != nil {
			if errors.Is(err, config.ErrProviderNotRegistered) {
				slog.Warn("skipping unregistered llm fallback", "name", e.Name)
				continue
			}
			return nil, fmt.Errorf("app: create llm fallback %q: %w", e.Name, err)
		}
		chain.AddFallback(e.Name, fb)
	}
	return chain, nil
}

func buildGenerator(pc config.ProvidersConfig, reg *config.Registry) (generator.Generator, provider.Options, error) {
	entry := withDefault(pc.Generator, DefaultGenerator)
	primary, err := reg.CreateGenerator(entry)
	if err != nil {
		return nil, nil, fmt.Errorf("app: create generator: %w", err)
	}
	opts := generatorOptions(entry)
	if len(pc.GeneratorFallbacks) == 0 {
		return primary, opts, nil
	}

	chain := resilience.NewGeneratorFallback(primary, entry.Name, opts, resilience.FallbackConfig{})
	for _, e := range pc.GeneratorFallbacks {
		g, err := reg.CreateGenerator(e)
		if err != nil {
			if errors.Is(err, config.ErrProviderNotRegistered) {
				slog.Warn("skipping unregistered generator fallback", "name", e.Name)
				continue
			}
			return nil, nil, fmt.Errorf("app: create generator fallback %q: %w", e.Name, err)
		}
		chain.AddFallback(e.Name, g, generatorOptions(e))
	}
	slog.Info("generator fallback chain", "order", chain.Names())
	return chain, opts, nil
}

// generatorOptions folds the entry's base_url and api_key into its options
// under the keys the remote generator reads. Explicit options win.
func generatorOptions(e config.ProviderEntry) provider.Options {
	opts := provider.Options(maps.Clone(e.Options))
	if e.BaseURL == "" && e.APIKey == "" {
		return opts
	}
	if opts == nil {
		opts = provider.Options{}
	}
	if _, ok := opts["url"]; !ok && e.BaseURL != "" {
		opts["url"] = e.BaseURL
	}
	if _, ok := opts["api_key"]; !ok && e.APIKey != "" {
		opts["api_key"] = e.APIKey
	}
	return opts
}

func withDefault(e config.ProviderEntry, name string) config.ProviderEntry {
	if e.Name == "" {
		e.Name = name
	}
	return e
}
