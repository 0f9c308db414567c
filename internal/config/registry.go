package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/sonoscope/pkg/provider/generator"
	"github.com/MrWong99/sonoscope/pkg/provider/llm"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
	"github.com/MrWong99/sonoscope/pkg/provider/vision"
	"github.com/MrWong99/sonoscope/pkg/source"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// MapperFactory builds a mapper. llm is the configured LLM provider, or nil
// when none is configured.
type MapperFactory func(entry ProviderEntry, llm llm.Provider) (mapper.Mapper, error)

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	source    map[string]func(ProviderEntry) (source.Source, error)
	vision    map[string]func(ProviderEntry) (vision.Processor, error)
	mapper    map[string]MapperFactory
	llm       map[string]func(ProviderEntry) (llm.Provider, error)
	generator map[string]func(ProviderEntry) (generator.Generator, error)
	output    map[string]func(ProviderEntry) (output.Output, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		source:    make(map[string]func(ProviderEntry) (source.Source, error)),
		vision:    make(map[string]func(ProviderEntry) (vision.Processor, error)),
		mapper:    make(map[string]MapperFactory),
		llm:       make(map[string]func(ProviderEntry) (llm.Provider, error)),
		generator: make(map[string]func(ProviderEntry) (generator.Generator, error)),
		output:    make(map[string]func(ProviderEntry) (output.Output, error)),
	}
}

// register stores factory under name in m, overwriting any previous one.
func register[F any](r *Registry, m map[string]F, name string, factory F) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m[name] = factory
}

// lookup returns the factory registered under name in m.
func lookup[F any](r *Registry, m map[string]F, kind, name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := m[name]
	if !ok {
		return f, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, kind, name)
	}
	return f, nil
}

// RegisterSource registers a frame source factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSource(name string, factory func(ProviderEntry) (source.Source, error)) {
	register(r, r.source, name, factory)
}

// RegisterVision registers a vision processor factory under name.
func (r *Registry) RegisterVision(name string, factory func(ProviderEntry) (vision.Processor, error)) {
	register(r, r.vision, name, factory)
}

// RegisterMapper registers a mapper factory under name.
func (r *Registry) RegisterMapper(name string, factory MapperFactory) {
	register(r, r.mapper, name, factory)
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	register(r, r.llm, name, factory)
}

// RegisterGenerator registers a music generator factory under name.
func (r *Registry) RegisterGenerator(name string, factory func(ProviderEntry) (generator.Generator, error)) {
	register(r, r.generator, name, factory)
}

// RegisterOutput registers an audio output factory under name.
func (r *Registry) RegisterOutput(name string, factory func(ProviderEntry) (output.Output, error)) {
	register(r, r.output, name, factory)
}

// CreateSource instantiates a frame source using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSource(entry ProviderEntry) (source.Source, error) {
	f, err := lookup(r, r.source, "source", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateVision instantiates a vision processor using the factory registered under entry.Name.
func (r *Registry) CreateVision(entry ProviderEntry) (vision.Processor, error) {
	f, err := lookup(r, r.vision, "vision", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateMapper instantiates a mapper using the factory registered under entry.Name.
func (r *Registry) CreateMapper(entry ProviderEntry, llm llm.Provider) (mapper.Mapper, error) {
	f, err := lookup(r, r.mapper, "mapper", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry, llm)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	f, err := lookup(r, r.llm, "llm", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateGenerator instantiates a music generator using the factory registered under entry.Name.
func (r *Registry) CreateGenerator(entry ProviderEntry) (generator.Generator, error) {
	f, err := lookup(r, r.generator, "generator", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// CreateOutput instantiates an audio output using the factory registered under entry.Name.
func (r *Registry) CreateOutput(entry ProviderEntry) (output.Output, error) {
	f, err := lookup(r, r.output, "output", entry.Name)
	if err != nil {
		return nil, err
	}
	return f(entry)
}

// Names returns the sorted provider names registered for kind, which is
// one of the keys of [ValidProviderNames].
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	add := func(n string) { names = append(names, n) }
	switch kind {
	case "source":
		for n := range r.source {
			add(n)
		}
	case "vision":
		for n := range r.vision {
			add(n)
		}
	case "mapper":
		for n := range r.mapper {
			add(n)
		}
	case "llm":
		for n := range r.llm {
			add(n)
		}
	case "generator":
		for n := range r.generator {
			add(n)
		}
	case "output":
		for n := range r.output {
			add(n)
		}
	}
	slices.Sort(names)
	return names
}
