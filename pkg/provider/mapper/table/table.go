// Package table implements mapper.Mapper with a lookup table of per-class
// presets.
//
// Each class has a preset parameter set and a mood description. Map starts
// from the preset and shapes the emotional dials from the object's features,
// the frame's lighting, scene density, and accumulated listener feedback.
// Labels missing from the table are matched phonetically and fuzzily
// against the known classes; anything still unknown gets the neutral
// parameters.
//
// Presets can be replaced or extended from a YAML file:
//
//	mappings:
//	  teapot:
//	    mood: "Steaming, homely"
//	    style: jazz
//	    tempo: 90
//	    key: "Bb Major"
//	    primary_instruments: [piano, bass]
//
// Omitted record fields keep their neutral defaults.
package table

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/types"
)

const (
	defaultLearningRate = 0.1
	maxOffset           = 0.2
	featureWeight       = 0.5
	lightingWeight      = 0.3
	sceneStep           = 0.05
	maxSceneObjects     = 3
)

var dialNames = []string{"energy", "complexity", "brightness", "tension"}

// Option is a functional option for New.
type Option func(*Mapper)

// WithFuzzyThreshold sets the Jaro-Winkler score a non-phonetic match needs.
func WithFuzzyThreshold(t float64) Option {
	return func(m *Mapper) { m.matcher = newClassMatcher(t) }
}

// WithLearningRate scales feedback adjustments. Default: 0.1.
func WithLearningRate(r float64) Option {
	return func(m *Mapper) { m.learningRate = r }
}

// Mapper is the table-driven mapper. It is safe for concurrent use.
type Mapper struct {
	mu           sync.RWMutex
	entries      map[string]entry
	keys         []string
	offsets      map[string]map[string]float64
	matcher      classMatcher
	learningRate float64
}

// New returns a Mapper loaded with the built-in presets.
func New(opts ...Option) *Mapper {
	m := &Mapper{
		entries:      builtinEntries(),
		offsets:      make(map[string]map[string]float64),
		matcher:      newClassMatcher(defaultFuzzyThreshold),
		learningRate: defaultLearningRate,
	}
	for _, o := range opts {
		o(m)
	}
	m.reindex()
	return m
}

// FromOptions builds a Mapper from provider options: mappings_file (path),
// fuzzy_threshold and learning_rate.
func FromOptions(opts provider.Options) (*Mapper, error) {
	if err := opts.Check("mappings_file", "fuzzy_threshold", "learning_rate"); err != nil {
		return nil, fmt.Errorf("table mapper: %w", err)
	}
	fuzzy, err := opts.Float("fuzzy_threshold", defaultFuzzyThreshold)
	if err != nil {
		return nil, fmt.Errorf("table mapper: %w", err)
	}
	rate, err := opts.Float("learning_rate", defaultLearningRate)
	if err != nil {
		return nil, fmt.Errorf("table mapper: %w", err)
	}
	path, err := opts.String("mappings_file", "")
	if err != nil {
		return nil, fmt.Errorf("table mapper: %w", err)
	}
	m := New(WithFuzzyThreshold(fuzzy), WithLearningRate(rate))
	if path != "" {
		if err := m.LoadCustomMappings(path); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// reindex rebuilds the sorted key list. Callers hold mu or own m.
func (m *Mapper) reindex() {
	m.keys = m.keys[:0]
	for k := range m.entries {
		m.keys = append(m.keys, k)
	}
	slices.Sort(m.keys)
}

// resolve returns the table key for label, or "" when unknown.
func (m *Mapper) resolve(label string) string {
	key := strings.ToLower(strings.TrimSpace(label))
	if _, ok := m.entries[key]; ok {
		return key
	}
	if best, _, ok := m.matcher.match(key, m.keys); ok {
		return best
	}
	return ""
}

// Map returns the shaped preset for obj.
func (m *Mapper) Map(_ context.Context, obj types.DetectedObject, features map[string]float64, mctx mapper.Context) (types.MusicalParameters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := m.resolve(obj.ClassName)
	p := types.NeutralParameters()
	if key != "" {
		p = m.entries[key].params.Clone()
	}

	dials := []*float64{&p.Energy, &p.Complexity, &p.Brightness, &p.Tension}
	for i, name := range dialNames {
		v := *dials[i]
		if f, ok := features[name]; ok {
			v = (1-featureWeight)*v + featureWeight*clamp01(f)
		}
		*dials[i] = clamp01(v + m.offsets[key][name])
	}
	if l := mctx.Frame.Lighting; l > 0 {
		p.Brightness = clamp01((1-lightingWeight)*p.Brightness + lightingWeight*clamp01(l))
	}
	p.Complexity = clamp01(p.Complexity + sceneStep*float64(min(len(mctx.Others), maxSceneObjects)))

	if err := p.Validate(); err != nil {
		return types.MusicalParameters{}, fmt.Errorf("table mapper: %q produced invalid parameters: %w", obj.ClassName, err)
	}
	return p, nil
}

// Explain describes the preset obj maps to.
func (m *Mapper) Explain(objectName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := m.resolve(objectName)
	if key == "" {
		n := types.NeutralParameters()
		return fmt.Sprintf("%s is not in the mapping table; using the neutral %s bed at %d BPM in %s",
			objectName, n.Style, n.Tempo, n.Key)
	}
	e := m.entries[key]
	var b strings.Builder
	if key != strings.ToLower(objectName) {
		fmt.Fprintf(&b, "%s matched %s. ", objectName, key)
	}
	fmt.Fprintf(&b, "%s suggests %s: %s at %d BPM in %s", key, strings.ToLower(e.mood), e.params.Style, e.params.Tempo, e.params.Key)
	if len(e.params.PrimaryInstruments) > 0 {
		fmt.Fprintf(&b, " led by %s", joinInstruments(e.params.PrimaryInstruments))
	}
	if off := m.offsets[key]; len(off) > 0 {
		fmt.Fprintf(&b, " (tuned by feedback: energy %+.2f, complexity %+.2f, brightness %+.2f, tension %+.2f)",
			off["energy"], off["complexity"], off["brightness"], off["tension"])
	}
	return b.String()
}

func joinInstruments(in []types.Instrument) string {
	s := make([]string, len(in))
	for i, v := range in {
		s[i] = string(v)
	}
	return strings.Join(s, " and ")
}

// UpdateWeights applies fb to the class's dial offsets. Offsets are
// clamped to ±0.2 so feedback can tune but not override a preset.
func (m *Mapper) UpdateWeights(fb mapper.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := m.resolve(fb.ClassName)
	if key == "" {
		return fmt.Errorf("table mapper: no mapping for class %q", fb.ClassName)
	}
	var errs []error
	for name, adj := range fb.Adjustments {
		if !slices.Contains(dialNames, name) {
			errs = append(errs, fmt.Errorf("table mapper: unknown dial %q", name))
			continue
		}
		if adj < -1 || adj > 1 {
			errs = append(errs, fmt.Errorf("table mapper: adjustment for %s must be in [-1,1], got %v", name, adj))
			continue
		}
		if m.offsets[key] == nil {
			m.offsets[key] = make(map[string]float64, len(dialNames))
		}
		off := m.offsets[key][name] + adj*m.learningRate
		m.offsets[key][name] = max(-maxOffset, min(maxOffset, off))
	}
	return errors.Join(errs...)
}

type fileEntry struct {
	Mood                   string `yaml:"mood"`
	types.ParametersRecord `yaml:",inline"`
}

type mappingFile struct {
	Mappings map[string]yaml.Node `yaml:"mappings"`
}

// LoadCustomMappings merges the mappings in path over the current table.
// The file is validated as a whole; on error the table is unchanged.
func (m *Mapper) LoadCustomMappings(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("table mapper: open mappings: %w", err)
	}
	defer f.Close()
	return m.LoadCustomMappingsFrom(f)
}

// LoadCustomMappingsFrom is LoadCustomMappings for an arbitrary reader.
func (m *Mapper) LoadCustomMappingsFrom(r io.Reader) error {
	var file mappingFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return fmt.Errorf("table mapper: decode mappings: %w", err)
	}

	loaded := make(map[string]entry, len(file.Mappings))
	var errs []error
	for name, node := range file.Mappings {
		fe := fileEntry{ParametersRecord: types.NeutralParameters().ToRecord()}
		if err := node.Decode(&fe); err != nil {
			errs = append(errs, fmt.Errorf("mapping %q: %w", name, err))
			continue
		}
		p, err := types.FromRecord(fe.ParametersRecord)
		if err != nil {
			errs = append(errs, fmt.Errorf("mapping %q: %w", name, err))
			continue
		}
		loaded[strings.ToLower(name)] = entry{mood: fe.Mood, params: p}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("table mapper: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range loaded {
		m.entries[k] = e
	}
	m.reindex()
	slog.Info("loaded custom mappings", "count", len(loaded))
	return nil
}

// Classes returns the known class names in sorted order.
func (m *Mapper) Classes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.keys)
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}

var (
	_ mapper.Mapper  = (*Mapper)(nil)
	_ mapper.Learner = (*Mapper)(nil)
)
