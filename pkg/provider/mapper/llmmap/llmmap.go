// Package llmmap implements mapper.Mapper by asking a language model to
// compose a parameter set for each object.
//
// The model receives the object class, its rounded features and the scene
// density, and must answer with a single JSON parameters record. Replies
// are cached per input so that the mapper stays deterministic for the
// processor's regeneration decisions; concurrent requests for the same
// input share one completion. When the model fails or answers with
// something unusable, the configured fallback mapper is consulted.
package llmmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/sonoscope/pkg/provider/llm"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/types"
)

const (
	defaultMaxTokens = 512
	maxSceneObjects  = 3
)

const systemPrompt = `You are a film composer scoring a live camera feed of a desk.

Given one object seen by the camera, choose background music that fits the object's character.

Allowed values:
- style: %s
- instruments: %s
- mode (second word of key): major, minor, dorian, phrygian, lydian, mixolydian, aeolian, locrian
- melodic_range: low, medium, high, wide
- tempo: integer BPM between 60 and 180
- energy_level, complexity, brightness, tension, harmonic_richness, rhythmic_complexity: 0.0-1.0
- duration, fade_in, fade_out: seconds; duration between 5 and 300

Respond with ONLY a JSON object in this exact format (no markdown, no prose):
{
  "tempo": 90, "key": "C Major", "time_signature": "4/4", "style": "ambient",
  "primary_instruments": ["piano"], "secondary_instruments": [],
  "energy_level": 0.5, "complexity": 0.5, "brightness": 0.5, "tension": 0.5,
  "duration": 30, "fade_in": 2, "fade_out": 2,
  "harmonic_richness": 0.5, "rhythmic_complexity": 0.5, "melodic_range": "medium",
  "rationale": "<one sentence>"
}`

// reply is the model's answer: a parameters record plus a short rationale.
type reply struct {
	types.ParametersRecord
	Rationale string `json:"rationale"`
}

type cached struct {
	params    types.MusicalParameters
	rationale string
}

// Option is a functional option for New.
type Option func(*Mapper)

// WithFallback sets the mapper used when the model fails. Without one, Map
// returns the error and the caller decides.
func WithFallback(m mapper.Mapper) Option {
	return func(mp *Mapper) { mp.fallback = m }
}

// WithTemperature sets the sampling temperature. Default: 0.
func WithTemperature(t float64) Option {
	return func(mp *Mapper) { mp.temperature = t }
}

// WithMaxTokens caps the reply length. Default: 512.
func WithMaxTokens(n int) Option {
	return func(mp *Mapper) { mp.maxTokens = n }
}

// Mapper is the LLM-backed mapper. It is safe for concurrent use.
type Mapper struct {
	llm         llm.Provider
	fallback    mapper.Mapper
	temperature float64
	maxTokens   int

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]cached
	last  map[string]string // class -> most recent rationale
}

// New returns a Mapper backed by provider.
func New(provider llm.Provider, opts ...Option) *Mapper {
	m := &Mapper{
		llm:       provider,
		maxTokens: defaultMaxTokens,
		cache:     make(map[string]cached),
		last:      make(map[string]string),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Map implements mapper.Mapper.
func (m *Mapper) Map(ctx context.Context, obj types.DetectedObject, features map[string]float64, mctx mapper.Context) (types.MusicalParameters, error) {
	class := strings.ToLower(strings.TrimSpace(obj.ClassName))
	others := min(len(mctx.Others), maxSceneObjects)
	key := cacheKey(class, features, others)

	m.mu.RLock()
	c, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return c.params.Clone(), nil
	}

	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.ask(ctx, class, features, others)
	})
	if err != nil {
		if m.fallback != nil {
			slog.Warn("llm mapper falling back", "class", class, "err", err)
			return m.fallback.Map(ctx, obj, features, mctx)
		}
		return types.MusicalParameters{}, err
	}
	c = v.(cached)

	m.mu.Lock()
	m.cache[key] = c
	m.last[class] = c.rationale
	m.mu.Unlock()
	return c.params.Clone(), nil
}

func (m *Mapper) ask(ctx context.Context, class string, features map[string]float64, others int) (cached, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Object: %s\n", class)
	if len(features) > 0 {
		user.WriteString("Features:")
		for _, k := range slices.Sorted(maps.Keys(features)) {
			fmt.Fprintf(&user, " %s=%.2f", k, features[k])
		}
		user.WriteByte('\n')
	}
	fmt.Fprintf(&user, "Other objects in view: %d\n", others)

	resp, err := m.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: buildSystemPrompt(),
		Temperature:  llm.Float(m.temperature),
		MaxTokens:    m.maxTokens,
		JSON:         true,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user.String()}},
	})
	if err != nil {
		return cached{}, fmt.Errorf("llm mapper: complete: %w", err)
	}
	return parseReply(resp.Content)
}

func buildSystemPrompt() string {
	styles := make([]string, len(types.AllStyles))
	for i, s := range types.AllStyles {
		styles[i] = string(s)
	}
	instruments := make([]string, len(types.AllInstruments))
	for i, in := range types.AllInstruments {
		instruments[i] = string(in)
	}
	return fmt.Sprintf(systemPrompt, strings.Join(styles, ", "), strings.Join(instruments, ", "))
}

// parseReply decodes and validates the model output. Markdown code fences
// are stripped first.
func parseReply(content string) (cached, error) {
	var r reply
	if err := json.Unmarshal([]byte(stripMarkdown(content)), &r); err != nil {
		return cached{}, fmt.Errorf("llm mapper: parse reply: %w", err)
	}
	p, err := types.FromRecord(r.ParametersRecord)
	if err != nil {
		return cached{}, fmt.Errorf("llm mapper: invalid reply: %w", err)
	}
	return cached{params: p, rationale: strings.TrimSpace(r.Rationale)}, nil
}

func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}

// cacheKey rounds features to two decimals so sensor jitter does not defeat
// the cache.
func cacheKey(class string, features map[string]float64, others int) string {
	var b strings.Builder
	b.WriteString(class)
	for _, k := range slices.Sorted(maps.Keys(features)) {
		fmt.Fprintf(&b, "|%s=%.2f", k, math.Round(features[k]*100)/100)
	}
	fmt.Fprintf(&b, "|n=%d", others)
	return b.String()
}

// Explain returns the model's latest rationale for objectName.
func (m *Mapper) Explain(objectName string) string {
	class := strings.ToLower(strings.TrimSpace(objectName))
	m.mu.RLock()
	r, ok := m.last[class]
	m.mu.RUnlock()
	switch {
	case ok && r != "":
		return fmt.Sprintf("%s (composed by language model)", r)
	case m.fallback != nil:
		return m.fallback.Explain(objectName)
	default:
		return fmt.Sprintf("%s has not been mapped yet", objectName)
	}
}

// UpdateWeights forwards feedback to the fallback when it learns, and drops
// cached replies for the class so the next sighting asks again.
func (m *Mapper) UpdateWeights(fb mapper.Feedback) error {
	class := strings.ToLower(strings.TrimSpace(fb.ClassName))
	m.mu.Lock()
	for k := range m.cache {
		if k == class || strings.HasPrefix(k, class+"|") {
			delete(m.cache, k)
		}
	}
	m.mu.Unlock()
	if l, ok := m.fallback.(mapper.Learner); ok {
		return l.UpdateWeights(fb)
	}
	return nil
}

// CacheSize reports the number of cached replies.
func (m *Mapper) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

var (
	_ mapper.Mapper  = (*Mapper)(nil)
	_ mapper.Learner = (*Mapper)(nil)
)
