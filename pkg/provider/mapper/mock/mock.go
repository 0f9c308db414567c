// Package mock provides a test double for the mapper.Mapper interface.
//
// Map looks up ByClass first and falls back to Default. When Delay is set,
// Map sleeps (honouring ctx) before answering.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// MapCall records a single invocation of Map.
type MapCall struct {
	Object   types.DetectedObject
	Features map[string]float64
	Context  mapper.Context
}

// Mapper is a mock implementation of mapper.Mapper and mapper.Learner.
type Mapper struct {
	mu sync.Mutex

	// ByClass maps class names to the parameters Map returns.
	ByClass map[string]types.MusicalParameters

	// Default is returned for classes missing from ByClass.
	Default types.MusicalParameters

	// MapErr, if non-nil, is returned by Map.
	MapErr error

	// Delay is slept before Map returns.
	Delay time.Duration

	// Explanation is returned by Explain.
	Explanation string

	// UpdateErr, if non-nil, is returned by UpdateWeights.
	UpdateErr error

	MapCalls      []MapCall
	ExplainCalls  []string
	FeedbackCalls []mapper.Feedback
}

// Map records the call and returns the configured parameters.
func (m *Mapper) Map(ctx context.Context, obj types.DetectedObject, features map[string]float64, mctx mapper.Context) (types.MusicalParameters, error) {
	m.mu.Lock()
	m.MapCalls = append(m.MapCalls, MapCall{Object: obj, Features: features, Context: mctx})
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return types.MusicalParameters{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MapErr != nil {
		return types.MusicalParameters{}, m.MapErr
	}
	if p, ok := m.ByClass[obj.ClassName]; ok {
		return p.Clone(), nil
	}
	return m.Default.Clone(), nil
}

// Explain records the call and returns Explanation.
func (m *Mapper) Explain(objectName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExplainCalls = append(m.ExplainCalls, objectName)
	return m.Explanation
}

// UpdateWeights records the feedback and returns UpdateErr.
func (m *Mapper) UpdateWeights(fb mapper.Feedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedbackCalls = append(m.FeedbackCalls, fb)
	return m.UpdateErr
}

// MapCallCount returns the number of Map calls so far.
func (m *Mapper) MapCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.MapCalls)
}

var (
	_ mapper.Mapper  = (*Mapper)(nil)
	_ mapper.Learner = (*Mapper)(nil)
)
