// Package mock provides a test double for the vision.Processor interface.
//
// Detections are served from a script: each Detect call pops the next entry
// of Script. Once the script is exhausted, Detect returns Default.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/vision"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// DetectCall records a single invocation of Detect.
type DetectCall struct {
	Frame types.Frame
}

// Processor is a mock implementation of vision.Processor.
type Processor struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Script holds per-call results consumed in order.
	Script [][]types.DetectedObject

	// Default is returned once Script is exhausted.
	Default []types.DetectedObject

	// DetectErr, if non-nil, is returned by every Detect call.
	DetectErr error

	// InitErr, if non-nil, is returned by Initialize.
	InitErr error

	// Classes is returned by SupportedClasses.
	Classes []string

	// ModelInfo is returned by Info.
	ModelInfo vision.ModelInfo

	// --- Call records ---

	InitOptions  []provider.Options
	DetectCalls  []DetectCall
	CleanupCalls int
}

// Initialize records opts and returns InitErr.
func (p *Processor) Initialize(_ context.Context, opts provider.Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.InitOptions = append(p.InitOptions, opts)
	return p.InitErr
}

// Detect records the call and returns the next scripted result.
func (p *Processor) Detect(_ context.Context, frame types.Frame) ([]types.DetectedObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DetectCalls = append(p.DetectCalls, DetectCall{Frame: frame})
	if p.DetectErr != nil {
		return nil, p.DetectErr
	}
	if len(p.Script) > 0 {
		next := p.Script[0]
		p.Script = p.Script[1:]
		return next, nil
	}
	return p.Default, nil
}

// SupportedClasses returns Classes.
func (p *Processor) SupportedClasses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Classes
}

// Info returns ModelInfo.
func (p *Processor) Info() vision.ModelInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelInfo
}

// Cleanup counts the call.
func (p *Processor) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CleanupCalls++
	return nil
}

// DetectCallCount returns the number of Detect calls so far.
func (p *Processor) DetectCallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.DetectCalls)
}

var _ vision.Processor = (*Processor)(nil)
