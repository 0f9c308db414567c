// Package mock provides a test double for the llm.Provider interface.
//
//	p := &mock.Provider{Responses: []string{`{"tempo": 90}`}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sonoscope/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider. Responses are returned
// in order; the last one repeats once the list is exhausted.
type Provider struct {
	mu sync.Mutex

	// Responses are the Content values handed out by Complete.
	Responses []string

	// Err, if non-nil, is returned from Complete.
	Err error

	// Calls records every request passed to Complete.
	Calls []llm.CompletionRequest
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	var content string
	if n := len(p.Responses); n > 0 {
		idx := min(len(p.Calls)-1, n-1)
		content = p.Responses[idx]
	}
	return &llm.CompletionResponse{Content: content}, nil
}

// CallCount returns the number of Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

var _ llm.Provider = (*Provider)(nil)
