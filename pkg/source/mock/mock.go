// Package mock provides a test double for the source.Source interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/sonoscope/pkg/source"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// Source is a mock implementation of source.Source. Each Read pops the next
// entry of ReadErrs (nil means success) and returns a frame with a
// sequential ID.
type Source struct {
	mu sync.Mutex

	// ReadErrs are returned by successive Reads; once exhausted, ReadErr is
	// used.
	ReadErrs []error
	ReadErr  error

	// OpenErrs works like ReadErrs for Open.
	OpenErrs []error

	OpenCalls  int
	ReadCalls  int
	CloseCalls int

	ids source.Counter
}

// Open implements source.Source.
func (s *Source) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls++
	if len(s.OpenErrs) > 0 {
		err := s.OpenErrs[0]
		s.OpenErrs = s.OpenErrs[1:]
		return err
	}
	return nil
}

// Read implements source.Source.
func (s *Source) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReadCalls++
	err := s.ReadErr
	if len(s.ReadErrs) > 0 {
		err = s.ReadErrs[0]
		s.ReadErrs = s.ReadErrs[1:]
	}
	if err != nil {
		return types.Frame{}, err
	}
	return types.Frame{Metadata: types.FrameMetadata{FrameID: s.ids.Next(), Width: 640, Height: 480}}, nil
}

// Close implements source.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	return nil
}

// Counts returns the Open, Read and Close call counts.
func (s *Source) Counts() (open, read, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.OpenCalls, s.ReadCalls, s.CloseCalls
}

var _ source.Source = (*Source)(nil)
