// Package screen implements source.Source by capturing the desktop with
// github.com/vova616/screenshot. Point the app at a window showing a webcam
// preview, a video or a slideshow.
package screen

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/vova616/screenshot"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/source"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// Source grabs the whole primary screen, or a region of it.
type Source struct {
	mu     sync.Mutex
	region image.Rectangle
	open   bool
	ids    source.Counter

	// grab is replaced in tests.
	grab func(image.Rectangle) (*image.RGBA, error)
}

// New builds a Source. Options x, y, width and height select a region; all
// zero captures the full screen.
func New(opts provider.Options) (*Source, error) {
	if err := opts.Check("x", "y", "width", "height"); err != nil {
		return nil, fmt.Errorf("screen: %w", err)
	}
	var vals [4]int
	for i, k := range []string{"x", "y", "width", "height"} {
		v, err := opts.Int(k, 0)
		if err != nil {
			return nil, fmt.Errorf("screen: %w", err)
		}
		vals[i] = v
	}
	if vals[2] < 0 || vals[3] < 0 {
		return nil, fmt.Errorf("screen: region size must not be negative")
	}
	if (vals[2] == 0) != (vals[3] == 0) {
		return nil, fmt.Errorf("screen: width and height must be set together")
	}
	return &Source{
		region: image.Rect(vals[0], vals[1], vals[0]+vals[2], vals[1]+vals[3]),
		grab:   capture,
	}, nil
}

func capture(r image.Rectangle) (*image.RGBA, error) {
	if r.Empty() {
		return screenshot.CaptureScreen()
	}
	return screenshot.CaptureRect(r)
}

// Open checks that the screen can be captured.
func (s *Source) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.grab(s.region); err != nil {
		return fmt.Errorf("screen: capture: %w", err)
	}
	s.open = true
	return nil
}

// Read implements source.Source.
func (s *Source) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return types.Frame{}, source.ErrClosed
	}
	img, err := s.grab(s.region)
	if err != nil {
		return types.Frame{}, fmt.Errorf("screen: capture: %w", err)
	}
	return types.Frame{Image: img, Metadata: s.ids.Metadata(img, 0)}, nil
}

// Close implements source.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

var _ source.Source = (*Source)(nil)
