// Package ticker implements a synthetic source.Source that produces blank
// frames. It pairs with the simulated vision processor for demos and tests
// that need no camera.
package ticker

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/source"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// Source emits a uniformly filled frame on every Read.
type Source struct {
	mu     sync.Mutex
	img    *image.RGBA
	fps    float64
	open   bool
	ids    source.Counter
}

// New builds a Source from width, height, fps and brightness (0-1 fill
// level, default 0.5).
func New(opts provider.Options) (*Source, error) {
	if err := opts.Check("width", "height", "fps", "brightness"); err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	w, err := opts.Int("width", 640)
	if err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	h, err := opts.Int("height", 480)
	if err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	fps, err := opts.Float("fps", 5)
	if err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	level, err := opts.Float("brightness", 0.5)
	if err != nil {
		return nil, fmt.Errorf("ticker: %w", err)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("ticker: size must be positive, got %dx%d", w, h)
	}
	if level < 0 || level > 1 {
		return nil, fmt.Errorf("ticker: brightness must be in [0,1], got %v", level)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	v := uint8(level * 255)
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: v, G: v, B: v, A: 255}}, image.Point{}, draw.Src)
	return &Source{img: img, fps: fps}, nil
}

// Open implements source.Source.
func (s *Source) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
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
	return types.Frame{Image: s.img, Metadata: s.ids.Metadata(s.img, s.fps)}, nil
}

// Close implements source.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Info implements source.Describer.
func (s *Source) Info() source.Info {
	b := s.img.Bounds()
	return source.Info{Width: b.Dx(), Height: b.Dy(), FPS: s.fps}
}

var (
	_ source.Source    = (*Source)(nil)
	_ source.Describer = (*Source)(nil)
)
