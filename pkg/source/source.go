// Package source defines the Source interface for frame producers and the
// helpers they share.
//
// A Source is opened once, read from a single capture goroutine, and
// reopened by the capture loop after a read failure.
package source

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"

	"github.com/MrWong99/sonoscope/pkg/types"
)

// ErrClosed is returned by Read on a source that is not open.
var ErrClosed = errors.New("source: not open")

// Source produces frames.
type Source interface {
	// Open acquires the device. Calling Open on an open source reopens it.
	Open(ctx context.Context) error

	// Read returns the next frame. It may block until one is available.
	Read(ctx context.Context) (types.Frame, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Info describes a source's nominal output.
type Info struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	FPS    float64 `json:"fps"`
}

// Describer is implemented by sources that know their geometry.
type Describer interface {
	Info() Info
}

// Counter hands out monotonically increasing frame IDs.
type Counter struct {
	n atomic.Uint64
}

// Next returns the next frame ID, starting at 1.
func (c *Counter) Next() uint64 { return c.n.Add(1) }

// Metadata builds FrameMetadata for img with a fresh ID.
func (c *Counter) Metadata(img image.Image, fps float64) types.FrameMetadata {
	b := img.Bounds()
	return types.FrameMetadata{
		FrameID:   c.Next(),
		Timestamp: time.Now(),
		Width:     b.Dx(),
		Height:    b.Dy(),
		FPS:       fps,
		Lighting:  Lighting(img),
	}
}

// lightingGrid is the number of sample points per axis.
const lightingGrid = 16

// Lighting estimates mean luma in [0,1] from a coarse grid of pixels.
func Lighting(img image.Image) float64 {
	b := img.Bounds()
	if b.Empty() {
		return 0
	}
	var sum float64
	var n int
	for gy := range lightingGrid {
		y := b.Min.Y + (2*gy+1)*b.Dy()/(2*lightingGrid)
		for gx := range lightingGrid {
			x := b.Min.X + (2*gx+1)*b.Dx()/(2*lightingGrid)
			r, g, bl, _ := img.At(x, y).RGBA()
			sum += (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)) / 0xffff
			n++
		}
	}
	return sum / float64(n)
}
