// Package camera implements source.Source on a V4L2/AVFoundation/DirectShow
// camera through gocv's VideoCapture.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/source"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// Config selects the device and requested geometry. Zero geometry keeps
// the driver default.
type Config struct {
	// Device is a numeric index ("0") or a file/stream URL.
	Device string
	Width  int
	Height int
	FPS    float64
}

// ConfigFromOptions reads device, width, height and fps.
func ConfigFromOptions(opts provider.Options) (Config, error) {
	if err := opts.Check("device", "width", "height", "fps"); err != nil {
		return Config{}, fmt.Errorf("camera: %w", err)
	}
	var errs []error
	device, err := opts.String("device", "0")
	errs = append(errs, err)
	w, err := opts.Int("width", 0)
	errs = append(errs, err)
	h, err := opts.Int("height", 0)
	errs = append(errs, err)
	fps, err := opts.Float("fps", 0)
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("camera: %w", err)
	}
	if w < 0 || h < 0 || fps < 0 {
		return Config{}, fmt.Errorf("camera: geometry must not be negative")
	}
	return Config{Device: device, Width: w, Height: h, FPS: fps}, nil
}

// Source reads frames from a camera.
type Source struct {
	cfg  Config
	mu   sync.Mutex
	cap  *gocv.VideoCapture
	mat  gocv.Mat
	info source.Info
	ids  source.Counter
}

// New returns an unopened camera Source.
func New(cfg Config) *Source {
	return &Source{cfg: cfg}
}

// Open opens the device and applies the requested geometry. The geometry
// the driver actually granted is available from Info.
func (s *Source) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()

	vc, err := gocv.OpenVideoCapture(s.cfg.Device)
	if err != nil {
		return fmt.Errorf("camera: open %q: %w", s.cfg.Device, err)
	}
	if s.cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
	}
	if s.cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))
	}
	if s.cfg.FPS > 0 {
		vc.Set(gocv.VideoCaptureFPS, s.cfg.FPS)
	}
	s.cap = vc
	s.mat = gocv.NewMat()
	s.info = source.Info{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
	}
	slog.Info("camera opened", "device", s.cfg.Device, "width", s.info.Width, "height", s.info.Height, "fps", s.info.FPS)
	return nil
}

// Read implements source.Source.
func (s *Source) Read(ctx context.Context) (types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return types.Frame{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap == nil {
		return types.Frame{}, source.ErrClosed
	}
	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return types.Frame{}, fmt.Errorf("camera: read from %q failed", s.cfg.Device)
	}
	img, err := s.mat.ToImage()
	if err != nil {
		return types.Frame{}, fmt.Errorf("camera: convert frame: %w", err)
	}
	return types.Frame{Image: img, Metadata: s.ids.Metadata(img, s.info.FPS)}, nil
}

// Info implements source.Describer.
func (s *Source) Info() source.Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Close implements source.Source.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Source) closeLocked() error {
	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	s.mat.Close()
	s.cap = nil
	return err
}

var (
	_ source.Source    = (*Source)(nil)
	_ source.Describer = (*Source)(nil)
)
