// Package simulated implements a vision.Processor that invents plausible
// detections. It needs no model and no camera, which makes it the default
// for demos and headless runs.
//
// Every dwell_frames frames a new scene of one to three objects is drawn
// from the class list; between redraws the same scene is reported with
// slightly jittered confidences, so the pipeline sees stable input the way
// it would from a real detector watching a still desk.
//
// Recognised options: seed (int), dwell_frames (int, default 10),
// min_confidence and max_confidence (defaults 0.6 and 0.95), classes
// (list of names).
package simulated

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/vision"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// DefaultClasses is the desk-object vocabulary the built-in mapping table
// covers.
var DefaultClasses = []string{
	"plant", "book", "cup", "laptop", "phone",
	"bottle", "clock", "lamp", "camera", "guitar",
}

const (
	defaultDwell  = 10
	defaultWidth  = 640
	defaultHeight = 480
)

type sceneObject struct {
	class string
	conf  float64
	box   types.BoundingBox
}

// Processor is the simulated detector.
type Processor struct {
	mu      sync.Mutex
	rng     *rand.Rand
	classes []string
	dwell   int
	minConf float64
	maxConf float64
	ready   bool

	frames int
	scene  []sceneObject
}

// New returns an uninitialised Processor.
func New() *Processor {
	return &Processor{}
}

// Initialize validates opts and seeds the generator.
func (p *Processor) Initialize(_ context.Context, opts provider.Options) error {
	if err := opts.Check("seed", "dwell_frames", "min_confidence", "max_confidence", "classes"); err != nil {
		return fmt.Errorf("simulated vision: %w", err)
	}
	seed, err := opts.Int("seed", 1)
	if err != nil {
		return fmt.Errorf("simulated vision: %w", err)
	}
	dwell, err := opts.Int("dwell_frames", defaultDwell)
	if err != nil {
		return fmt.Errorf("simulated vision: %w", err)
	}
	if dwell < 1 {
		return fmt.Errorf("simulated vision: dwell_frames must be >= 1, got %d", dwell)
	}
	minConf, err := opts.Float("min_confidence", 0.6)
	if err != nil {
		return fmt.Errorf("simulated vision: %w", err)
	}
	maxConf, err := opts.Float("max_confidence", 0.95)
	if err != nil {
		return fmt.Errorf("simulated vision: %w", err)
	}
	if minConf < 0 || maxConf > 1 || minConf > maxConf {
		return fmt.Errorf("simulated vision: confidence range [%v, %v] invalid", minConf, maxConf)
	}
	classes := DefaultClasses
	if raw, ok := opts["classes"]; ok {
		list, ok := raw.([]any)
		if !ok || len(list) == 0 {
			return fmt.Errorf("simulated vision: classes must be a non-empty list, got %T", raw)
		}
		classes = make([]string, len(list))
		for i, c := range list {
			s, ok := c.(string)
			if !ok {
				return fmt.Errorf("simulated vision: class %d must be a string, got %T", i, c)
			}
			classes[i] = s
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x5eed))
	p.classes = classes
	p.dwell = dwell
	p.minConf = minConf
	p.maxConf = maxConf
	p.frames = 0
	p.scene = nil
	p.ready = true
	return nil
}

// Detect returns the current scene, redrawing it every dwell frames.
func (p *Processor) Detect(_ context.Context, frame types.Frame) ([]types.DetectedObject, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		return []types.DetectedObject{}, nil
	}

	w, h := frameSize(frame)
	if p.frames%p.dwell == 0 {
		p.scene = p.drawScene(w, h)
	}
	p.frames++

	out := make([]types.DetectedObject, 0, len(p.scene))
	for _, o := range p.scene {
		conf := o.conf + (p.rng.Float64()-0.5)*0.02
		conf = min(max(conf, p.minConf), p.maxConf)
		out = append(out, types.DetectedObject{
			ID:         uuid.NewString(),
			ClassName:  o.class,
			Confidence: conf,
			BBox:       o.box,
			Timestamp:  frame.Metadata.Timestamp,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}

func (p *Processor) drawScene(w, h int) []sceneObject {
	n := 1 + p.rng.IntN(3)
	scene := make([]sceneObject, n)
	for i := range scene {
		bw := min(50+p.rng.IntN(101), w)
		bh := min(50+p.rng.IntN(101), h)
		scene[i] = sceneObject{
			class: p.classes[p.rng.IntN(len(p.classes))],
			conf:  p.minConf + p.rng.Float64()*(p.maxConf-p.minConf),
			box: types.BoundingBox{
				X:      p.rng.IntN(w - bw + 1),
				Y:      p.rng.IntN(h - bh + 1),
				Width:  bw,
				Height: bh,
			},
		}
	}
	return scene
}

func frameSize(frame types.Frame) (int, int) {
	if frame.Metadata.Width > 0 && frame.Metadata.Height > 0 {
		return frame.Metadata.Width, frame.Metadata.Height
	}
	if frame.Image != nil {
		b := frame.Image.Bounds()
		if b.Dx() > 0 && b.Dy() > 0 {
			return b.Dx(), b.Dy()
		}
	}
	return defaultWidth, defaultHeight
}

// SupportedClasses returns the configured vocabulary.
func (p *Processor) SupportedClasses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.classes == nil {
		return DefaultClasses
	}
	return p.classes
}

// Info describes the simulator.
func (p *Processor) Info() vision.ModelInfo {
	return vision.ModelInfo{Name: "simulated", Version: "1", NumClasses: len(p.SupportedClasses())}
}

// Cleanup marks the processor uninitialised.
func (p *Processor) Cleanup() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = false
	return nil
}

var _ vision.Processor = (*Processor)(nil)
