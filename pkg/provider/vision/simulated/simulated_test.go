package simulated_test

import (
	"context"
	"slices"
	"testing"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/vision/simulated"
	"github.com/MrWong99/sonoscope/pkg/types"
)

func frame() types.Frame {
	return types.Frame{Metadata: types.FrameMetadata{Width: 320, Height: 240}}
}

func TestDetect_SceneIsValid(t *testing.T) {
	t.Parallel()

	p := simulated.New()
	if err := p.Initialize(context.Background(), provider.Options{"seed": 7, "dwell_frames": 1}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	for range 50 {
		dets, err := p.Detect(context.Background(), frame())
		if err != nil {
			t.Fatalf("Detect: %v", err)
		}
		if len(dets) < 1 || len(dets) > 3 {
			t.Fatalf("want 1-3 detections, got %d", len(dets))
		}
		for _, d := range dets {
			if err := d.Validate(); err != nil {
				t.Fatalf("invalid detection %+v: %v", d, err)
			}
			if !d.BBox.Within(320, 240) {
				t.Fatalf("box %+v outside frame", d.BBox)
			}
			if d.Confidence < 0.6 || d.Confidence > 0.95 {
				t.Fatalf("confidence %v outside configured range", d.Confidence)
			}
			if !slices.Contains(simulated.DefaultClasses, d.ClassName) {
				t.Fatalf("unexpected class %q", d.ClassName)
			}
		}
	}
}

func TestDetect_DwellKeepsScene(t *testing.T) {
	t.Parallel()

	p := simulated.New()
	if err := p.Initialize(context.Background(), provider.Options{"seed": 3, "dwell_frames": 5}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	first, _ := p.Detect(context.Background(), frame())
	for range 4 {
		next, _ := p.Detect(context.Background(), frame())
		if len(next) != len(first) {
			t.Fatalf("scene changed within dwell window: %d vs %d objects", len(first), len(next))
		}
	}
}

func TestDetect_Deterministic(t *testing.T) {
	t.Parallel()

	run := func() []string {
		p := simulated.New()
		_ = p.Initialize(context.Background(), provider.Options{"seed": 42, "dwell_frames": 1})
		var classes []string
		for range 10 {
			dets, _ := p.Detect(context.Background(), frame())
			for _, d := range dets {
				classes = append(classes, d.ClassName)
			}
		}
		return classes
	}
	if a, b := run(), run(); !slices.Equal(a, b) {
		t.Errorf("same seed produced different scenes:\n%v\n%v", a, b)
	}
}

func TestInitialize_Rejects(t *testing.T) {
	t.Parallel()

	tests := []provider.Options{
		{"bogus": 1},
		{"dwell_frames": 0},
		{"min_confidence": 0.9, "max_confidence": 0.5},
		{"classes": "plant"},
	}
	for _, opts := range tests {
		if err := simulated.New().Initialize(context.Background(), opts); err == nil {
			t.Errorf("Initialize(%v): want error", opts)
		}
	}
}

func TestDetect_BeforeInitialize(t *testing.T) {
	t.Parallel()

	dets, err := simulated.New().Detect(context.Background(), frame())
	if err != nil || len(dets) != 0 {
		t.Errorf("want empty result before Initialize, got %v, %v", dets, err)
	}
}
