// Package mapper defines the Mapper interface that turns a detected object
// into musical parameters.
//
// Mappers must be deterministic: identical inputs yield identical
// parameters, so that regeneration decisions in the processor core are
// reproducible. Mappers that call non-deterministic backends (LLMs) are
// expected to cache per input.
package mapper

import (
	"context"
	"time"

	"github.com/MrWong99/sonoscope/pkg/types"
)

// Context is optional information about the scene the object was found in.
// It is informational: mappers may use it, but the processor never branches
// on it.
type Context struct {
	// Frame describes the frame the object was detected in.
	Frame types.FrameMetadata

	// Others holds the remaining reliable detections in the frame, in
	// detector order. The dominant object is not included.
	Others []types.DetectedObject
}

// Mapper maps a detected object to a musical parameter set.
type Mapper interface {
	// Map returns parameters for obj. features are the object's merged
	// semantic/emotional features (may be nil). The returned parameters
	// must pass [types.MusicalParameters.Validate].
	Map(ctx context.Context, obj types.DetectedObject, features map[string]float64, mctx Context) (types.MusicalParameters, error)

	// Explain returns a human-readable rationale for how objectName is
	// mapped. It is informational only.
	Explain(objectName string) string
}

// Feedback is a listener's judgement of the music produced for one class.
// Adjustments nudges named dials ("energy", "complexity", "brightness",
// "tension") by values in [-1, 1].
type Feedback struct {
	ClassName   string             `json:"class_name"`
	Adjustments map[string]float64 `json:"adjustments"`
	Comment     string             `json:"comment,omitempty"`
	Time        time.Time          `json:"time"`
}

// Learner is implemented by mappers that adapt to feedback.
type Learner interface {
	UpdateWeights(fb Feedback) error
}
