// Package vision defines the Processor interface for object detection
// backends.
//
// A vision processor turns one frame into an ordered list of detected
// objects. The order is significant: the processor core uses the input
// position as the final tie-break when selecting the dominant object, so
// implementations should return detections in a stable order (for example
// descending confidence, then scan order).
//
// Implementations must be safe for use from a single worker goroutine;
// concurrent Detect calls are not required.
package vision

import (
	"context"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// ModelInfo describes the model behind a processor.
type ModelInfo struct {
	Name       string
	Version    string
	InputSize  int
	NumClasses int
}

// Processor detects objects in frames.
type Processor interface {
	// Initialize validates opts and loads the model. It must reject unknown
	// option keys.
	Initialize(ctx context.Context, opts provider.Options) error

	// Detect returns the objects found in frame. When nothing is found it
	// returns an empty slice and a nil error; errors are reserved for frames
	// that could not be processed at all.
	Detect(ctx context.Context, frame types.Frame) ([]types.DetectedObject, error)

	// SupportedClasses lists every class name Detect may return.
	SupportedClasses() []string

	// Info describes the loaded model.
	Info() ModelInfo

	// Cleanup releases model resources. Safe to call more than once.
	Cleanup() error
}
