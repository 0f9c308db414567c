package types

import (
	"image"
	"time"
)

// FrameMetadata describes a captured frame. It is informational: the
// processor forwards it to the mapper as context and never branches on it.
type FrameMetadata struct {
	FrameID   uint64    `json:"frame_id"`
	Timestamp time.Time `json:"timestamp"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`

	// FPS is the source's nominal rate, zero when unknown.
	FPS float64 `json:"fps,omitempty"`

	// Lighting is a coarse brightness hint in [0, 1], zero when unknown.
	Lighting float64 `json:"lighting,omitempty"`
}

// Frame is one unit of visual input.
//
// Image is always set by sources that decode pixels. Encoded carries the
// original compressed bytes (JPEG/PNG) when the source had them; detectors
// that can decode natively prefer it.
type Frame struct {
	Image    image.Image
	Encoded  []byte
	Metadata FrameMetadata
}
