package types

import (
	"errors"
	"fmt"
	"image"
	"time"
)

// DefaultConfidenceThreshold is the minimum confidence a detection needs to
// influence the pipeline when no threshold is configured.
const DefaultConfidenceThreshold = 0.7

// BoundingBox is an axis-aligned rectangle in frame pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns Width×Height.
func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// Center returns the integer centre point of the box.
func (b BoundingBox) Center() image.Point {
	return image.Pt(b.X+b.Width/2, b.Y+b.Height/2)
}

// Within reports whether the box lies entirely inside a frame of the given size.
func (b BoundingBox) Within(frameWidth, frameHeight int) bool {
	return b.X >= 0 && b.Y >= 0 && b.X+b.Width <= frameWidth && b.Y+b.Height <= frameHeight
}

// Validate reports an error when the box has a non-positive dimension.
func (b BoundingBox) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("types: bounding box must have positive size, got %dx%d", b.Width, b.Height)
	}
	return nil
}

// ConfidenceLevel buckets a detection confidence into coarse bands.
type ConfidenceLevel int

const (
	ConfidenceLow ConfidenceLevel = iota
	ConfidenceMedium
	ConfidenceHigh
	ConfidenceVeryHigh
)

// String returns the lowercase band name.
func (l ConfidenceLevel) String() string {
	switch l {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	case ConfidenceVeryHigh:
		return "very_high"
	default:
		return fmt.Sprintf("ConfidenceLevel(%d)", int(l))
	}
}

// LevelOf maps a raw confidence onto its band.
func LevelOf(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= 0.9:
		return ConfidenceVeryHigh
	case confidence >= 0.75:
		return ConfidenceHigh
	case confidence >= 0.5:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// DetectedObject is a single object found in one frame. Objects are
// ephemeral: they live for one decision cycle.
type DetectedObject struct {
	// ID is unique per detection, not per tracked object.
	ID string `json:"id"`

	// ClassName is the detector's label, e.g. "guitar".
	ClassName string `json:"class_name"`

	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`

	BBox      BoundingBox `json:"bbox"`
	Timestamp time.Time   `json:"timestamp"`

	// Semantic and Emotional are optional feature maps with values in [0, 1].
	Semantic  map[string]float64 `json:"semantic,omitempty"`
	Emotional map[string]float64 `json:"emotional,omitempty"`
}

// IsReliable reports whether the detection meets threshold.
func (o DetectedObject) IsReliable(threshold float64) bool {
	return o.Confidence >= threshold
}

// ConfidenceLevel returns the band of o.Confidence.
func (o DetectedObject) ConfidenceLevel() ConfidenceLevel {
	return LevelOf(o.Confidence)
}

// Features merges the semantic and emotional maps into one. Emotional
// values win on key collisions. Returns nil when both maps are empty.
func (o DetectedObject) Features() map[string]float64 {
	if len(o.Semantic) == 0 && len(o.Emotional) == 0 {
		return nil
	}
	out := make(map[string]float64, len(o.Semantic)+len(o.Emotional))
	for k, v := range o.Semantic {
		out[k] = v
	}
	for k, v := range o.Emotional {
		out[k] = v
	}
	return out
}

// Validate checks the confidence range and bounding box.
func (o DetectedObject) Validate() error {
	var errs []error
	if o.ClassName == "" {
		errs = append(errs, errors.New("types: detected object has empty class name"))
	}
	if o.Confidence < 0 || o.Confidence > 1 {
		errs = append(errs, fmt.Errorf("types: confidence %.3f outside [0,1]", o.Confidence))
	}
	if err := o.BBox.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
