package processor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	// ErrNotReady is wrapped by Start when a collaborator could not be
	// initialized or opened.
	ErrNotReady = errors.New("processor: not ready")

	ErrAlreadyRunning        = errors.New("processor: already running")
	ErrNotRunning            = errors.New("processor: not running")
	ErrUnknownEvent          = errors.New("processor: unknown event")
	ErrUnknownTransitionMode = errors.New("processor: unknown transition mode")
)

// InitializationError reports a collaborator that failed to initialize.
type InitializationError struct {
	Component string
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("processor: initialize %s: %v", e.Component, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// DetectionError reports a frame the vision processor could not handle.
// The frame is skipped.
type DetectionError struct {
	FrameID uint64
	Err     error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("processor: detect frame %d: %v", e.FrameID, e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }

// MappingError reports a mapper failure or invalid mapper output. The
// neutral parameters were used instead.
type MappingError struct {
	Class string
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("processor: map %q: %v", e.Class, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }

// GenerationError reports a failed generation request.
type GenerationError struct {
	Class string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("processor: generate for %q: %v", e.Class, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// GenerationTimeoutError reports a generation request that overran its
// budget and was cancelled.
type GenerationTimeoutError struct {
	Class  string
	Budget time.Duration
	Err    error
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("processor: generate for %q exceeded %s budget", e.Class, e.Budget)
}

func (e *GenerationTimeoutError) Unwrap() error { return e.Err }

// SynthesisError reports audio the output rejected after a retry.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("processor: synthesis: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ResourceError reports a frame source or device failure.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("processor: %s: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
