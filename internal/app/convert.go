package app

import (
	"github.com/MrWong99/sonoscope/internal/config"
	"github.com/MrWong99/sonoscope/internal/processor"
)

// ProcessorConfig overlays the non-zero fields of pc on the processor
// defaults.
func ProcessorConfig(pc config.PipelineConfig) processor.Config {
	c := processor.DefaultConfig()
	if pc.ConfidenceThreshold != 0 {
		c.ConfidenceThreshold = pc.ConfidenceThreshold
	}
	if pc.Cooldown != 0 {
		c.Cooldown = pc.Cooldown
	}
	if pc.TempoTolerance != 0 {
		c.TempoTolerance = pc.TempoTolerance
	}
	if pc.GenerationSafetyFactor != 0 {
		c.SafetyFactor = pc.GenerationSafetyFactor
	}
	if pc.DefaultGenerationEstimate != 0 {
		c.DefaultEstimate = pc.DefaultGenerationEstimate
	}
	if pc.TransitionMode != "" {
		c.TransitionMode = pc.TransitionMode
	}
	if pc.TransitionDuration != 0 {
		c.TransitionDuration = pc.TransitionDuration
	}
	if pc.QueueCapacity != 0 {
		c.QueueCapacity = pc.QueueCapacity
	}
	if pc.FrameRate != 0 {
		c.FrameRate = pc.FrameRate
	}
	if pc.StopGrace != 0 {
		c.StopGrace = pc.StopGrace
	}
	if pc.SynthesisRetryBackoff != 0 {
		c.SynthesisRetryBackoff = pc.SynthesisRetryBackoff
	}
	if pc.MaxSynthesisFailures != 0 {
		c.MaxSynthesisFailures = pc.MaxSynthesisFailures
	}
	return c
}
