package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/sonoscope/internal/capture"
	"github.com/MrWong99/sonoscope/internal/transition"
)

// MoodDimensions is the length of types.MusicalParameters.Mood.
const MoodDimensions = 6

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"source":    {"camera", "screen", "ticker"},
	"vision":    {"yolo", "simulated"},
	"mapper":    {"table", "llm"},
	"llm":       {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"generator": {"synth", "remote"},
	"output":    {"speaker", "discord", "discard"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	// "smooth" is accepted as another name for crossfade.
	if m, err := transition.ParseMode(string(cfg.Pipeline.TransitionMode)); err == nil {
		cfg.Pipeline.TransitionMode = m
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	errs = append(errs, validatePipeline(&cfg.Pipeline)...)

	// Provider name validation: unknown names only warn.
	p := cfg.Providers
	validateProviderName("source", p.Source.Name)
	validateProviderName("vision", p.Vision.Name)
	validateProviderName("mapper", p.Mapper.Name)
	validateProviderName("llm", p.LLM.Name)
	validateProviderName("generator", p.Generator.Name)
	validateProviderName("output", p.Output.Name)
	for i, fb := range p.GeneratorFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.generator_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("generator", fb.Name)
	}
	if len(p.GeneratorFallbacks) > 0 && p.Generator.Name == "" {
		errs = append(errs, errors.New("providers.generator_fallbacks requires providers.generator"))
	}
	for i, fb := range p.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("llm", fb.Name)
	}
	if len(p.LLMFallbacks) > 0 && p.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}

	// Mapper ↔ LLM cross-validation
	if p.Mapper.Name == "llm" && p.LLM.Name == "" {
		errs = append(errs, errors.New("providers.mapper \"llm\" requires providers.llm to be configured"))
	}
	if p.LLM.Name != "" && p.Mapper.Name != "llm" {
		slog.Warn("providers.llm is configured but the mapper does not use it", "mapper", p.Mapper.Name)
	}

	// History
	if d := cfg.History.MoodDimensions; d != 0 && d != MoodDimensions {
		errs = append(errs, fmt.Errorf("history.mood_dimensions must be %d, got %d", MoodDimensions, d))
	}
	if cfg.History.PostgresDSN == "" {
		slog.Debug("history.postgres_dsn is empty; musical history is disabled")
	}

	return errors.Join(errs...)
}

func validatePipeline(pc *PipelineConfig) []error {
	var errs []error
	if pc.ConfidenceThreshold < 0 || pc.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.confidence_threshold %.2f is out of range [0, 1]", pc.ConfidenceThreshold))
	}
	if pc.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("pipeline.cooldown %s must not be negative", pc.Cooldown))
	}
	if pc.TempoTolerance < 0 {
		errs = append(errs, fmt.Errorf("pipeline.tempo_tolerance %d must not be negative", pc.TempoTolerance))
	}
	if pc.GenerationSafetyFactor != 0 && pc.GenerationSafetyFactor < 1 {
		errs = append(errs, fmt.Errorf("pipeline.generation_safety_factor %.2f must be at least 1", pc.GenerationSafetyFactor))
	}
	if pc.DefaultGenerationEstimate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.default_generation_estimate %s must not be negative", pc.DefaultGenerationEstimate))
	}
	if pc.TransitionMode != "" && !pc.TransitionMode.IsValid() {
		errs = append(errs, fmt.Errorf("pipeline.transition_mode %q is invalid; valid values: instant, fade, crossfade", pc.TransitionMode))
	}
	if pc.TransitionDuration < 0 {
		errs = append(errs, fmt.Errorf("pipeline.transition_duration %s must not be negative", pc.TransitionDuration))
	}
	if q := pc.QueueCapacity; q != 0 && (q < capture.MinQueueCapacity || q > capture.MaxQueueCapacity) {
		errs = append(errs, fmt.Errorf("pipeline.queue_capacity %d is out of range [%d, %d]", q, capture.MinQueueCapacity, capture.MaxQueueCapacity))
	}
	if pc.FrameRate < 0 {
		errs = append(errs, fmt.Errorf("pipeline.frame_rate %.2f must not be negative", pc.FrameRate))
	}
	if pc.StopGrace < 0 || pc.SynthesisRetryBackoff < 0 {
		errs = append(errs, errors.New("pipeline.stop_grace and pipeline.synthesis_retry_backoff must not be negative"))
	}
	if pc.MaxSynthesisFailures < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_synthesis_failures %d must not be negative", pc.MaxSynthesisFailures))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
