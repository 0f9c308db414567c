package config

import (
	"time"

	"github.com/MrWong99/sonoscope/internal/transition"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TransitionModeChanged bool
	NewTransitionMode     transition.Mode

	ThresholdChanged bool
	NewThreshold     float64

	CooldownChanged bool
	NewCooldown     time.Duration

	TempoToleranceChanged bool
	NewTempoTolerance     int

	// RestartRequired is set when a field that is only read at startup
	// changed, such as a provider or the listen address.
	RestartRequired bool
}

// Any reports whether anything hot-reloadable changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TransitionModeChanged || d.ThresholdChanged ||
		d.CooldownChanged || d.TempoToleranceChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	op, np := old.Pipeline, new.Pipeline
	if op.TransitionMode != np.TransitionMode {
		d.TransitionModeChanged = true
		d.NewTransitionMode = np.TransitionMode
	}
	if op.ConfidenceThreshold != np.ConfidenceThreshold {
		d.ThresholdChanged = true
		d.NewThreshold = np.ConfidenceThreshold
	}
	if op.Cooldown != np.Cooldown {
		d.CooldownChanged = true
		d.NewCooldown = np.Cooldown
	}
	if op.TempoTolerance != np.TempoTolerance {
		d.TempoToleranceChanged = true
		d.NewTempoTolerance = np.TempoTolerance
	}

	// Everything else in the pipeline block is read once at startup.
	op.TransitionMode, op.ConfidenceThreshold, op.Cooldown, op.TempoTolerance = np.TransitionMode, np.ConfidenceThreshold, np.Cooldown, np.TempoTolerance
	if op != np ||
		old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.MCPEnabled != new.Server.MCPEnabled ||
		!sameProviders(old.Providers, new.Providers) ||
		old.History != new.History ||
		old.Feedback != new.Feedback {
		d.RestartRequired = true
	}
	return d
}

func sameProviders(a, b ProvidersConfig) bool {
	single := func(p ProvidersConfig) []ProviderEntry {
		return []ProviderEntry{p.Source, p.Vision, p.Mapper, p.LLM, p.Generator, p.Output}
	}
	return sameEntries(single(a), single(b)) &&
		sameEntries(a.GeneratorFallbacks, b.GeneratorFallbacks) &&
		sameEntries(a.LLMFallbacks, b.LLMFallbacks)
}

func sameEntries(a, b []ProviderEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sameEntry(a[i], b[i]) {
			return false
		}
	}
	return true
}

// sameEntry compares entries by their scalar fields and option keys.
// Option values are compared loosely since YAML may decode them into maps.
func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, v := range a.Options {
		w, ok := b.Options[k]
		if !ok || !sameValue(v, w) {
			return false
		}
	}
	return true
}

func sameValue(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		return ok && sameEntry(ProviderEntry{Options: av}, ProviderEntry{Options: bv})
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !sameValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}
