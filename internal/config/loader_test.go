package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/sonoscope/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "threshold",
			mutate:  func(c *config.Config) { c.Pipeline.ConfidenceThreshold = 1.2 },
			wantErr: "confidence_threshold",
		},
		{
			name:    "negative cooldown",
			mutate:  func(c *config.Config) { c.Pipeline.Cooldown = -time.Second },
			wantErr: "cooldown",
		},
		{
			name:    "safety factor below one",
			mutate:  func(c *config.Config) { c.Pipeline.GenerationSafetyFactor = 0.9 },
			wantErr: "generation_safety_factor",
		},
		{
			name:    "transition mode",
			mutate:  func(c *config.Config) { c.Pipeline.TransitionMode = "wipe" },
			wantErr: "transition_mode",
		},
		{
			name:    "queue capacity",
			mutate:  func(c *config.Config) { c.Pipeline.QueueCapacity = 5 },
			wantErr: "queue_capacity",
		},
		{
			name:    "mood dimensions",
			mutate:  func(c *config.Config) { c.History.MoodDimensions = 1536 },
			wantErr: "mood_dimensions",
		},
		{
			name:    "llm mapper without llm",
			mutate:  func(c *config.Config) { c.Providers.Mapper.Name = "llm" },
			wantErr: "providers.llm",
		},
		{
			name: "fallback without primary",
			mutate: func(c *config.Config) {
				c.Providers.GeneratorFallbacks = []config.ProviderEntry{{Name: "synth"}}
			},
			wantErr: "generator_fallbacks requires",
		},
		{
			name: "unnamed fallback",
			mutate: func(c *config.Config) {
				c.Providers.Generator.Name = "remote"
				c.Providers.GeneratorFallbacks = []config.ProviderEntry{{}}
			},
			wantErr: "generator_fallbacks[0].name",
		},
		{
			name: "llm fallback without primary",
			mutate: func(c *config.Config) {
				c.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "ollama"}}
			},
			wantErr: "llm_fallbacks requires",
		},
		{
			name:    "half tls",
			mutate:  func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "a.pem"} },
			wantErr: "server.tls",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := &config.Config{}
			tt.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil {
				t.Fatalf("want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("want error containing %q, got %q", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_ZeroConfigIsValid(t *testing.T) {
	t.Parallel()

	if err := config.Validate(&config.Config{}); err != nil {
		t.Errorf("want zero config valid, got %v", err)
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Pipeline.ConfidenceThreshold = -1
	cfg.Pipeline.QueueCapacity = 9
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("want error")
	}
	for _, want := range []string{"confidence_threshold", "queue_capacity"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("want %q in joined error, got %q", want, err)
		}
	}
}

func TestValidate_UnknownProviderOnlyWarns(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Providers.Vision.Name = "my-custom-detector"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("unknown provider names must not fail validation, got %v", err)
	}
}
