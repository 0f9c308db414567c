// Command sonoscope watches a visual feed and plays music that follows what
// it sees.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/sonoscope/internal/app"
	"github.com/MrWong99/sonoscope/internal/config"
	"github.com/MrWong99/sonoscope/internal/observe"
	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/generator"
	"github.com/MrWong99/sonoscope/pkg/provider/generator/remote"
	"github.com/MrWong99/sonoscope/pkg/provider/generator/synth"
	"github.com/MrWong99/sonoscope/pkg/provider/llm"
	"github.com/MrWong99/sonoscope/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/sonoscope/pkg/provider/llm/openai"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper/llmmap"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper/table"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
	"github.com/MrWong99/sonoscope/pkg/provider/output/discard"
	"github.com/MrWong99/sonoscope/pkg/provider/output/discord"
	"github.com/MrWong99/sonoscope/pkg/provider/output/speaker"
	"github.com/MrWong99/sonoscope/pkg/provider/vision"
	"github.com/MrWong99/sonoscope/pkg/provider/vision/simulated"
	"github.com/MrWong99/sonoscope/pkg/provider/vision/yolo"
	"github.com/MrWong99/sonoscope/pkg/source"
	"github.com/MrWong99/sonoscope/pkg/source/camera"
	"github.com/MrWong99/sonoscope/pkg/source/screen"
	"github.com/MrWong99/sonoscope/pkg/source/ticker"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload hot-reloadable settings when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "sonoscope: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "sonoscope: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("sonoscope starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "sonoscope", ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetricsHandler(tel.MetricsHandler()),
		app.WithLevelVar(level),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(_, next *config.Config, d config.ConfigDiff) {
			application.ApplyConfig(next, d)
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go func() {
				if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Warn("config watcher stopped", "err", err)
				}
			}()
		}
	}

	slog.Info("sonoscope ready, press Ctrl+C to shut down")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Sources ───────────────────────────────────────────────────────────────
	reg.RegisterSource("camera", func(e config.ProviderEntry) (source.Source, error) {
		c, err := camera.ConfigFromOptions(provider.Options(e.Options))
		if err != nil {
			return nil, err
		}
		return camera.New(c), nil
	})
	reg.RegisterSource("screen", func(e config.ProviderEntry) (source.Source, error) {
		return screen.New(provider.Options(e.Options))
	})
	reg.RegisterSource("ticker", func(e config.ProviderEntry) (source.Source, error) {
		return ticker.New(provider.Options(e.Options))
	})

	// ── Vision ────────────────────────────────────────────────────────────────
	// Options reach these through Initialize.
	reg.RegisterVision("simulated", func(config.ProviderEntry) (vision.Processor, error) {
		return simulated.New(), nil
	})
	reg.RegisterVision("yolo", func(config.ProviderEntry) (vision.Processor, error) {
		return yolo.New(), nil
	})

	// ── Mappers ───────────────────────────────────────────────────────────────
	reg.RegisterMapper("table", func(e config.ProviderEntry, _ llm.Provider) (mapper.Mapper, error) {
		return table.FromOptions(provider.Options(e.Options))
	})
	reg.RegisterMapper("llm", newLLMMapper)

	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if e.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(e.BaseURL))
		}
		return oallm.New(e.APIKey, e.Model, opts...)
	})
	// openai has a native client above; the rest go through any-llm-go.
	for _, backend := range anyllm.Backends() {
		if backend == "openai" {
			continue
		}
		reg.RegisterLLM(backend, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			// ollama is a local server addressed by BaseURL and takes no key.
			if e.APIKey != "" && backend != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(backend, e.Model, opts...)
		})
	}

	// ── Generators ────────────────────────────────────────────────────────────
	reg.RegisterGenerator("synth", func(config.ProviderEntry) (generator.Generator, error) {
		return synth.New(), nil
	})
	reg.RegisterGenerator("remote", func(config.ProviderEntry) (generator.Generator, error) {
		return remote.New(), nil
	})

	// ── Outputs ───────────────────────────────────────────────────────────────
	reg.RegisterOutput("discard", func(config.ProviderEntry) (output.Output, error) {
		return discard.New(), nil
	})
	reg.RegisterOutput("speaker", func(config.ProviderEntry) (output.Output, error) {
		return speaker.New(), nil
	})
	reg.RegisterOutput("discord", func(config.ProviderEntry) (output.Output, error) {
		return discord.New(), nil
	})

	for _, kind := range []string{"source", "vision", "mapper", "llm", "generator", "output"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// newLLMMapper builds the language model mapper with a table mapper as its
// fallback. Options: temperature, max_tokens, plus the table mapper's.
func newLLMMapper(e config.ProviderEntry, l llm.Provider) (mapper.Mapper, error) {
	if l == nil {
		return nil, errors.New("llm mapper: providers.llm is not configured")
	}
	opts := provider.Options(e.Options)
	if err := opts.Check("temperature", "max_tokens", "mappings_file", "fuzzy_threshold", "learning_rate"); err != nil {
		return nil, fmt.Errorf("llm mapper: %w", err)
	}
	temp, err := opts.Float("temperature", 0)
	if err != nil {
		return nil, fmt.Errorf("llm mapper: %w", err)
	}
	maxTokens, err := opts.Int("max_tokens", 512)
	if err != nil {
		return nil, fmt.Errorf("llm mapper: %w", err)
	}

	tableOpts := provider.Options{}
	for _, k := range []string{"mappings_file", "fuzzy_threshold", "learning_rate"} {
		if v, ok := opts[k]; ok {
			tableOpts[k] = v
		}
	}
	fallback, err := table.FromOptions(tableOpts)
	if err != nil {
		return nil, err
	}
	return llmmap.New(l,
		llmmap.WithFallback(fallback),
		llmmap.WithTemperature(temp),
		llmmap.WithMaxTokens(maxTokens),
	), nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	pc := cfg.Providers
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       Sonoscope : startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Source", orDefault(pc.Source.Name, app.DefaultSource), "")
	printProvider("Vision", orDefault(pc.Vision.Name, app.DefaultVision), pc.Vision.Model)
	printProvider("Mapper", orDefault(pc.Mapper.Name, app.DefaultMapper), "")
	printProvider("LLM", pc.LLM.Name, pc.LLM.Model)
	printProvider("Generator", orDefault(pc.Generator.Name, app.DefaultGenerator), pc.Generator.Model)
	printProvider("Output", orDefault(pc.Output.Name, app.DefaultOutput), "")
	fmt.Printf("║  Fallbacks       : %-19d ║\n", len(pc.GeneratorFallbacks)+len(pc.LLMFallbacks))
	mode := string(cfg.Pipeline.TransitionMode)
	if mode == "" {
		mode = "crossfade"
	}
	fmt.Printf("║  Transition      : %-19s ║\n", mode)
	if cfg.History.PostgresDSN != "" {
		fmt.Printf("║  History         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  History         : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

func orDefault(name, def string) string {
	if name == "" {
		return def
	}
	return name
}
