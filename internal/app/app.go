// Package app wires all Sonoscope subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run starts the processor and serves HTTP until the context is
// done, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithHistory,
// WithMetrics, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sonoscope/internal/config"
	"github.com/MrWong99/sonoscope/internal/control"
	"github.com/MrWong99/sonoscope/internal/feedback"
	"github.com/MrWong99/sonoscope/internal/health"
	"github.com/MrWong99/sonoscope/internal/history"
	"github.com/MrWong99/sonoscope/internal/observe"
	"github.com/MrWong99/sonoscope/internal/processor"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
)

const (
	recordTimeout     = 3 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// HistoryStore is the part of [history.Store] the app uses.
type HistoryStore interface {
	Record(ctx context.Context, e history.Entry) error
	Recent(ctx context.Context, limit int, f history.Filter) ([]history.Entry, error)
	Ping(ctx context.Context) error
}

var _ HistoryStore = (*history.Store)(nil)

// App owns all subsystem lifetimes and orchestrates the Sonoscope pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	proc     *processor.Processor
	history  HistoryStore
	feedback *feedback.FileStore
	control  *control.Server
	handler  http.Handler

	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar
	version        string

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithHistory injects a history store instead of opening one from
// history.postgres_dsn.
func WithHistory(h HistoryStore) Option {
	return func(a *App) { a.history = h }
}

// WithMetrics records on m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets hot reloads change the log level through lv.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithVersion sets the version reported by the control server.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders] or from tests. New performs all
// initialisation synchronously; collaborators are initialized later by the
// processor's first Start.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		version:   "dev",
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. History store ─────────────────────────────────────────────────
	if err := a.initHistory(ctx); err != nil {
		return nil, fmt.Errorf("app: init history: %w", err)
	}

	// ── 2. Feedback ──────────────────────────────────────────────────────
	if err := a.initFeedback(); err != nil {
		return nil, fmt.Errorf("app: init feedback: %w", err)
	}

	// ── 3. Processor ─────────────────────────────────────────────────────
	if err := a.initProcessor(); err != nil {
		return nil, fmt.Errorf("app: init processor: %w", err)
	}

	// ── 4. Control server ────────────────────────────────────────────────
	a.initControl()

	// ── 5. HTTP surface ──────────────────────────────────────────────────
	a.handler = a.buildHandler()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initHistory opens the PostgreSQL history store unless one was injected or
// no DSN is configured.
func (a *App) initHistory(ctx context.Context) error {
	if a.history != nil {
		return nil
	}
	dsn := a.cfg.History.PostgresDSN
	if dsn == "" {
		slog.Info("history disabled, no postgres_dsn configured")
		return nil
	}
	store, err := history.Open(ctx, dsn, a.cfg.History.MoodDimensions)
	if err != nil {
		return err
	}
	a.history = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initFeedback replays the feedback log into the mapper when it learns.
func (a *App) initFeedback() error {
	learner, ok := a.providers.Mapper.(mapper.Learner)
	if !ok {
		if a.cfg.Feedback.Path != "" {
			slog.Warn("mapper does not learn from feedback, ignoring feedback.path")
		}
		return nil
	}
	if a.cfg.Feedback.Path == "" {
		return nil
	}
	a.feedback = feedback.NewFileStore(a.cfg.Feedback.Path)
	n, err := a.feedback.Replay(learner)
	if err != nil {
		return err
	}
	slog.Info("replayed mapping feedback", "path", a.cfg.Feedback.Path, "records", n)
	return nil
}

func (a *App) initProcessor() error {
	pcfg := ProcessorConfig(a.cfg.Pipeline)
	pcfg.VisionOptions = a.providers.VisionOptions
	pcfg.GeneratorOptions = a.providers.GeneratorOptions
	pcfg.OutputOptions = a.providers.OutputOptions

	proc, err := processor.New(processor.Collaborators{
		Source:    a.providers.Source,
		Vision:    a.providers.Vision,
		Mapper:    a.providers.Mapper,
		Generator: a.providers.Generator,
		Output:    a.providers.Output,
	}, processor.WithConfig(pcfg), processor.WithMetrics(a.metrics))
	if err != nil {
		return err
	}
	a.proc = proc
	a.closers = append(a.closers, proc.Close)

	if a.history != nil {
		if err := proc.On(processor.EventMusicGenerated, a.recordHistory); err != nil {
			return err
		}
	}
	return proc.On(processor.EventError, func(ev processor.Event) error {
		if ev.Fatal {
			slog.Error("processor stopped on fatal error", "run_id", ev.RunID, "err", ev.Err)
		}
		return nil
	})
}

// recordHistory stores freshly generated music. It runs on the generation
// goroutine, so the insert is time-boxed.
func (a *App) recordHistory(ev processor.Event) error {
	if ev.Audio == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	return a.history.Record(ctx, history.NewEntry(ev.RunID, ev.Class, ev.Audio))
}

func (a *App) initControl() {
	opts := []control.Option{
		control.WithMetrics(a.metrics),
		control.WithVersion(a.version),
	}
	if learner, ok := a.providers.Mapper.(mapper.Learner); ok {
		opts = append(opts, control.WithFeedback(feedbackSink{store: a.feedback, learner: learner}))
	}
	if a.history != nil {
		opts = append(opts, control.WithHistory(a.history))
	}
	a.control = control.New(a.proc, opts...)
}

// buildHandler assembles health, metrics and the MCP endpoint behind the
// observability middleware.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()

	checks := []health.Checker{health.Pipeline(a.proc.Running)}
	if a.history != nil {
		checks = append(checks, health.Ping("history", a.history))
	}
	health.New(checks...).Register(mux)

	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	if a.cfg.Server.MCPEnabled {
		mux.Handle("/mcp", a.control.Handler())
	}
	return observe.Middleware(a.metrics)(mux)
}

// feedbackSink applies feedback to the mapper and persists it when a store
// is configured.
type feedbackSink struct {
	store   *feedback.FileStore
	learner mapper.Learner
}

func (f feedbackSink) Submit(fb mapper.Feedback) error {
	if f.store == nil {
		return f.learner.UpdateWeights(fb)
	}
	return f.store.Submit(f.learner, fb)
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Processor returns the running processor.
func (a *App) Processor() *processor.Processor { return a.proc }

// Control returns the MCP control server.
func (a *App) Control() *control.Server { return a.control }

// Handler returns the HTTP surface: /healthz, /readyz, /metrics and /mcp.
func (a *App) Handler() http.Handler { return a.handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the processor and, when server.listen_addr is set, the HTTP
// server. It blocks until ctx is cancelled and returns context.Canceled (or
// the underlying cause), or the first serve error.
func (a *App) Run(ctx context.Context) error {
	if err := a.proc.Start(ctx); err != nil {
		return fmt.Errorf("app: start processor: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           a.handler,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		g.Go(func() error {
			slog.Info("http server listening", "addr", addr, "tls", a.cfg.Server.TLS != nil)
			var err error
			if tls := a.cfg.Server.TLS; tls != nil {
				err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			} else {
				err = srv.ListenAndServe()
			}
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("app: http server: %w", err)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), readHeaderTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("app running", "run_id", a.proc.Status().RunID)
	<-gctx.Done()

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ApplyConfig applies the hot-reloadable part of a config change to the
// running app. Fields the diff does not flag are ignored.
func (a *App) ApplyConfig(cfg *config.Config, d config.ConfigDiff) {
	pcfg := ProcessorConfig(cfg.Pipeline)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.Slog())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.TransitionModeChanged {
		if err := a.proc.SetTransitionMode(pcfg.TransitionMode); err != nil {
			slog.Warn("apply transition mode", "err", err)
		}
	}
	if d.ThresholdChanged {
		if err := a.proc.SetThreshold(pcfg.ConfidenceThreshold); err != nil {
			slog.Warn("apply confidence threshold", "err", err)
		}
	}
	if d.CooldownChanged {
		if err := a.proc.SetCooldown(pcfg.Cooldown); err != nil {
			slog.Warn("apply cooldown", "err", err)
		}
	}
	if d.TempoToleranceChanged {
		if err := a.proc.SetTempoTolerance(pcfg.TempoTolerance); err != nil {
			slog.Warn("apply tempo tolerance", "err", err)
		}
	}
	if d.RestartRequired {
		slog.Warn("config changed fields that need a restart to take effect")
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the processor and tears down all subsystems in reverse
// init order.
// It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.proc.Stop(ctx); err != nil {
			slog.Warn("processor stop error", "err", err)
		}

		// Processor first so no history insert races the pool close.
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
