// Package processor is the real-time music processor: it turns a stream of
// detections into evolving music.
//
// Each frame is detected, filtered by confidence and reduced to one
// dominant object. When the dominant class changes and the cooldown has
// passed, the object is mapped to musical parameters; parameters that
// differ materially from what is playing are rendered by the generator on
// its own goroutine, time-boxed by the generator's estimate. Finished audio
// is handed to a transition.Manager, which blends it into the output.
//
// At most one generation request is in flight. A request for another class
// arriving meanwhile is queued, and a later one replaces it.
//
// All mutable state lives behind one mutex. Event handlers are called
// without it, so handlers may call back into the Processor, Stop included.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/sonoscope/internal/capture"
	"github.com/MrWong99/sonoscope/internal/observe"
	"github.com/MrWong99/sonoscope/internal/transition"
	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/generator"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
	"github.com/MrWong99/sonoscope/pkg/provider/vision"
	"github.com/MrWong99/sonoscope/pkg/source"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// State is the lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Phase is what a running processor is busy with.
type Phase string

const (
	PhaseCapturing     Phase = "capturing"
	PhaseMapping       Phase = "mapping"
	PhaseGenerating    Phase = "generating"
	PhasePlaying       Phase = "playing"
	PhaseTransitioning Phase = "transitioning"
)

// Config holds the processor tunables. Use DefaultConfig as a base.
type Config struct {
	ConfidenceThreshold float64
	Cooldown            time.Duration
	TempoTolerance      int

	// SafetyFactor multiplies the generator's estimate into the time
	// budget. DefaultEstimate stands in for a zero estimate.
	SafetyFactor    float64
	DefaultEstimate time.Duration

	TransitionMode     transition.Mode
	TransitionDuration time.Duration

	QueueCapacity int
	FrameRate     float64
	StopGrace     time.Duration

	SynthesisRetryBackoff time.Duration
	MaxSynthesisFailures  int

	// Options passed to the collaborators' Initialize.
	VisionOptions    provider.Options
	GeneratorOptions provider.Options
	OutputOptions    provider.Options
}

// DefaultConfig returns the stock tunables.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:   0.7,
		Cooldown:              2 * time.Second,
		TempoTolerance:        5,
		SafetyFactor:          1.5,
		DefaultEstimate:       2 * time.Second,
		TransitionMode:        transition.ModeCrossfade,
		TransitionDuration:    transition.DefaultDuration,
		QueueCapacity:         2,
		FrameRate:             5,
		StopGrace:             2 * time.Second,
		SynthesisRetryBackoff: transition.DefaultRetryBackoff,
		MaxSynthesisFailures:  transition.DefaultMaxFailures,
	}
}

// Validate reports every out-of-range field.
func (c Config) Validate() error {
	var errs []error
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("confidence threshold must be in [0,1], got %v", c.ConfidenceThreshold))
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown))
	}
	if c.TempoTolerance < 0 {
		errs = append(errs, fmt.Errorf("tempo tolerance must not be negative, got %d", c.TempoTolerance))
	}
	if c.SafetyFactor < 1 {
		errs = append(errs, fmt.Errorf("safety factor must be at least 1, got %v", c.SafetyFactor))
	}
	if c.DefaultEstimate <= 0 {
		errs = append(errs, fmt.Errorf("default estimate must be positive, got %s", c.DefaultEstimate))
	}
	if !c.TransitionMode.IsValid() {
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownTransitionMode, c.TransitionMode))
	}
	if c.TransitionDuration <= 0 {
		errs = append(errs, fmt.Errorf("transition duration must be positive, got %s", c.TransitionDuration))
	}
	if c.QueueCapacity < capture.MinQueueCapacity || c.QueueCapacity > capture.MaxQueueCapacity {
		errs = append(errs, fmt.Errorf("queue capacity must be in [%d,%d], got %d", capture.MinQueueCapacity, capture.MaxQueueCapacity, c.QueueCapacity))
	}
	if c.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("frame rate must be positive, got %v", c.FrameRate))
	}
	if c.StopGrace <= 0 {
		errs = append(errs, fmt.Errorf("stop grace must be positive, got %s", c.StopGrace))
	}
	if c.MaxSynthesisFailures <= 0 {
		errs = append(errs, fmt.Errorf("max synthesis failures must be positive, got %d", c.MaxSynthesisFailures))
	}
	return errors.Join(errs...)
}

// Collaborators are the pluggable stages. Source may be nil, in which case
// the caller feeds detections through ProcessObjects.
type Collaborators struct {
	Source    source.Source
	Vision    vision.Processor
	Mapper    mapper.Mapper
	Generator generator.Generator
	Output    output.Output
}

// Option configures a Processor.
type Option func(*Processor)

// WithConfig replaces DefaultConfig.
func WithConfig(c Config) Option {
	return func(p *Processor) { p.cfg = c }
}

// WithClock replaces time.Now for cooldown, uptime and event times.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithMetrics mirrors counters to m instead of observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// Status describes what the processor is doing.
type Status struct {
	State          State
	Phase          Phase
	RunID          string
	ActiveClass    string
	Active         *types.MusicalParameters
	Degraded       bool
	TransitionMode transition.Mode
}

// Processor coordinates the pipeline. Create it with New.
type Processor struct {
	src     source.Source
	vision  vision.Processor
	mapper  mapper.Mapper
	gen     generator.Generator
	out     output.Output
	trans   *transition.Manager
	cfg     Config
	now     func() time.Time
	metrics *observe.Metrics
	logger  *slog.Logger
	bg      context.Context

	// life serializes Start and Stop.
	life sync.Mutex

	mu          sync.Mutex
	state       State
	runID       string
	initialized bool
	degraded    bool
	startedAt   time.Time
	stoppedAt   time.Time

	// --- tunables ---
	threshold float64
	cooldown  time.Duration
	tempoTol  int

	// --- playing and pending ---
	activeClass   string
	active        *types.MusicalParameters
	activeAudio   *types.GeneratedAudio
	lastRegen     time.Time
	inflight      *request
	queued        *request
	mapping       bool
	transitioning bool

	stats    Stats
	lat      latencies
	handlers map[EventType][]Handler

	// pipelineHandlers counts handler deliveries in progress on the
	// goroutines Stop waits for.
	pipelineHandlers atomic.Int32

	// --- current run ---
	queue     *capture.Queue
	runCtx    context.Context
	cancelRun context.CancelFunc
	runDone   chan struct{}
}

// New returns an idle Processor.
func New(c Collaborators, opts ...Option) (*Processor, error) {
	var errs []error
	if c.Vision == nil {
		errs = append(errs, errors.New("vision processor is required"))
	}
	if c.Mapper == nil {
		errs = append(errs, errors.New("mapper is required"))
	}
	if c.Generator == nil {
		errs = append(errs, errors.New("generator is required"))
	}
	if c.Output == nil {
		errs = append(errs, errors.New("output is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}

	p := &Processor{
		src:      c.Source,
		vision:   c.Vision,
		mapper:   c.Mapper,
		gen:      c.Generator,
		out:      c.Output,
		cfg:      DefaultConfig(),
		now:      time.Now,
		logger:   slog.Default(),
		bg:       context.Background(),
		state:    StateIdle,
		handlers: make(map[EventType][]Handler, len(EventTypes)),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("processor: invalid config: %w", err)
	}
	p.threshold = p.cfg.ConfidenceThreshold
	p.cooldown = p.cfg.Cooldown
	p.tempoTol = p.cfg.TempoTolerance

	p.trans = transition.New(transition.Config{
		Output:       p.out,
		Mode:         p.cfg.TransitionMode,
		Duration:     p.cfg.TransitionDuration,
		RetryBackoff: p.cfg.SynthesisRetryBackoff,
		MaxFailures:  p.cfg.MaxSynthesisFailures,
		OnStarted:    p.transitionStarted,
		OnCompleted:  p.transitionCompleted,
		OnFailure:    p.handoffFailed,
		Now:          p.now,
	})
	return p, nil
}

// Start initializes the collaborators on first use, opens the source and
// begins a new run. The run outlives ctx; only Stop ends it.
func (p *Processor) Start(ctx context.Context) error {
	p.life.Lock()
	defer p.life.Unlock()

	p.mu.Lock()
	if p.state == StateRunning {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	needInit := !p.initialized
	p.mu.Unlock()

	if needInit {
		if err := p.initialize(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotReady, err)
		}
		p.mu.Lock()
		p.initialized = true
		p.mu.Unlock()
	}
	if p.src != nil {
		if err := p.src.Open(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrNotReady, &ResourceError{Resource: "frame source", Err: err})
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.trans.Reset()

	p.mu.Lock()
	p.state = StateRunning
	p.mapping = false
	p.transitioning = false
	p.runID = uuid.NewString()
	p.degraded = false
	p.startedAt = p.now()
	p.stoppedAt = time.Time{}
	p.activeClass = ""
	p.active = nil
	p.activeAudio = nil
	p.lastRegen = time.Time{}
	p.inflight = nil
	p.queued = nil
	p.queue = capture.NewQueue(p.cfg.QueueCapacity)
	p.runCtx = runCtx
	p.cancelRun = cancel
	p.runDone = make(chan struct{})
	runID, queue, done := p.runID, p.queue, p.runDone
	p.mu.Unlock()

	var wg sync.WaitGroup
	wg.Go(func() { _ = p.trans.Run(runCtx) })
	if p.src != nil {
		wg.Go(func() { p.captureLoop(runCtx, runID, queue) })
		wg.Go(func() { p.worker(runCtx, queue) })
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	p.metrics.PipelineRunning.Add(p.bg, 1)
	p.logger.Info("processor started",
		"run_id", runID,
		"transition_mode", p.trans.Mode(),
		"threshold", p.cfg.ConfidenceThreshold,
		"has_source", p.src != nil,
	)
	return nil
}

// initialize prepares vision, generator and output in parallel.
func (p *Processor) initialize(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := p.vision.Initialize(gctx, p.cfg.VisionOptions); err != nil {
			return &InitializationError{Component: "vision", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := p.gen.Initialize(gctx, p.cfg.GeneratorOptions); err != nil {
			return &InitializationError{Component: "generator", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := p.out.Initialize(gctx, p.cfg.OutputOptions); err != nil {
			return &InitializationError{Component: "output", Err: err}
		}
		return nil
	})
	return g.Wait()
}

// Stop ends the run: the in-flight generation is cancelled, queued work is
// dropped and the output is silenced. It waits up to the stop grace for the
// pipeline goroutines, except when called from an event handler running on
// one of them. Stopping an idle or stopped processor is a no-op.
func (p *Processor) Stop(ctx context.Context) error {
	return p.stop(ctx, "")
}

// stop ends the run identified by runID, or whatever run is active when
// runID is empty.
func (p *Processor) stop(ctx context.Context, runID string) error {
	p.life.Lock()
	defer p.life.Unlock()

	p.mu.Lock()
	if p.state != StateRunning || (runID != "" && runID != p.runID) {
		p.mu.Unlock()
		return nil
	}
	p.state = StateStopped
	p.stoppedAt = p.now()
	if p.inflight != nil {
		p.inflight.cancel()
		p.inflight = nil
	}
	p.queued = nil
	flushed := p.queue.Flush()
	p.queue.Close()
	cancel, done := p.cancelRun, p.runDone
	runID = p.runID
	p.mu.Unlock()

	cancel()
	var errs []error
	if err := p.out.Stop(); err != nil {
		errs = append(errs, &ResourceError{Resource: "output", Err: err})
	}
	if p.src != nil {
		if err := p.src.Close(); err != nil {
			errs = append(errs, &ResourceError{Resource: "frame source", Err: err})
		}
	}

	if p.pipelineHandlers.Load() > 0 {
		// The caller may be one of those handlers, and its goroutine cannot
		// exit before Stop returns. The run is already cancelled.
		p.logger.Debug("stop called during a pipeline event, not waiting for goroutines", "run_id", runID)
	} else {
		t := time.NewTimer(p.cfg.StopGrace)
		defer t.Stop()
		select {
		case <-done:
		case <-t.C:
			p.logger.Warn("pipeline goroutines outlived stop grace", "run_id", runID, "grace", p.cfg.StopGrace)
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	p.metrics.PipelineRunning.Add(p.bg, -1)
	p.logger.Info("processor stopped", "run_id", runID, "flushed_frames", flushed)
	return errors.Join(errs...)
}

// Close stops the processor and releases the collaborators.
func (p *Processor) Close() error {
	errs := []error{p.Stop(context.Background())}
	p.mu.Lock()
	initialized := p.initialized
	p.initialized = false
	p.mu.Unlock()
	if initialized {
		errs = append(errs, p.vision.Cleanup(), p.gen.Cleanup())
	}
	errs = append(errs, p.out.Close())
	return errors.Join(errs...)
}

// stopAsync stops run runID from a pipeline goroutine, which Stop would
// otherwise wait on.
func (p *Processor) stopAsync(runID string, reason error) {
	go func() {
		p.logger.Warn("stopping run", "run_id", runID, "reason", reason)
		if err := p.stop(context.Background(), runID); err != nil {
			p.logger.Warn("internal stop", "run_id", runID, "err", err)
		}
	}()
}

// Status returns a snapshot of the lifecycle and the active state.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Status{
		State:          p.state,
		Phase:          p.phaseLocked(),
		RunID:          p.runID,
		ActiveClass:    p.activeClass,
		Degraded:       p.degraded,
		TransitionMode: p.trans.Mode(),
	}
	if p.active != nil {
		a := p.active.Clone()
		s.Active = &a
	}
	return s
}

// ActiveAudio returns the most recent generated audio of the run, or nil.
func (p *Processor) ActiveAudio() *types.GeneratedAudio {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeAudio
}

// Explain returns the mapper's rationale for objectName.
func (p *Processor) Explain(objectName string) string {
	return p.mapper.Explain(objectName)
}

// SetTransitionMode changes the mode used from the next transition on.
func (p *Processor) SetTransitionMode(mode transition.Mode) error {
	if err := p.trans.SetMode(mode); err != nil {
		return fmt.Errorf("%w %q", ErrUnknownTransitionMode, mode)
	}
	p.logger.Info("transition mode changed", "mode", mode)
	return nil
}

// SetThreshold changes the confidence threshold.
func (p *Processor) SetThreshold(t float64) error {
	if t < 0 || t > 1 {
		return fmt.Errorf("processor: threshold must be in [0,1], got %v", t)
	}
	p.mu.Lock()
	p.threshold = t
	p.mu.Unlock()
	return nil
}

// SetCooldown changes the minimum time between regenerations.
func (p *Processor) SetCooldown(d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("processor: cooldown must not be negative, got %s", d)
	}
	p.mu.Lock()
	p.cooldown = d
	p.mu.Unlock()
	return nil
}

// SetTempoTolerance changes how far the tempo may move before parameters
// count as materially different.
func (p *Processor) SetTempoTolerance(bpm int) error {
	if bpm < 0 {
		return fmt.Errorf("processor: tempo tolerance must not be negative, got %d", bpm)
	}
	p.mu.Lock()
	p.tempoTol = bpm
	p.mu.Unlock()
	return nil
}

// Running reports whether a run is active and not degraded.
func (p *Processor) Running() (running, degraded bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == StateRunning, p.degraded
}

// phaseLocked derives the phase from the run state. Callers hold mu.
func (p *Processor) phaseLocked() Phase {
	switch {
	case p.state != StateRunning:
		return ""
	case p.transitioning:
		return PhaseTransitioning
	case p.inflight != nil:
		return PhaseGenerating
	case p.mapping:
		return PhaseMapping
	case p.activeAudio != nil:
		return PhasePlaying
	}
	return PhaseCapturing
}
