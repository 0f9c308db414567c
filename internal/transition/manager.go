// Package transition hands generated audio to the output and blends each
// new piece into the one that is playing.
//
// A Manager runs its own playback goroutine. Submit stores the next piece
// without blocking; if several arrive while a transition is still playing,
// only the latest is kept. The mode is read once when a transition starts,
// so SetMode never disturbs a blend in progress.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/sonoscope/internal/resilience"
	"github.com/MrWong99/sonoscope/pkg/provider/output"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// Defaults.
const (
	DefaultDuration     = 4 * time.Second
	DefaultRetryBackoff = 200 * time.Millisecond
	DefaultMaxFailures  = 3
)

// ErrHandoff wraps an output failure that survived the retry.
var ErrHandoff = errors.New("transition: output handoff failed")

// Info describes one transition.
type Info struct {
	Seq  uint64
	Mode Mode
	// From is nil for the first piece of a run.
	From *types.GeneratedAudio
	To   *types.GeneratedAudio
}

// Config configures a Manager.
type Config struct {
	Output output.Output
	Mode   Mode

	// Duration is the crossfade length. Default: 4s.
	Duration time.Duration

	// RetryBackoff is the pause before the single handoff retry. Default:
	// 200ms.
	RetryBackoff time.Duration

	// MaxFailures is the number of consecutive failed handoffs that opens
	// the breaker. Default: 3.
	MaxFailures int

	// OnStarted runs before each handoff and OnCompleted once the blended
	// region has played. Both run on the playback goroutine.
	OnStarted   func(Info)
	OnCompleted func(Info)

	// OnFailure runs after a handoff failed twice. breakerOpen reports that
	// the failure limit was reached.
	OnFailure func(info Info, err error, breakerOpen bool)

	Now func() time.Time
}

// Manager owns the audio that is playing and the pending target.
type Manager struct {
	out         output.Output
	duration    time.Duration
	backoff     time.Duration
	breaker     *resilience.CircuitBreaker
	onStarted   func(Info)
	onCompleted func(Info)
	onFailure   func(Info, error, bool)
	now         func() time.Time

	mu        sync.Mutex
	mode      Mode
	pending   *types.GeneratedAudio
	current   *types.GeneratedAudio
	stream    []float32
	rate      int
	startedAt time.Time
	seq       uint64

	wake chan struct{}
}

// New returns a Manager. An invalid cfg.Mode falls back to crossfade.
func New(cfg Config) *Manager {
	if !cfg.Mode.IsValid() {
		cfg.Mode = ModeCrossfade
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultDuration
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		out:         cfg.Output,
		duration:    cfg.Duration,
		backoff:     cfg.RetryBackoff,
		onStarted:   cfg.OnStarted,
		onCompleted: cfg.OnCompleted,
		onFailure:   cfg.OnFailure,
		now:         cfg.Now,
		mode:        cfg.Mode,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "output",
			MaxFailures:  cfg.MaxFailures,
			ResetTimeout: time.Hour,
		}),
		wake: make(chan struct{}, 1),
	}
}

// SetMode changes the mode used from the next transition on.
func (m *Manager) SetMode(mode Mode) error {
	if !mode.IsValid() {
		return fmt.Errorf("%w %q", ErrUnknownMode, mode)
	}
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	return nil
}

// Mode returns the mode the next transition will use.
func (m *Manager) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

// Submit makes a the next piece to play, replacing any piece that has not
// started yet. It never blocks.
func (m *Manager) Submit(a *types.GeneratedAudio) {
	if a == nil {
		return
	}
	m.mu.Lock()
	if m.pending != nil {
		slog.Debug("replacing pending audio", "style", m.pending.Parameters.Style)
	}
	m.pending = a
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Current returns the piece most recently handed to the output.
func (m *Manager) Current() *types.GeneratedAudio {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Reset forgets the playing and pending audio and closes the breaker. The
// next piece starts without a blend.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.pending, m.current, m.stream, m.rate = nil, nil, nil, 0
	m.mu.Unlock()
	m.breaker.Reset()
}

// Failures returns the consecutive failed handoff count.
func (m *Manager) Failures() int { return m.breaker.Failures() }

// Run plays submitted audio until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.wake:
		}
		m.mu.Lock()
		next := m.pending
		m.pending = nil
		m.mu.Unlock()
		if next != nil {
			m.transition(ctx, next)
		}
	}
}

func (m *Manager) transition(ctx context.Context, next *types.GeneratedAudio) {
	m.mu.Lock()
	mode := m.mode
	from := m.current
	var old []float32
	var oldParams types.MusicalParameters
	if from != nil {
		old = tail(m.stream, m.rate, m.now().Sub(m.startedAt))
		oldParams = from.Parameters
	}
	m.seq++
	seq := m.seq
	rate := m.rate
	m.mu.Unlock()

	p := build(mode, old, oldParams, rate, next, m.duration)
	if len(old) == 0 {
		from = nil
	}
	info := Info{Seq: seq, Mode: p.mode, From: from, To: next}
	slog.Debug("transition starting", "seq", seq, "mode", p.mode, "style", next.Parameters.Style, "samples", len(p.samples))

	if m.onStarted != nil {
		m.onStarted(info)
	}

	err := m.breaker.Execute(func() error { return m.handoff(ctx, p) })
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		open := m.breaker.State() == resilience.StateOpen
		slog.Error("audio handoff failed", "seq", seq, "err", err, "breaker_open", open)
		if m.onFailure != nil {
			m.onFailure(info, fmt.Errorf("%w: %w", ErrHandoff, err), open)
		}
		return
	}

	m.mu.Lock()
	m.current = next
	m.stream = p.samples
	m.rate = p.rate
	m.startedAt = m.now()
	m.mu.Unlock()

	if p.region > 0 {
		t := time.NewTimer(p.region)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
	if m.onCompleted != nil {
		m.onCompleted(info)
	}
}

// handoff plays p, retrying once after the backoff.
func (m *Manager) handoff(ctx context.Context, p plan) error {
	err := m.out.Play(ctx, p.samples, p.rate, false)
	if err == nil {
		return nil
	}
	slog.Warn("output rejected audio, retrying", "err", err, "backoff", m.backoff)

	t := time.NewTimer(m.backoff)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}
	return m.out.Play(ctx, p.samples, p.rate, false)
}
