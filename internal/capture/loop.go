package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/sonoscope/pkg/source"
)

// Default retry parameters.
const (
	defaultMaxRetries = 5
	defaultBackoff    = 100 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
	defaultInterval   = 200 * time.Millisecond
)

// ErrRetriesExhausted is wrapped by Run's error when the source kept
// failing after every retry.
var ErrRetriesExhausted = errors.New("capture: retries exhausted")

// LoopConfig configures a Loop.
type LoopConfig struct {
	Source source.Source
	Queue  *Queue

	// Interval is the read period, 1/frame_rate. Defaults to 200ms.
	Interval time.Duration

	// MaxRetries is the number of consecutive reopen attempts before Run
	// gives up. Defaults to 5.
	MaxRetries int

	// Backoff is the first retry delay; it doubles up to MaxBackoff.
	// Defaults to 100ms and 5s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// OnDrop is called for every frame evicted from the queue. May be nil.
	OnDrop func()

	// OnError is called for every failed read or reopen. May be nil.
	OnError func(attempt int, err error)
}

// Loop is the capture goroutine body.
type Loop struct {
	cfg LoopConfig
}

// NewLoop applies defaults to cfg.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Loop{cfg: cfg}
}

// Run reads frames until ctx is done, returning nil, or until the source
// fails MaxRetries times in a row, returning an error wrapping
// ErrRetriesExhausted and the last failure. The source must already be
// open.
func (l *Loop) Run(ctx context.Context) error {
	tick := time.NewTicker(l.cfg.Interval)
	defer tick.Stop()

	for {
		f, err := l.cfg.Source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err := l.recover(ctx, err); err != nil {
				return err
			}
		} else if l.cfg.Queue.Push(f) && l.cfg.OnDrop != nil {
			l.cfg.OnDrop()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

// recover reopens the source with exponential backoff until a read
// succeeds or retries run out. The successful frame is queued.
func (l *Loop) recover(ctx context.Context, cause error) error {
	backoff := l.cfg.Backoff
	last := cause
	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		if l.cfg.OnError != nil {
			l.cfg.OnError(attempt, last)
		}
		slog.Warn("frame source failed, reopening",
			"attempt", attempt,
			"max_retries", l.cfg.MaxRetries,
			"backoff", backoff,
			"err", last,
		)

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff = min(backoff*2, l.cfg.MaxBackoff)

		_ = l.cfg.Source.Close()
		if err := l.cfg.Source.Open(ctx); err != nil {
			last = err
			continue
		}
		f, err := l.cfg.Source.Read(ctx)
		if err != nil {
			last = err
			continue
		}
		slog.Info("frame source recovered", "attempt", attempt)
		if l.cfg.Queue.Push(f) && l.cfg.OnDrop != nil {
			l.cfg.OnDrop()
		}
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, l.cfg.MaxRetries, last)
}
