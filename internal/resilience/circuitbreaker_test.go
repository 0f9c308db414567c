package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func fail(cb *CircuitBreaker, n int) {
	for range n {
		_ = cb.Execute(func() error { return errTest })
	}
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "test"})
	if cb.cfg.MaxFailures != 5 || cb.cfg.ResetTimeout != 30*time.Second || cb.cfg.HalfOpenMax != 3 {
		t.Errorf("want defaults 5/30s/3, got %d/%s/%d", cb.cfg.MaxFailures, cb.cfg.ResetTimeout, cb.cfg.HalfOpenMax)
	}
	if cb.State() != StateClosed {
		t.Errorf("want closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "output", MaxFailures: 3, ResetTimeout: time.Hour})
	fail(cb, 2)
	if cb.State() != StateClosed || cb.Failures() != 2 {
		t.Fatalf("want closed with 2 failures, got %s with %d", cb.State(), cb.Failures())
	}
	fail(cb, 1)
	if cb.State() != StateOpen {
		t.Fatalf("want open, got %s", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("want ErrCircuitOpen without calling fn, got %v (called=%v)", err, called)
	}
}

func TestCircuitBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 3})
	fail(cb, 2)
	_ = cb.Execute(func() error { return nil })
	fail(cb, 2)
	if cb.State() != StateClosed {
		t.Errorf("want closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenCycle(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Second, HalfOpenMax: 2, Now: clock.Now})
	fail(cb, 2)

	clock.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("want half-open after timeout, got %s", cb.State())
	}
	for i := range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("want closed after probes, got %s", cb.State())
	}
}

func TestCircuitBreaker_ProbeFailureReopens(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Second, Now: clock.Now})
	fail(cb, 2)
	clock.Advance(time.Second)
	fail(cb, 1)
	if cb.State() != StateOpen {
		t.Errorf("want open after failed probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	t.Parallel()

	type change struct{ from, to State }
	var got []change
	clock := newFakeClock()
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:         "synthesis",
		MaxFailures:  1,
		ResetTimeout: time.Second,
		HalfOpenMax:  1,
		Now:          clock.Now,
		OnStateChange: func(name string, from, to State) {
			if name != "synthesis" {
				t.Errorf("want name synthesis, got %q", name)
			}
			got = append(got, change{from, to})
		},
	})
	fail(cb, 1)
	clock.Advance(time.Second)
	_ = cb.Execute(func() error { return nil })

	want := []change{{StateClosed, StateOpen}, {StateOpen, StateHalfOpen}, {StateHalfOpen, StateClosed}}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("change %d: want %v, got %v", i, want[i], got[i])
		}
	}
}

func TestCircuitBreaker_RecordOutsideExecute(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2})
	if s := cb.Record(errTest, false); s != StateClosed {
		t.Errorf("want closed, got %s", s)
	}
	if s := cb.Record(errTest, false); s != StateOpen {
		t.Errorf("want open, got %s", s)
	}
	cb.Reset()
	if cb.State() != StateClosed || cb.Failures() != 0 {
		t.Errorf("want clean closed breaker after Reset, got %s with %d", cb.State(), cb.Failures())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d): want %q, got %q", s, want, got)
		}
	}
}
