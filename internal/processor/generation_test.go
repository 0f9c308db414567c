package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/sonoscope/internal/processor"
	"github.com/MrWong99/sonoscope/pkg/types"
)

func TestGeneration_TimeoutKeepsActiveState(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(r *rig, _ *processor.Config) { r.gen.Estimate = 20 * time.Millisecond })
	r.see(t, det("cup", 0.9, 10, 10))
	r.events.wait(t, processor.EventMusicGenerated)
	before := r.p.Status()

	r.gen.SetDelay(time.Second)
	r.clock.Advance(3 * time.Second)
	r.see(t, det("plant", 0.9, 10, 10))

	ev := r.events.wait(t, processor.EventError)
	var te *processor.GenerationTimeoutError
	if !errors.As(ev.Err, &te) {
		t.Fatalf("want GenerationTimeoutError, got %v", ev.Err)
	}
	if te.Class != "plant" || te.Budget != 30*time.Millisecond {
		t.Errorf("want plant with 30ms budget, got %s with %s", te.Class, te.Budget)
	}
	if !errors.Is(ev.Err, context.DeadlineExceeded) {
		t.Errorf("want DeadlineExceeded in chain, got %v", ev.Err)
	}

	eventually(t, "generator to observe cancellation", func() bool {
		calls := r.gen.Calls()
		return len(calls) == 2 && calls[1].Cancelled
	})
	// Give a late second report the chance to show up.
	time.Sleep(50 * time.Millisecond)
	if n := len(r.events.of(processor.EventError)); n != 1 {
		t.Errorf("want exactly one error event, got %d", n)
	}

	after := r.p.Status()
	if after.ActiveClass != before.ActiveClass || !after.Active.Equal(*before.Active) {
		t.Errorf("want active state unchanged, got %s %+v", after.ActiveClass, after.Active)
	}
	s := r.p.Stats(false)
	if s.GenerationTimeouts != 1 || s.GenerationFailures != 0 {
		t.Errorf("want 1 timeout and no failures, got %d and %d", s.GenerationTimeouts, s.GenerationFailures)
	}
	if n := len(r.events.of(processor.EventMusicGenerated)); n != 1 {
		t.Errorf("want no music_generated for the timed out request, got %d", n)
	}
}

func TestGeneration_ZeroEstimateUsesDefault(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(r *rig, cfg *processor.Config) {
		r.gen.Estimate = 0
		r.gen.Delay = time.Second
		cfg.DefaultEstimate = 40 * time.Millisecond
	})
	r.see(t, det("cup", 0.9, 10, 10))

	ev := r.events.wait(t, processor.EventError)
	var te *processor.GenerationTimeoutError
	if !errors.As(ev.Err, &te) || te.Budget != 60*time.Millisecond {
		t.Fatalf("want timeout with 60ms budget, got %v", ev.Err)
	}
}

func TestGeneration_Failure(t *testing.T) {
	t.Parallel()

	boom := errors.New("model crashed")
	r := newRig(t, func(r *rig, _ *processor.Config) { r.gen.GenerateErr = boom })
	r.see(t, det("cup", 0.9, 10, 10))

	ev := r.events.wait(t, processor.EventError)
	var ge *processor.GenerationError
	if !errors.As(ev.Err, &ge) || ge.Class != "cup" || !errors.Is(ev.Err, boom) {
		t.Fatalf("want GenerationError for cup wrapping cause, got %v", ev.Err)
	}
	if got := r.p.Stats(false).GenerationFailures; got != 1 {
		t.Errorf("want 1 generation failure, got %d", got)
	}
	if st := r.p.Status(); st.Active != nil || st.ActiveClass != "" {
		t.Errorf("want nothing active after failure, got %+v", st)
	}
}

func TestGeneration_InvalidAudioIsFailure(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(r *rig, _ *processor.Config) {
		r.gen.Audio = &types.GeneratedAudio{
			Samples:    make([]float32, 100),
			SampleRate: 1000,
			Duration:   5 * time.Second,
		}
	})
	r.see(t, det("cup", 0.9, 10, 10))

	ev := r.events.wait(t, processor.EventError)
	var ge *processor.GenerationError
	if !errors.As(ev.Err, &ge) {
		t.Fatalf("want GenerationError, got %v", ev.Err)
	}
	if got := r.p.Stats(false).GenerationFailures; got != 1 {
		t.Errorf("want 1 generation failure, got %d", got)
	}
}

func TestGeneration_QueuedStartsAfterTimeout(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(r *rig, _ *processor.Config) {
		r.gen.Estimate = 20 * time.Millisecond
		r.gen.Delay = time.Second
	})
	r.see(t, det("cup", 0.9, 10, 10))
	r.clock.Advance(3 * time.Second)
	r.see(t, det("plant", 0.9, 10, 10))

	for _, want := range []string{"cup", "plant"} {
		ev := r.events.wait(t, processor.EventError)
		var te *processor.GenerationTimeoutError
		if !errors.As(ev.Err, &te) || te.Class != want {
			t.Fatalf("want timeout for %s, got %v", want, ev.Err)
		}
	}
	if got := r.p.Stats(false).GenerationTimeouts; got != 2 {
		t.Errorf("want 2 timeouts, got %d", got)
	}
}

func TestStop_CancelsInflightSilently(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(r *rig, _ *processor.Config) {
		r.gen.Estimate = 10 * time.Second
		r.gen.Delay = 5 * time.Second
	})
	r.see(t, det("cup", 0.9, 10, 10))
	r.clock.Advance(3 * time.Second)
	r.see(t, det("plant", 0.9, 10, 10))

	if err := r.p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	eventually(t, "generator to observe cancellation", func() bool {
		calls := r.gen.Calls()
		return len(calls) == 1 && calls[0].Cancelled
	})
	time.Sleep(50 * time.Millisecond)
	if n := len(r.events.of(processor.EventError)); n != 0 {
		t.Errorf("want no error events for a cancelled request, got %d", n)
	}
	if n := len(r.gen.Calls()); n != 1 {
		t.Errorf("want queued request dropped, got %d Generate calls", n)
	}
}
