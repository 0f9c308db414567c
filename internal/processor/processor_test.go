package processor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/sonoscope/internal/observe"
	"github.com/MrWong99/sonoscope/internal/processor"
	"github.com/MrWong99/sonoscope/internal/transition"
	genmock "github.com/MrWong99/sonoscope/pkg/provider/generator/mock"
	mapmock "github.com/MrWong99/sonoscope/pkg/provider/mapper/mock"
	outmock "github.com/MrWong99/sonoscope/pkg/provider/output/mock"
	visionmock "github.com/MrWong99/sonoscope/pkg/provider/vision/mock"
	"github.com/MrWong99/sonoscope/pkg/types"
)

const waitTimeout = 3 * time.Second

// --- helpers ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recorder collects every event the processor raises.
type recorder struct {
	mu     sync.Mutex
	events []processor.Event
	ch     chan processor.Event
}

func newRecorder(t *testing.T, p *processor.Processor) *recorder {
	t.Helper()
	r := &recorder{ch: make(chan processor.Event, 256)}
	for _, et := range processor.EventTypes {
		if err := p.On(et, r.record); err != nil {
			t.Fatalf("On(%s): %v", et, err)
		}
	}
	return r
}

func (r *recorder) record(ev processor.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	select {
	case r.ch <- ev:
	default:
	}
	return nil
}

// wait blocks until an event of type et arrives.
func (r *recorder) wait(t *testing.T, et processor.EventType) processor.Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.ch:
			if ev.Type == et {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", et)
			return processor.Event{}
		}
	}
}

func (r *recorder) of(et processor.EventType) []processor.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []processor.Event
	for _, ev := range r.events {
		if ev.Type == et {
			out = append(out, ev)
		}
	}
	return out
}

// eventually polls cond until it holds or the wait timeout passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type rig struct {
	p      *processor.Processor
	vision *visionmock.Processor
	mapper *mapmock.Mapper
	gen    *genmock.Generator
	out    *outmock.Output
	clock  *fakeClock
	events *recorder
	reader *sdkmetric.ManualReader
}

func params(style types.Style, tempo int, tonic string, mode types.Mode) types.MusicalParameters {
	p := types.NeutralParameters()
	p.Style = style
	p.Tempo = tempo
	p.Key = types.Key(tonic, mode)
	return p
}

var classParams = map[string]types.MusicalParameters{
	"cup":    params(types.StyleJazz, 95, "F", types.ModeMajor),
	"mug":    params(types.StyleJazz, 98, "F", types.ModeMajor),
	"plant":  params(types.StyleAmbient, 72, "C", types.ModeMajor),
	"book":   params(types.StyleClassical, 60, "A", types.ModeMinor),
	"laptop": params(types.StyleElectronic, 128, "D", types.ModeMinor),
}

func testConfig() processor.Config {
	cfg := processor.DefaultConfig()
	cfg.SynthesisRetryBackoff = time.Millisecond
	cfg.TransitionMode = transition.ModeInstant
	return cfg
}

// newRig builds a started processor over mocks. mutate may adjust the
// config and mocks before New.
func newRig(t *testing.T, mutate func(*rig, *processor.Config)) *rig {
	t.Helper()
	r := &rig{
		vision: &visionmock.Processor{},
		mapper: &mapmock.Mapper{ByClass: classParams, Default: types.NeutralParameters()},
		gen:    &genmock.Generator{Estimate: time.Second},
		out:    &outmock.Output{},
		clock:  newFakeClock(),
		reader: sdkmetric.NewManualReader(),
	}
	cfg := testConfig()
	if mutate != nil {
		mutate(r, &cfg)
	}
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(r.reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	p, err := processor.New(processor.Collaborators{
		Vision:    r.vision,
		Mapper:    r.mapper,
		Generator: r.gen,
		Output:    r.out,
	}, processor.WithConfig(cfg), processor.WithClock(r.clock.Now), processor.WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.p = p
	r.events = newRecorder(t, p)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return r
}

func det(class string, conf float64, w, h int) types.DetectedObject {
	return types.DetectedObject{ClassName: class, Confidence: conf, BBox: types.BoundingBox{Width: w, Height: h}}
}

func (r *rig) see(t *testing.T, dets ...types.DetectedObject) {
	t.Helper()
	if err := r.p.ProcessObjects(context.Background(), dets, types.FrameMetadata{Width: 640, Height: 480}); err != nil {
		t.Fatalf("ProcessObjects: %v", err)
	}
}

// --- lifecycle ---

func TestNew_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := processor.New(processor.Collaborators{Vision: &visionmock.Processor{}})
	if err == nil {
		t.Fatal("want error for missing collaborators")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := processor.DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	tests := []struct {
		name   string
		mutate func(*processor.Config)
	}{
		{"threshold", func(c *processor.Config) { c.ConfidenceThreshold = 1.5 }},
		{"cooldown", func(c *processor.Config) { c.Cooldown = -time.Second }},
		{"safety factor", func(c *processor.Config) { c.SafetyFactor = 0.5 }},
		{"mode", func(c *processor.Config) { c.TransitionMode = "wobble" }},
		{"queue", func(c *processor.Config) { c.QueueCapacity = 4 }},
		{"frame rate", func(c *processor.Config) { c.FrameRate = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := processor.DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestStart_InitFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("no model")
	p, err := processor.New(processor.Collaborators{
		Vision:    &visionmock.Processor{InitErr: boom},
		Mapper:    &mapmock.Mapper{},
		Generator: &genmock.Generator{},
		Output:    &outmock.Output{},
	}, processor.WithConfig(testConfig()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = p.Start(context.Background())
	if !errors.Is(err, processor.ErrNotReady) {
		t.Fatalf("want ErrNotReady, got %v", err)
	}
	var ie *processor.InitializationError
	if !errors.As(err, &ie) || ie.Component != "vision" {
		t.Fatalf("want InitializationError for vision, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("want cause preserved, got %v", err)
	}
	if got := p.Status().State; got != processor.StateIdle {
		t.Errorf("want state idle, got %s", got)
	}
}

func TestStart_AlreadyRunning(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	if err := r.p.Start(context.Background()); !errors.Is(err, processor.ErrAlreadyRunning) {
		t.Errorf("want ErrAlreadyRunning, got %v", err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	firstRun := r.p.Status().RunID
	for range 2 {
		if err := r.p.Stop(context.Background()); err != nil {
			t.Fatalf("Stop: %v", err)
		}
	}
	if got := r.p.Status().State; got != processor.StateStopped {
		t.Errorf("want stopped, got %s", got)
	}
	if n := r.out.Stops(); n != 1 {
		t.Errorf("want output stopped once, got %d", n)
	}
	err := r.p.ProcessObjects(context.Background(), []types.DetectedObject{det("cup", 0.9, 10, 10)}, types.FrameMetadata{})
	if !errors.Is(err, processor.ErrNotRunning) {
		t.Errorf("want ErrNotRunning after stop, got %v", err)
	}

	if err := r.p.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	st := r.p.Status()
	if st.State != processor.StateRunning || st.RunID == firstRun || st.RunID == "" {
		t.Errorf("want a fresh running run, got %+v", st)
	}
	if r.gen.InitCalls != 1 {
		t.Errorf("want collaborators initialized once, got %d", r.gen.InitCalls)
	}
}

// --- decision cycle ---

func TestProcessObjects_BelowThresholdNeverMaps(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("cup", 0.5, 10, 10), det("plant", 0.69, 50, 50))

	if n := r.mapper.MapCallCount(); n != 0 {
		t.Errorf("want no Map calls, got %d", n)
	}
	if n := len(r.gen.Calls()); n != 0 {
		t.Errorf("want no Generate calls, got %d", n)
	}
	if n := len(r.events.of(processor.EventObjectDetected)); n != 0 {
		t.Errorf("want no object_detected events, got %d", n)
	}
	if got := r.p.Stats(false).DetectionsFiltered; got != 2 {
		t.Errorf("want 2 filtered detections, got %d", got)
	}
}

func TestProcessObjects_InvalidDetectionNeverDominates(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("cup", 0.95, 100, 100), det("laptop", 1.7, 0, -5))
	r.events.wait(t, processor.EventMusicGenerated)

	calls := r.gen.Calls()
	if len(calls) != 1 || calls[0].Params.Style != types.StyleJazz {
		t.Fatalf("want one jazz generation for the cup, got %+v", calls)
	}
	if got := r.p.Stats(false).DetectionsFiltered; got != 1 {
		t.Errorf("want the invalid laptop filtered, got %d filtered", got)
	}
	ev := r.events.of(processor.EventObjectDetected)
	if len(ev) != 1 || ev[0].Object.ClassName != "cup" {
		t.Errorf("want cup as the only detected object, got %+v", ev)
	}
}

func TestProcessObjects_Cooldown(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("cup", 0.9, 10, 10))
	r.clock.Advance(500 * time.Millisecond)
	r.see(t, det("plant", 0.9, 10, 10))
	r.events.wait(t, processor.EventMusicGenerated)

	if n := len(r.gen.Calls()); n != 1 {
		t.Errorf("want exactly 1 generation, got %d", n)
	}
	s := r.p.Stats(false)
	if s.Regenerations != 1 || s.CooldownSuppressed != 1 {
		t.Errorf("want 1 regeneration and 1 suppression, got %d and %d", s.Regenerations, s.CooldownSuppressed)
	}
	if n := r.mapper.MapCallCount(); n != 1 {
		t.Errorf("want suppressed object left unmapped, got %d Map calls", n)
	}

	r.clock.Advance(2 * time.Second)
	r.see(t, det("plant", 0.9, 10, 10))
	r.events.wait(t, processor.EventMusicGenerated)
	if got := r.p.Status().ActiveClass; got != "plant" {
		t.Errorf("want plant active after cooldown, got %q", got)
	}
}

func TestProcessObjects_ActiveClassSkipped(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("cup", 0.9, 10, 10))
	r.events.wait(t, processor.EventMusicGenerated)

	r.clock.Advance(5 * time.Second)
	r.see(t, det("cup", 0.95, 20, 20))
	if n := r.mapper.MapCallCount(); n != 1 {
		t.Errorf("want active class not remapped, got %d Map calls", n)
	}
	if n := len(r.events.of(processor.EventObjectDetected)); n != 2 {
		t.Errorf("want object_detected for every reliable frame, got %d", n)
	}
	s := r.p.Stats(false)
	if s.Regenerations != 1 || s.Coalesced != 0 || s.CooldownSuppressed != 0 {
		t.Errorf("want no counter change for the active class, got %+v", s)
	}
}

func TestProcessObjects_CoalescedWithInflight(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(r *rig, _ *processor.Config) { r.gen.Delay = 200 * time.Millisecond })
	r.see(t, det("cup", 0.9, 10, 10))
	r.clock.Advance(3 * time.Second)
	r.see(t, det("cup", 0.9, 10, 10))

	if got := r.p.Status().Phase; got != processor.PhaseGenerating {
		t.Errorf("want phase generating, got %s", got)
	}
	r.events.wait(t, processor.EventMusicGenerated)
	s := r.p.Stats(false)
	if s.Coalesced != 1 || s.Regenerations != 1 {
		t.Errorf("want 1 coalesced and 1 regeneration, got %d and %d", s.Coalesced, s.Regenerations)
	}
}

func TestProcessObjects_QueueIsLatestWins(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(r *rig, _ *processor.Config) { r.gen.Delay = 150 * time.Millisecond })
	r.see(t, det("cup", 0.9, 10, 10))
	r.clock.Advance(3 * time.Second)
	r.see(t, det("plant", 0.9, 10, 10))
	r.clock.Advance(3 * time.Second)
	r.see(t, det("book", 0.9, 10, 10))

	r.events.wait(t, processor.EventMusicGenerated)
	r.events.wait(t, processor.EventMusicGenerated)

	calls := r.gen.Calls()
	if len(calls) != 2 {
		t.Fatalf("want 2 generations, got %d", len(calls))
	}
	if calls[0].Params.Style != types.StyleJazz || calls[1].Params.Style != types.StyleClassical {
		t.Errorf("want jazz then classical, got %s then %s", calls[0].Params.Style, calls[1].Params.Style)
	}
	if got := r.p.Status().ActiveClass; got != "book" {
		t.Errorf("want book active, got %q", got)
	}
	if got := r.p.Stats(false).Regenerations; got != 3 {
		t.Errorf("want 3 regenerations requested, got %d", got)
	}
}

func TestProcessObjects_MappingFallback(t *testing.T) {
	t.Parallel()

	boom := errors.New("mapper down")
	r := newRig(t, func(r *rig, _ *processor.Config) { r.mapper.MapErr = boom })
	r.see(t, det("cup", 0.9, 10, 10))

	ev := r.events.wait(t, processor.EventError)
	var me *processor.MappingError
	if !errors.As(ev.Err, &me) || me.Class != "cup" || !errors.Is(ev.Err, boom) {
		t.Fatalf("want MappingError for cup wrapping cause, got %v", ev.Err)
	}
	if ev.Fatal {
		t.Error("mapping errors are not fatal")
	}
	mc := r.events.wait(t, processor.EventMappingComputed)
	if !mc.Parameters.Equal(types.NeutralParameters()) {
		t.Errorf("want neutral fallback, got %+v", *mc.Parameters)
	}
	r.events.wait(t, processor.EventMusicGenerated)
	if got := r.p.Stats(false).MappingFallbacks; got != 1 {
		t.Errorf("want 1 mapping fallback, got %d", got)
	}
}

func TestProcessObjects_AdoptsSimilarParameters(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("cup", 0.9, 10, 10))
	r.events.wait(t, processor.EventMusicGenerated)

	// mug is jazz in F major at 98 BPM, within the 5 BPM tolerance of cup.
	r.clock.Advance(3 * time.Second)
	r.see(t, det("mug", 0.9, 10, 10))

	if n := len(r.gen.Calls()); n != 1 {
		t.Errorf("want no regeneration for similar parameters, got %d calls", n)
	}
	st := r.p.Status()
	if st.ActiveClass != "mug" {
		t.Errorf("want mug adopted, got %q", st.ActiveClass)
	}
	if st.Active.Tempo != 95 {
		t.Errorf("want playing parameters kept, got tempo %d", st.Active.Tempo)
	}
}

func TestProcessObjects_PassesOthersAsContext(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("plant", 0.8, 10, 10), det("cup", 0.9, 10, 10), det("book", 0.3, 10, 10))
	r.events.wait(t, processor.EventMappingComputed)

	call := r.mapper.MapCalls[0]
	if call.Object.ClassName != "cup" {
		t.Errorf("want cup mapped, got %s", call.Object.ClassName)
	}
	if len(call.Context.Others) != 1 || call.Context.Others[0].ClassName != "plant" {
		t.Errorf("want reliable plant as context, got %+v", call.Context.Others)
	}
	if call.Context.Frame.Width != 640 {
		t.Errorf("want frame metadata passed, got %+v", call.Context.Frame)
	}
}

// --- events ---

func TestOn_UnknownEvent(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	err := r.p.On("frame_captured", func(processor.Event) error { return nil })
	if !errors.Is(err, processor.ErrUnknownEvent) {
		t.Errorf("want ErrUnknownEvent, got %v", err)
	}
}

func TestHandlers_FailuresDoNotStopDelivery(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	var order []string
	var mu sync.Mutex
	add := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}
	_ = r.p.On(processor.EventObjectDetected, func(processor.Event) error {
		add("failing")
		return errors.New("handler broke")
	})
	_ = r.p.On(processor.EventObjectDetected, func(processor.Event) error {
		add("panicking")
		panic("handler exploded")
	})
	_ = r.p.On(processor.EventObjectDetected, func(processor.Event) error {
		add("last")
		return nil
	})

	r.see(t, det("cup", 0.9, 10, 10))

	mu.Lock()
	got := append([]string(nil), order...)
	mu.Unlock()
	want := []string{"failing", "panicking", "last"}
	if len(got) != len(want) {
		t.Fatalf("want handlers %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("handler %d: want %s, got %s", i, want[i], got[i])
		}
	}
	if n := r.p.Stats(false).HandlerErrors; n != 2 {
		t.Errorf("want 2 handler errors, got %d", n)
	}
}

func TestEvents_CarryRunID(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("cup", 0.9, 10, 10))
	ev := r.events.wait(t, processor.EventObjectDetected)
	if ev.RunID == "" || ev.RunID != r.p.Status().RunID {
		t.Errorf("want run ID %q, got %q", r.p.Status().RunID, ev.RunID)
	}
	if !ev.Time.Equal(r.clock.Now()) {
		t.Errorf("want event time from the injected clock, got %s", ev.Time)
	}
}

// --- tunables and stats ---

func TestHandlers_StopFromTransitionHandler(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(_ *rig, cfg *processor.Config) {
		cfg.StopGrace = 10 * time.Second
	})
	type result struct {
		err     error
		elapsed time.Duration
	}
	done := make(chan result, 1)
	var once sync.Once
	err := r.p.On(processor.EventTransitionCompleted, func(processor.Event) error {
		once.Do(func() {
			start := time.Now()
			err := r.p.Stop(context.Background())
			done <- result{err, time.Since(start)}
		})
		return nil
	})
	if err != nil {
		t.Fatalf("On: %v", err)
	}

	r.see(t, det("cup", 0.9, 10, 10))
	select {
	case res := <-done:
		if res.err != nil {
			t.Errorf("Stop: %v", res.err)
		}
		if res.elapsed > time.Second {
			t.Errorf("want Stop to return without waiting for its own goroutine, took %s", res.elapsed)
		}
	case <-time.After(waitTimeout):
		t.Fatal("Stop called from a transition handler did not return")
	}
	if st := r.p.Status().State; st != processor.StateStopped {
		t.Errorf("want stopped, got %s", st)
	}
}

func TestTransitions_UseInjectedClock(t *testing.T) {
	t.Parallel()

	r := newRig(t, func(_ *rig, cfg *processor.Config) {
		cfg.TransitionMode = transition.ModeCrossfade
	})
	r.see(t, det("cup", 0.9, 10, 10))
	r.events.wait(t, processor.EventTransitionCompleted)

	// The cup piece is 100ms long; on the injected clock it has finished,
	// so there is no tail left to crossfade.
	r.clock.Advance(3 * time.Second)
	r.see(t, det("laptop", 0.9, 10, 10))
	r.events.wait(t, processor.EventTransitionCompleted)

	started := r.events.of(processor.EventTransitionStarted)
	if len(started) != 2 {
		t.Fatalf("want 2 transitions, got %d", len(started))
	}
	if started[1].Mode != transition.ModeInstant {
		t.Errorf("want instant handoff after the cup piece ended, got %s", started[1].Mode)
	}
}

func TestSetTransitionMode(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	if err := r.p.SetTransitionMode("wobble"); !errors.Is(err, processor.ErrUnknownTransitionMode) {
		t.Errorf("want ErrUnknownTransitionMode, got %v", err)
	}
	if err := r.p.SetTransitionMode(transition.ModeFade); err != nil {
		t.Fatalf("SetTransitionMode: %v", err)
	}
	if got := r.p.Status().TransitionMode; got != transition.ModeFade {
		t.Errorf("want fade, got %s", got)
	}
}

func TestSetThreshold(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	if err := r.p.SetThreshold(2); err == nil {
		t.Error("want error for threshold above 1")
	}
	if err := r.p.SetThreshold(0.4); err != nil {
		t.Fatalf("SetThreshold: %v", err)
	}
	r.see(t, det("cup", 0.5, 10, 10))
	if n := r.mapper.MapCallCount(); n != 1 {
		t.Errorf("want detection above the lowered threshold mapped, got %d calls", n)
	}
}

func TestStats_Reset(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("cup", 0.9, 10, 10))
	r.events.wait(t, processor.EventMusicGenerated)
	r.clock.Advance(10 * time.Second)

	s := r.p.Stats(true)
	if s.Regenerations != 1 || s.AvgGenerationLatency <= 0 || s.P95GenerationLatency <= 0 {
		t.Errorf("want counters and latency before reset, got %+v", s)
	}
	if s.Uptime != 10*time.Second {
		t.Errorf("want uptime 10s, got %s", s.Uptime)
	}
	s = r.p.Stats(false)
	if s.Regenerations != 0 || s.AvgGenerationLatency != 0 {
		t.Errorf("want zeroed counters after reset, got %+v", s)
	}
}

func TestMetrics_MirrorCounters(t *testing.T) {
	t.Parallel()

	r := newRig(t, nil)
	r.see(t, det("cup", 0.9, 10, 10), det("plant", 0.1, 10, 10))
	r.events.wait(t, processor.EventMusicGenerated)

	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := map[string]int64{
		"sonoscope.regenerations":           1,
		"sonoscope.detections.filtered":     1,
		"sonoscope.pipeline.running":        1,
		"sonoscope.generation.failures":     0,
		"sonoscope.cooldown.suppressed":     0,
		"sonoscope.regenerations.coalesced": 0,
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					got[m.Name] += dp.Value
				}
			}
		}
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s: want %d, got %d", name, v, got[name])
		}
	}
}
