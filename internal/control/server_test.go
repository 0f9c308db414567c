package control_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/sonoscope/internal/control"
	"github.com/MrWong99/sonoscope/internal/history"
	"github.com/MrWong99/sonoscope/internal/observe"
	"github.com/MrWong99/sonoscope/internal/processor"
	"github.com/MrWong99/sonoscope/internal/transition"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// ── fakes ────────────────────────────────────────────────────────────────────

type fakePipeline struct {
	mu       sync.Mutex
	stats    processor.Stats
	status   processor.Status
	resets   int
	modes    []transition.Mode
	modeErr  error
	explains []string
}

func (f *fakePipeline) Stats(reset bool) processor.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reset {
		f.resets++
	}
	return f.stats
}

func (f *fakePipeline) Status() processor.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakePipeline) SetTransitionMode(m transition.Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.modeErr != nil {
		return f.modeErr
	}
	f.modes = append(f.modes, m)
	return nil
}

func (f *fakePipeline) Explain(obj string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explains = append(f.explains, obj)
	return obj + " maps to something"
}

type fakeFeedback struct {
	mu  sync.Mutex
	got []mapper.Feedback
	err error
}

func (f *fakeFeedback) Submit(fb mapper.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, fb)
	return nil
}

type fakeHistory struct {
	entries []history.Entry
	limit   int
	filter  history.Filter
}

func (f *fakeHistory) Recent(_ context.Context, limit int, flt history.Filter) ([]history.Entry, error) {
	f.limit, f.filter = limit, flt
	return f.entries[:min(limit, len(f.entries))], nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

func connect(t *testing.T, s *control.Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	ct, st := mcp.NewInMemoryTransports()
	ss, err := s.Connect(ctx, st)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool %s: %v", name, err)
	}
	return res
}

// decode re-marshals the structured content into out.
func decode(t *testing.T, res *mcp.CallToolResult, out any) {
	t.Helper()
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", text(res))
	}
	raw, err := json.Marshal(res.StructuredContent)
	if err != nil {
		t.Fatalf("marshal structured content: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func text(res *mcp.CallToolResult) string {
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func toolNames(t *testing.T, cs *mcp.ClientSession) []string {
	t.Helper()
	var names []string
	for tool, err := range cs.Tools(context.Background(), nil) {
		if err != nil {
			t.Fatalf("list tools: %v", err)
		}
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	return names
}

// ── tests ────────────────────────────────────────────────────────────────────

func TestServer_ToolCatalogue(t *testing.T) {
	t.Parallel()

	base := connect(t, control.New(&fakePipeline{}))
	want := []string{"explain_mapping", "get_processing_stats", "processor_status", "set_transition_mode"}
	if got := toolNames(t, base); !slices.Equal(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}

	full := connect(t, control.New(&fakePipeline{},
		control.WithFeedback(&fakeFeedback{}),
		control.WithHistory(&fakeHistory{}),
	))
	got := toolNames(t, full)
	for _, name := range []string{"submit_feedback", "recent_music"} {
		if !slices.Contains(got, name) {
			t.Errorf("want %s registered, got %v", name, got)
		}
	}
}

func TestServer_GetProcessingStats(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{stats: processor.Stats{
		FramesProcessed:      42,
		Regenerations:        3,
		GenerationTimeouts:   1,
		AvgGenerationLatency: 1500 * time.Millisecond,
	}}
	cs := connect(t, control.New(p))

	var out struct {
		FramesProcessed      uint64  `json:"frames_processed"`
		Regenerations        uint64  `json:"regenerations"`
		GenerationTimeouts   uint64  `json:"generation_timeouts"`
		AvgGenerationSeconds float64 `json:"avg_generation_seconds"`
	}
	decode(t, call(t, cs, "get_processing_stats", map[string]any{"reset": true}), &out)

	if out.FramesProcessed != 42 || out.Regenerations != 3 || out.GenerationTimeouts != 1 {
		t.Errorf("unexpected counters: %+v", out)
	}
	if out.AvgGenerationSeconds != 1.5 {
		t.Errorf("want avg 1.5s, got %v", out.AvgGenerationSeconds)
	}
	if p.resets != 1 {
		t.Errorf("want 1 reset, got %d", p.resets)
	}
}

func TestServer_ProcessorStatus(t *testing.T) {
	t.Parallel()

	active := types.NeutralParameters()
	active.Style = types.StyleFolk
	p := &fakePipeline{status: processor.Status{
		State:          processor.StateRunning,
		Phase:          processor.PhasePlaying,
		RunID:          "run-7",
		ActiveClass:    "guitar",
		Active:         &active,
		TransitionMode: transition.ModeCrossfade,
	}}
	cs := connect(t, control.New(p))

	var out struct {
		State          string                  `json:"state"`
		Phase          string                  `json:"phase"`
		ActiveClass    string                  `json:"active_class"`
		Active         *types.ParametersRecord `json:"active"`
		TransitionMode string                  `json:"transition_mode"`
	}
	decode(t, call(t, cs, "processor_status", nil), &out)

	if out.State != "running" || out.Phase != "playing" || out.ActiveClass != "guitar" {
		t.Errorf("unexpected status: %+v", out)
	}
	if out.Active == nil || out.Active.Style != "folk" {
		t.Errorf("want folk parameters, got %+v", out.Active)
	}
	if out.TransitionMode != "crossfade" {
		t.Errorf("want crossfade, got %q", out.TransitionMode)
	}
}

func TestServer_SetTransitionMode(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{}
	cs := connect(t, control.New(p))

	var out struct {
		Mode string `json:"mode"`
	}
	decode(t, call(t, cs, "set_transition_mode", map[string]any{"mode": "smooth"}), &out)
	if out.Mode != "crossfade" {
		t.Errorf("smooth should resolve to crossfade, got %q", out.Mode)
	}
	if len(p.modes) != 1 || p.modes[0] != transition.ModeCrossfade {
		t.Errorf("want one crossfade call, got %v", p.modes)
	}

	res := call(t, cs, "set_transition_mode", map[string]any{"mode": "wipe"})
	if !res.IsError {
		t.Fatal("want tool error for unknown mode")
	}
	if !strings.Contains(text(res), "wipe") {
		t.Errorf("error should name the mode, got %q", text(res))
	}
	if len(p.modes) != 1 {
		t.Errorf("unknown mode must not reach the processor, got %v", p.modes)
	}
}

func TestServer_ExplainMapping(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{}
	cs := connect(t, control.New(p))

	var out struct {
		Object      string `json:"object"`
		Explanation string `json:"explanation"`
	}
	decode(t, call(t, cs, "explain_mapping", map[string]any{"object": " plant "}), &out)
	if out.Object != "plant" || out.Explanation != "plant maps to something" {
		t.Errorf("unexpected explanation: %+v", out)
	}

	if res := call(t, cs, "explain_mapping", map[string]any{"object": ""}); !res.IsError {
		t.Error("want tool error for empty object")
	}
}

func TestServer_SubmitFeedback(t *testing.T) {
	t.Parallel()

	fb := &fakeFeedback{}
	cs := connect(t, control.New(&fakePipeline{}, control.WithFeedback(fb)))

	var out struct {
		Accepted bool `json:"accepted"`
	}
	decode(t, call(t, cs, "submit_feedback", map[string]any{
		"class":       "cup",
		"adjustments": map[string]any{"energy": 0.5},
		"comment":     "more pep",
	}), &out)
	if !out.Accepted {
		t.Error("want accepted")
	}
	if len(fb.got) != 1 || fb.got[0].ClassName != "cup" || fb.got[0].Adjustments["energy"] != 0.5 {
		t.Errorf("unexpected feedback: %+v", fb.got)
	}

	fb.err = errors.New("unknown dial")
	res := call(t, cs, "submit_feedback", map[string]any{"class": "cup", "adjustments": map[string]any{"zest": 1}})
	if !res.IsError || !strings.Contains(text(res), "unknown dial") {
		t.Errorf("want learner error surfaced, got %q", text(res))
	}
}

func TestServer_RecentMusic(t *testing.T) {
	t.Parallel()

	h := &fakeHistory{entries: []history.Entry{
		{ClassName: "laptop", Parameters: types.ParametersRecord{Style: "electronic"}, GeneratedAt: time.Now()},
		{ClassName: "guitar", Parameters: types.ParametersRecord{Style: "folk"}, GeneratedAt: time.Now()},
	}}
	cs := connect(t, control.New(&fakePipeline{}, control.WithHistory(h)))

	var out struct {
		Entries []struct {
			Class string `json:"class"`
		} `json:"entries"`
	}
	decode(t, call(t, cs, "recent_music", map[string]any{"limit": 500, "exclude_class": "cup"}), &out)
	if len(out.Entries) != 2 || out.Entries[0].Class != "laptop" {
		t.Errorf("unexpected entries: %+v", out.Entries)
	}
	if h.limit != 50 {
		t.Errorf("limit should be capped at 50, got %d", h.limit)
	}
	if h.filter.ExcludeClass != "cup" {
		t.Errorf("want exclude_class passed through, got %+v", h.filter)
	}
}

func TestServer_RecordsToolCalls(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cs := connect(t, control.New(&fakePipeline{}, control.WithMetrics(m)))
	call(t, cs, "processor_status", nil)
	call(t, cs, "set_transition_mode", map[string]any{"mode": "nope"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := toolCalls(rm, "processor_status", "ok"); got != 1 {
		t.Errorf("want 1 ok processor_status call, got %d", got)
	}
	if got := toolCalls(rm, "set_transition_mode", "error"); got != 1 {
		t.Errorf("want 1 failed set_transition_mode call, got %d", got)
	}
}

func toolCalls(rm metricdata.ResourceMetrics, tool, status string) int64 {
	want := attribute.NewSet(attribute.String("status", status), attribute.String("tool", tool))
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "sonoscope.tool.calls" {
				continue
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				return -1
			}
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&want) {
					return dp.Value
				}
			}
		}
	}
	return 0
}
