package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/sonoscope/internal/history"
	"github.com/MrWong99/sonoscope/internal/processor"
	"github.com/MrWong99/sonoscope/internal/transition"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/types"
)

const maxRecent = 50

// --- inputs ---

type statsArgs struct {
	Reset bool `json:"reset,omitempty" jsonschema:"zero the counters after taking the snapshot"`
}

type modeArgs struct {
	Mode string `json:"mode" jsonschema:"one of instant, fade, crossfade (smooth is accepted for crossfade)"`
}

type explainArgs struct {
	Object string `json:"object" jsonschema:"object class name, e.g. guitar"`
}

type feedbackArgs struct {
	Class       string             `json:"class" jsonschema:"object class the feedback is about"`
	Adjustments map[string]float64 `json:"adjustments" jsonschema:"dial nudges in [-1, 1]: energy, complexity, brightness, tension"`
	Comment     string             `json:"comment,omitempty" jsonschema:"free-form listener comment"`
}

type recentArgs struct {
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of entries (default 10, max 50)"`
	Class string `json:"exclude_class,omitempty" jsonschema:"leave out entries for this class"`
}

// --- outputs ---

type statsResult struct {
	FramesProcessed      uint64  `json:"frames_processed"`
	FramesDropped        uint64  `json:"frames_dropped"`
	DetectionsFiltered   uint64  `json:"detections_filtered"`
	DetectionErrors      uint64  `json:"detection_errors"`
	MappingFallbacks     uint64  `json:"mapping_fallbacks"`
	Regenerations        uint64  `json:"regenerations"`
	CooldownSuppressed   uint64  `json:"cooldown_suppressed"`
	Coalesced            uint64  `json:"coalesced"`
	GenerationFailures   uint64  `json:"generation_failures"`
	GenerationTimeouts   uint64  `json:"generation_timeouts"`
	SynthesisFailures    uint64  `json:"synthesis_failures"`
	TransitionsStarted   uint64  `json:"transitions_started"`
	TransitionsCompleted uint64  `json:"transitions_completed"`
	HandlerErrors        uint64  `json:"handler_errors"`
	AvgGenerationSeconds float64 `json:"avg_generation_seconds"`
	P95GenerationSeconds float64 `json:"p95_generation_seconds"`
	UptimeSeconds        float64 `json:"uptime_seconds"`
}

type statusResult struct {
	State          string                  `json:"state"`
	Phase          string                  `json:"phase"`
	RunID          string                  `json:"run_id,omitempty"`
	ActiveClass    string                  `json:"active_class,omitempty"`
	Active         *types.ParametersRecord `json:"active,omitempty"`
	Degraded       bool                    `json:"degraded"`
	TransitionMode string                  `json:"transition_mode"`
}

type modeResult struct {
	Mode string `json:"mode"`
}

type explainResult struct {
	Object      string `json:"object"`
	Explanation string `json:"explanation"`
}

type feedbackResult struct {
	Accepted bool `json:"accepted"`
}

type recentEntry struct {
	Class           string                 `json:"class"`
	Parameters      types.ParametersRecord `json:"parameters"`
	GeneratedAt     string                 `json:"generated_at"`
	GenerationMilli int64                  `json:"generation_ms"`
}

type recentResult struct {
	Entries []recentEntry `json:"entries"`
}

func (s *Server) register() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_processing_stats",
		Description: "Returns the processor's pipeline counters and generation latencies.",
	}, track(s, "get_processing_stats", s.getStats))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "processor_status",
		Description: "Returns the processor's state, phase, and the music currently playing.",
	}, track(s, "processor_status", s.status))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "set_transition_mode",
		Description: "Changes how the next piece of music replaces the current one.",
	}, track(s, "set_transition_mode", s.setMode))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "explain_mapping",
		Description: "Explains how an object class is turned into music.",
	}, track(s, "explain_mapping", s.explain))

	if s.feedback != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "submit_feedback",
			Description: "Nudges the musical dials used for an object class.",
		}, track(s, "submit_feedback", s.submitFeedback))
	}
	if s.history != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "recent_music",
			Description: "Lists recently generated music, newest first.",
		}, track(s, "recent_music", s.recent))
	}
}

func (s *Server) getStats(_ context.Context, _ *mcp.CallToolRequest, in statsArgs) (*mcp.CallToolResult, statsResult, error) {
	st := s.pipeline.Stats(in.Reset)
	return nil, statsResult{
		FramesProcessed:      st.FramesProcessed,
		FramesDropped:        st.FramesDropped,
		DetectionsFiltered:   st.DetectionsFiltered,
		DetectionErrors:      st.DetectionErrors,
		MappingFallbacks:     st.MappingFallbacks,
		Regenerations:        st.Regenerations,
		CooldownSuppressed:   st.CooldownSuppressed,
		Coalesced:            st.Coalesced,
		GenerationFailures:   st.GenerationFailures,
		GenerationTimeouts:   st.GenerationTimeouts,
		SynthesisFailures:    st.SynthesisFailures,
		TransitionsStarted:   st.TransitionsStarted,
		TransitionsCompleted: st.TransitionsCompleted,
		HandlerErrors:        st.HandlerErrors,
		AvgGenerationSeconds: st.AvgGenerationLatency.Seconds(),
		P95GenerationSeconds: st.P95GenerationLatency.Seconds(),
		UptimeSeconds:        st.Uptime.Seconds(),
	}, nil
}

func (s *Server) status(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, statusResult, error) {
	st := s.pipeline.Status()
	out := statusResult{
		State:          string(st.State),
		Phase:          string(st.Phase),
		RunID:          st.RunID,
		ActiveClass:    st.ActiveClass,
		Degraded:       st.Degraded,
		TransitionMode: string(st.TransitionMode),
	}
	if st.Active != nil {
		rec := st.Active.ToRecord()
		out.Active = &rec
	}
	return nil, out, nil
}

func (s *Server) setMode(_ context.Context, _ *mcp.CallToolRequest, in modeArgs) (*mcp.CallToolResult, modeResult, error) {
	mode, err := transition.ParseMode(in.Mode)
	if err != nil {
		return nil, modeResult{}, fmt.Errorf("%w %q", processor.ErrUnknownTransitionMode, in.Mode)
	}
	if err := s.pipeline.SetTransitionMode(mode); err != nil {
		return nil, modeResult{}, err
	}
	return nil, modeResult{Mode: string(mode)}, nil
}

func (s *Server) explain(_ context.Context, _ *mcp.CallToolRequest, in explainArgs) (*mcp.CallToolResult, explainResult, error) {
	obj := strings.TrimSpace(in.Object)
	if obj == "" {
		return nil, explainResult{}, errors.New("object must not be empty")
	}
	return nil, explainResult{Object: obj, Explanation: s.pipeline.Explain(obj)}, nil
}

func (s *Server) submitFeedback(_ context.Context, _ *mcp.CallToolRequest, in feedbackArgs) (*mcp.CallToolResult, feedbackResult, error) {
	if strings.TrimSpace(in.Class) == "" {
		return nil, feedbackResult{}, errors.New("class must not be empty")
	}
	err := s.feedback.Submit(mapper.Feedback{
		ClassName:   in.Class,
		Adjustments: in.Adjustments,
		Comment:     in.Comment,
	})
	if err != nil {
		return nil, feedbackResult{}, err
	}
	return nil, feedbackResult{Accepted: true}, nil
}

func (s *Server) recent(ctx context.Context, _ *mcp.CallToolRequest, in recentArgs) (*mcp.CallToolResult, recentResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, maxRecent)
	entries, err := s.history.Recent(ctx, limit, history.Filter{ExcludeClass: in.Class})
	if err != nil {
		return nil, recentResult{}, err
	}
	out := recentResult{Entries: make([]recentEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, recentEntry{
			Class:           e.ClassName,
			Parameters:      e.Parameters,
			GeneratedAt:     e.GeneratedAt.UTC().Format(time.RFC3339),
			GenerationMilli: e.GenerationTime.Milliseconds(),
		})
	}
	return nil, out, nil
}
