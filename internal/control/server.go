// Package control exposes the running processor as an MCP server so that
// agents and operator tooling can inspect and steer it.
//
// Tools:
//   - "get_processing_stats": counter snapshot, optionally resetting it.
//   - "processor_status": lifecycle state, phase and the music playing now.
//   - "set_transition_mode": switches between instant, fade and crossfade.
//   - "explain_mapping": the mapper's rationale for an object class.
//   - "submit_feedback": nudges a class's mapping dials (when configured).
//   - "recent_music": recently generated music from history (when configured).
//
// The server is reachable over streamable HTTP via [Server.Handler] or over
// any [mcp.Transport] via [Server.Connect].
package control

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/sonoscope/internal/history"
	"github.com/MrWong99/sonoscope/internal/observe"
	"github.com/MrWong99/sonoscope/internal/processor"
	"github.com/MrWong99/sonoscope/internal/transition"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
)

// Pipeline is the part of the processor the tools drive.
// *processor.Processor implements it.
type Pipeline interface {
	Stats(reset bool) processor.Stats
	Status() processor.Status
	SetTransitionMode(mode transition.Mode) error
	Explain(objectName string) string
}

var _ Pipeline = (*processor.Processor)(nil)

// FeedbackSink accepts listener feedback.
type FeedbackSink interface {
	Submit(fb mapper.Feedback) error
}

// HistoryReader lists generated music.
type HistoryReader interface {
	Recent(ctx context.Context, limit int, f history.Filter) ([]history.Entry, error)
}

var _ HistoryReader = (*history.Store)(nil)

// Option configures a [Server].
type Option func(*Server)

// WithFeedback enables the submit_feedback tool.
func WithFeedback(f FeedbackSink) Option {
	return func(s *Server) { s.feedback = f }
}

// WithHistory enables the recent_music tool.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// WithMetrics records tool calls on m instead of the default instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// Server is the MCP control surface.
type Server struct {
	pipeline Pipeline
	feedback FeedbackSink
	history  HistoryReader
	metrics  *observe.Metrics
	version  string

	mcp *mcp.Server
}

// New builds the server and registers its tools.
func New(p Pipeline, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		metrics:  observe.DefaultMetrics(),
		version:  "dev",
	}
	for _, o := range opts {
		o(s)
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: "sonoscope", Version: s.version}, nil)
	s.register()
	return s
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Connect serves one session over t until the peer disconnects.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// Handler serves the tools over streamable HTTP.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
}

// track wraps a tool handler with logging and the tool-call counter.
func track[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		res, out, err := h(ctx, req, in)
		status := "ok"
		if err != nil {
			status = "error"
			slog.Warn("control: tool failed", "tool", name, "err", err)
		}
		s.metrics.RecordToolCall(ctx, name, status)
		slog.Debug("control: tool call", "tool", name, "status", status, "duration", time.Since(start))
		return res, out, err
	}
}
