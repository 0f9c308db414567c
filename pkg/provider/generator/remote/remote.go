// Package remote implements generator.Generator against a music model served
// over a WebSocket.
//
// Each request opens a connection and sends one JSON text frame:
//
//	{"type": "generate", "id": "...", "parameters": {...record...}}
//	{"type": "transition", "id": "...", "from": {...}, "to": {...}, "duration": 4}
//
// The server streams mono little-endian float32 PCM as binary frames and
// finishes with a text frame:
//
//	{"type": "done", "sample_rate": 32000, "midi": "<base64, optional>"}
//	{"type": "error", "message": "..."}
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/sonoscope/pkg/audio"
	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/generator"
	"github.com/MrWong99/sonoscope/pkg/types"
)

const (
	defaultEstimate  = 5 * time.Second
	defaultReadLimit = 64 << 20
)

// ErrNotInitialized is returned when Generate is called before Initialize.
var ErrNotInitialized = errors.New("remote: generator not initialized")

type request struct {
	Type       string                  `json:"type"`
	ID         string                  `json:"id"`
	Parameters *types.ParametersRecord `json:"parameters,omitempty"`
	From       *types.ParametersRecord `json:"from,omitempty"`
	To         *types.ParametersRecord `json:"to,omitempty"`
	Duration   float64                 `json:"duration,omitempty"`
}

type reply struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
	MIDI       []byte `json:"midi"`
	Message    string `json:"message"`
}

// Generator is the WebSocket client. It is safe for concurrent use; every
// call uses its own connection.
type Generator struct {
	mu        sync.RWMutex
	url       string
	header    http.Header
	estimate  time.Duration
	readLimit int64
	styles    []types.Style
}

// New returns an uninitialised Generator.
func New() *Generator {
	return &Generator{}
}

// Initialize reads url (required), api_key, estimate, read_limit and styles.
func (g *Generator) Initialize(_ context.Context, opts provider.Options) error {
	if err := opts.Check("url", "api_key", "estimate", "read_limit", "styles"); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	url, err := opts.String("url", "")
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if url == "" {
		return errors.New("remote: url is required")
	}
	key, err := opts.String("api_key", "")
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	est, err := opts.Duration("estimate", defaultEstimate)
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	limit, err := opts.Int("read_limit", defaultReadLimit)
	if err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	styles := types.AllStyles
	if raw, ok := opts["styles"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("remote: styles must be a list, got %T", raw)
		}
		styles = nil
		for _, v := range list {
			s := types.Style(fmt.Sprint(v))
			if !s.IsValid() {
				return fmt.Errorf("remote: unknown style %q", s)
			}
			styles = append(styles, s)
		}
	}

	header := http.Header{}
	if key != "" {
		header.Set("Authorization", "Bearer "+key)
	}

	g.mu.Lock()
	g.url, g.header, g.estimate, g.readLimit, g.styles = url, header, est, int64(limit), styles
	g.mu.Unlock()
	return nil
}

// Generate implements generator.Generator.
func (g *Generator) Generate(ctx context.Context, params types.MusicalParameters) (*types.GeneratedAudio, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	rec := params.ToRecord()
	return g.roundTrip(ctx, request{Type: "generate", Parameters: &rec}, params)
}

// GenerateTransition implements generator.Generator.
func (g *Generator) GenerateTransition(ctx context.Context, from, to types.MusicalParameters, d time.Duration) (*types.GeneratedAudio, error) {
	if d <= 0 {
		return nil, fmt.Errorf("remote: transition duration must be positive, got %s", d)
	}
	a, b := from.ToRecord(), to.ToRecord()
	return g.roundTrip(ctx, request{Type: "transition", From: &a, To: &b, Duration: d.Seconds()}, to)
}

func (g *Generator) roundTrip(ctx context.Context, req request, params types.MusicalParameters) (*types.GeneratedAudio, error) {
	g.mu.RLock()
	url, header, limit := g.url, g.header, g.readLimit
	g.mu.RUnlock()
	if url == "" {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("remote: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(limit)

	req.ID = uuid.NewString()
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote: encode request: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("remote: send request: %w", err)
	}

	var pcm []float32
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("remote: read: %w", err)
		}
		if typ == websocket.MessageBinary {
			chunk, err := audio.BytesToFloat32(msg)
			if err != nil {
				return nil, fmt.Errorf("remote: pcm frame: %w", err)
			}
			pcm = append(pcm, chunk...)
			continue
		}

		var r reply
		if err := json.Unmarshal(msg, &r); err != nil {
			return nil, fmt.Errorf("remote: decode reply: %w", err)
		}
		switch r.Type {
		case "done":
			conn.Close(websocket.StatusNormalClosure, "done")
			if r.SampleRate <= 0 {
				return nil, fmt.Errorf("remote: done without sample_rate")
			}
			return &types.GeneratedAudio{
				Samples:        pcm,
				SampleRate:     r.SampleRate,
				Duration:       time.Duration(len(pcm)) * time.Second / time.Duration(r.SampleRate),
				Parameters:     params.Clone(),
				MIDI:           r.MIDI,
				GenerationTime: time.Since(start),
			}, nil
		case "error":
			return nil, fmt.Errorf("remote: server error: %s", r.Message)
		default:
			// Progress or keep-alive frames.
		}
	}
}

// EstimateTime returns the configured estimate.
func (g *Generator) EstimateTime(types.MusicalParameters) time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.estimate
}

// SupportedStyles implements generator.Generator.
func (g *Generator) SupportedStyles() []types.Style {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.styles
}

// SupportedInstruments implements generator.Generator.
func (g *Generator) SupportedInstruments() []types.Instrument { return types.AllInstruments }

// Cleanup implements generator.Generator.
func (g *Generator) Cleanup() error { return nil }

var _ generator.Generator = (*Generator)(nil)
