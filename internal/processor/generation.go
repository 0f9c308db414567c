package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/sonoscope/internal/observe"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// request is one generation job. ctx and cancel are set when it starts.
type request struct {
	runID  string
	class  string
	params types.MusicalParameters
	budget time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// budget returns the time box for params.
func (p *Processor) budget(params types.MusicalParameters) time.Duration {
	est := p.gen.EstimateTime(params)
	if est <= 0 {
		est = p.cfg.DefaultEstimate
	}
	return time.Duration(float64(est) * p.cfg.SafetyFactor)
}

// startLocked makes req the in-flight request and launches it. Callers
// hold mu.
func (p *Processor) startLocked(req *request) {
	req.ctx, req.cancel = context.WithTimeout(p.runCtx, req.budget)
	p.inflight = req
	go p.generate(req)
}

type genResult struct {
	audio *types.GeneratedAudio
	err   error
}

// render calls the generator but returns as soon as ctx is done, so a
// generator that ignores cancellation cannot hold up the pipeline.
func (p *Processor) render(ctx context.Context, params types.MusicalParameters) (*types.GeneratedAudio, error) {
	ch := make(chan genResult, 1)
	go func() {
		a, err := p.gen.Generate(ctx, params)
		ch <- genResult{a, err}
	}()
	select {
	case r := <-ch:
		return r.audio, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Processor) generate(req *request) {
	defer p.finish(req)

	ctx, span := observe.StageSpan(req.ctx, observe.StageGenerate, req.runID,
		attribute.String("sonoscope.class", req.class),
		attribute.String("sonoscope.style", string(req.params.Style)),
	)
	start := time.Now()
	audio, err := p.render(ctx, req.params)
	elapsed := time.Since(start)
	if err == nil {
		if audio == nil {
			err = errors.New("generator returned no audio")
		} else if verr := audio.Validate(); verr != nil {
			err = fmt.Errorf("invalid audio: %w", verr)
		}
	}
	observe.EndSpan(span, err)

	if err != nil {
		p.generationFailed(req, err)
		return
	}

	p.mu.Lock()
	if p.inflight != req {
		// Stopped or superseded by a new run while rendering.
		p.mu.Unlock()
		return
	}
	if audio.GenerationTime == 0 {
		audio.GenerationTime = elapsed
	}
	params := req.params.Clone()
	p.lat.add(elapsed)
	p.activeClass = req.class
	p.active = &params
	p.activeAudio = audio
	p.mu.Unlock()

	p.metrics.RecordGeneration(p.bg, elapsed, string(params.Style))
	p.logger.Info("music generated",
		"run_id", req.runID,
		"class", req.class,
		"style", params.Style,
		"tempo", params.Tempo,
		"key", params.Key,
		"latency", elapsed,
	)
	p.emit(Event{Type: EventMusicGenerated, RunID: req.runID, Class: req.class, Parameters: &params, Audio: audio})
	p.trans.Submit(audio)
}

// generationFailed classifies err and reports it. Cancellation by Stop is
// silent.
func (p *Processor) generationFailed(req *request, err error) {
	switch {
	case errors.Is(req.ctx.Err(), context.DeadlineExceeded):
		p.mu.Lock()
		p.stats.GenerationTimeouts++
		p.mu.Unlock()
		p.metrics.RecordGenerationFailure(p.bg, "timeout")
		p.emit(Event{
			Type:  EventError,
			RunID: req.runID,
			Err:   &GenerationTimeoutError{Class: req.class, Budget: req.budget, Err: context.DeadlineExceeded},
		})
	case req.ctx.Err() != nil:
		p.logger.Debug("generation cancelled", "run_id", req.runID, "class", req.class)
	default:
		p.mu.Lock()
		p.stats.GenerationFailures++
		p.mu.Unlock()
		p.metrics.RecordGenerationFailure(p.bg, "error")
		p.emit(Event{Type: EventError, RunID: req.runID, Err: &GenerationError{Class: req.class, Err: err}})
	}
}

// finish releases req and starts the queued request, if any.
func (p *Processor) finish(req *request) {
	req.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight != req {
		return
	}
	p.inflight = nil
	if p.queued == nil || p.state != StateRunning || p.runID != req.runID {
		return
	}
	next := p.queued
	p.queued = nil
	p.startLocked(next)
}
