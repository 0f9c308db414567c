package processor

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/sonoscope/internal/capture"
	"github.com/MrWong99/sonoscope/internal/observe"
	"github.com/MrWong99/sonoscope/internal/transition"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/types"
)

type skipReason int

const (
	proceed skipReason = iota
	skipActive
	skipCoalesced
	skipCooldown
)

// ProcessObjects runs one decision cycle over a frame's detections. It
// returns ErrNotRunning unless a run is active; per-cycle failures are
// reported as error events, never returned.
func (p *Processor) ProcessObjects(ctx context.Context, dets []types.DetectedObject, meta types.FrameMetadata) error {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return ErrNotRunning
	}
	runID := p.runID
	kept, filtered := reliable(dets, p.threshold, meta)
	p.stats.DetectionsFiltered += uint64(filtered)
	if len(kept) == 0 {
		p.mu.Unlock()
		p.metrics.DetectionsFiltered.Add(p.bg, int64(filtered))
		return nil
	}
	obj, others := dominant(kept)
	skip := p.skipLocked(obj.ClassName)
	if skip == proceed {
		p.lastRegen = p.now()
		p.mapping = true
	}
	p.mu.Unlock()

	if filtered > 0 {
		p.metrics.DetectionsFiltered.Add(p.bg, int64(filtered))
	}
	p.emitFrom(ctx, Event{Type: EventObjectDetected, RunID: runID, Object: &obj})

	switch skip {
	case skipCoalesced:
		p.metrics.Coalesced.Add(p.bg, 1)
		return nil
	case skipCooldown:
		p.metrics.CooldownSuppressed.Add(p.bg, 1)
		return nil
	case skipActive:
		return nil
	}

	params := p.mapObject(ctx, runID, obj, others, meta)
	p.emitFrom(ctx, Event{Type: EventMappingComputed, RunID: runID, Object: &obj, Parameters: &params})
	p.request(runID, obj.ClassName, params)
	return nil
}

// skipLocked decides whether class can trigger a regeneration. Callers
// hold mu.
func (p *Processor) skipLocked(class string) skipReason {
	switch {
	case class == p.activeClass:
		// The scene went back to what is playing; a pending switch away
		// from it is stale.
		if p.queued != nil {
			p.logger.Debug("dropping stale queued request", "class", p.queued.class, "active", class)
			p.queued = nil
		}
		return skipActive
	case p.inflight != nil && p.inflight.class == class,
		p.queued != nil && p.queued.class == class:
		p.stats.Coalesced++
		return skipCoalesced
	case !p.lastRegen.IsZero() && p.now().Sub(p.lastRegen) < p.cooldown:
		p.stats.CooldownSuppressed++
		return skipCooldown
	}
	return proceed
}

// mapObject maps obj, falling back to the neutral parameters when the
// mapper fails or returns something invalid.
func (p *Processor) mapObject(ctx context.Context, runID string, obj types.DetectedObject, others []types.DetectedObject, meta types.FrameMetadata) types.MusicalParameters {
	defer func() {
		p.mu.Lock()
		p.mapping = false
		p.mu.Unlock()
	}()

	ctx, span := observe.StageSpan(ctx, observe.StageMap, runID, attribute.String("sonoscope.class", obj.ClassName))
	params, err := p.mapper.Map(ctx, obj, obj.Features(), mapper.Context{Frame: meta, Others: others})
	if err == nil {
		err = params.Validate()
	}
	observe.EndSpan(span, err)
	if err == nil {
		return params
	}

	p.mu.Lock()
	p.stats.MappingFallbacks++
	p.mu.Unlock()
	p.metrics.MappingFallbacks.Add(p.bg, 1)
	p.emitFrom(ctx, Event{Type: EventError, RunID: runID, Err: &MappingError{Class: obj.ClassName, Err: err}})
	return types.NeutralParameters()
}

// request starts or queues generation for params, or adopts class when
// params would sound the same as what is playing or pending.
func (p *Processor) request(runID, class string, params types.MusicalParameters) {
	budget := p.budget(params)

	p.mu.Lock()
	if p.state != StateRunning || p.runID != runID {
		p.mu.Unlock()
		return
	}
	var ref *types.MusicalParameters
	switch {
	case p.queued != nil:
		ref = &p.queued.params
	case p.inflight != nil:
		ref = &p.inflight.params
	default:
		ref = p.active
	}
	if ref != nil && !ref.MateriallyDifferent(params, p.tempoTol) {
		switch {
		case p.queued != nil:
			p.queued.class = class
		case p.inflight != nil:
			p.inflight.class = class
		default:
			p.activeClass = class
		}
		p.mu.Unlock()
		p.logger.Debug("adopted class without regeneration", "run_id", runID, "class", class, "style", params.Style)
		return
	}

	p.stats.Regenerations++
	req := &request{runID: runID, class: class, params: params, budget: budget}
	if p.inflight == nil {
		p.startLocked(req)
	} else {
		if p.queued != nil {
			p.logger.Debug("replacing queued request", "run_id", runID, "old", p.queued.class, "new", class)
		}
		p.queued = req
	}
	p.mu.Unlock()
	p.metrics.Regenerations.Add(p.bg, 1)
}

// worker drains q until it is closed or ctx is done.
func (p *Processor) worker(ctx context.Context, q *capture.Queue) {
	ctx = onPipeline(ctx)
	for {
		f, err := q.Pop(ctx)
		if err != nil {
			return
		}
		p.handleFrame(ctx, f)
	}
}

func (p *Processor) handleFrame(ctx context.Context, f types.Frame) {
	p.mu.Lock()
	runID := p.runID
	p.stats.FramesProcessed++
	p.mu.Unlock()
	p.metrics.FramesProcessed.Add(p.bg, 1)

	dctx, span := observe.StageSpan(ctx, observe.StageDetect, runID,
		attribute.Int64("sonoscope.frame_id", int64(f.Metadata.FrameID)))
	dets, err := p.vision.Detect(dctx, f)
	observe.EndSpan(span, err)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.mu.Lock()
		p.stats.DetectionErrors++
		p.mu.Unlock()
		p.metrics.DetectionErrors.Add(p.bg, 1)
		p.emitFrom(ctx, Event{Type: EventError, RunID: runID, Err: &DetectionError{FrameID: f.Metadata.FrameID, Err: err}})
		return
	}
	if err := p.ProcessObjects(ctx, dets, f.Metadata); err != nil && !errors.Is(err, ErrNotRunning) {
		p.logger.Warn("process objects", "run_id", runID, "err", err)
	}
}

// captureLoop feeds q from the source. When the source cannot be
// recovered the run is stopped.
func (p *Processor) captureLoop(ctx context.Context, runID string, q *capture.Queue) {
	loop := capture.NewLoop(capture.LoopConfig{
		Source:   p.src,
		Queue:    q,
		Interval: time.Duration(float64(time.Second) / p.cfg.FrameRate),
		OnDrop:   p.frameDropped,
		OnError: func(attempt int, err error) {
			p.emitPipeline(Event{Type: EventError, RunID: runID, Err: &ResourceError{Resource: "frame source", Err: err}})
		},
	})
	err := loop.Run(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	rerr := &ResourceError{Resource: "frame source", Err: err}
	p.emitPipeline(Event{Type: EventError, RunID: runID, Err: rerr, Fatal: true})
	p.stopAsync(runID, rerr)
}

func (p *Processor) frameDropped() {
	p.mu.Lock()
	p.stats.FramesDropped++
	p.mu.Unlock()
	p.metrics.FramesDropped.Add(p.bg, 1)
}

// --- transition.Manager callbacks, called on the playback goroutine ---

func (p *Processor) transitionStarted(info transition.Info) {
	p.mu.Lock()
	runID := p.runID
	p.stats.TransitionsStarted++
	p.transitioning = true
	p.mu.Unlock()

	p.metrics.RecordTransition(p.bg, string(info.Mode), "started")
	params := info.To.Parameters
	p.emitPipeline(Event{Type: EventTransitionStarted, RunID: runID, Parameters: &params, Audio: info.To, Mode: info.Mode})
}

func (p *Processor) transitionCompleted(info transition.Info) {
	p.mu.Lock()
	runID := p.runID
	p.stats.TransitionsCompleted++
	p.transitioning = false
	p.mu.Unlock()

	p.metrics.RecordTransition(p.bg, string(info.Mode), "completed")
	params := info.To.Parameters
	p.emitPipeline(Event{Type: EventTransitionCompleted, RunID: runID, Parameters: &params, Audio: info.To, Mode: info.Mode})
}

func (p *Processor) handoffFailed(info transition.Info, err error, breakerOpen bool) {
	p.mu.Lock()
	runID := p.runID
	p.stats.SynthesisFailures++
	p.transitioning = false
	if breakerOpen {
		p.degraded = true
	}
	p.mu.Unlock()

	p.metrics.SynthesisFailures.Add(p.bg, 1)
	serr := &SynthesisError{Err: err}
	p.emitPipeline(Event{Type: EventError, RunID: runID, Err: serr, Fatal: breakerOpen})
	if breakerOpen {
		p.stopAsync(runID, serr)
	}
}
