package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/sonoscope/internal/transition"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// EventType names an event.
type EventType string

// Events delivered to handlers registered with On.
const (
	EventObjectDetected      EventType = "object_detected"
	EventMappingComputed     EventType = "mapping_computed"
	EventMusicGenerated      EventType = "music_generated"
	EventTransitionStarted   EventType = "transition_started"
	EventTransitionCompleted EventType = "transition_completed"
	EventError               EventType = "error"
)

// EventTypes lists every event in delivery-table order.
var EventTypes = []EventType{
	EventObjectDetected, EventMappingComputed, EventMusicGenerated,
	EventTransitionStarted, EventTransitionCompleted, EventError,
}

// IsValid reports whether t is one of EventTypes.
func (t EventType) IsValid() bool {
	switch t {
	case EventObjectDetected, EventMappingComputed, EventMusicGenerated,
		EventTransitionStarted, EventTransitionCompleted, EventError:
		return true
	}
	return false
}

// Event is delivered to handlers. Fields that do not apply to Type are
// zero.
type Event struct {
	Type  EventType
	Time  time.Time
	RunID string

	// Object is set for object_detected and mapping_computed.
	Object *types.DetectedObject

	// Class is the object class the music was generated for. Set for
	// music_generated.
	Class string

	// Parameters is set for mapping_computed, music_generated and the
	// transition events.
	Parameters *types.MusicalParameters

	// Audio is set for music_generated and the transition events.
	Audio *types.GeneratedAudio

	// Mode is set for the transition events.
	Mode transition.Mode

	// Err and Fatal are set for error events. A fatal error stops the
	// processor.
	Err   error
	Fatal bool
}

// Handler receives events. A returned error is logged and counted; it does
// not stop delivery to later handlers.
type Handler func(Event) error

// On appends h to the handlers for t. Handlers run synchronously, in
// registration order, on the goroutine that raised the event and never
// with the processor's lock held.
func (p *Processor) On(t EventType, h Handler) error {
	if !t.IsValid() {
		return fmt.Errorf("%w %q", ErrUnknownEvent, t)
	}
	if h == nil {
		return fmt.Errorf("processor: nil handler for %s", t)
	}
	p.mu.Lock()
	p.handlers[t] = append(p.handlers[t], h)
	p.mu.Unlock()
	return nil
}

type pipelineKey struct{}

// onPipeline marks ctx as belonging to a goroutine that Stop waits for.
func onPipeline(ctx context.Context) context.Context {
	return context.WithValue(ctx, pipelineKey{}, true)
}

func isPipeline(ctx context.Context) bool {
	v, _ := ctx.Value(pipelineKey{}).(bool)
	return v
}

// emit delivers events in order. Callers must not hold mu.
func (p *Processor) emit(events ...Event) {
	p.deliver(false, events)
}

// emitPipeline is emit for the playback and capture goroutines.
func (p *Processor) emitPipeline(events ...Event) {
	p.deliver(true, events)
}

// emitFrom is emit for code reached both from the worker goroutine and from
// callers of ProcessObjects.
func (p *Processor) emitFrom(ctx context.Context, events ...Event) {
	p.deliver(isPipeline(ctx), events)
}

func (p *Processor) deliver(pipeline bool, events []Event) {
	if pipeline {
		p.pipelineHandlers.Add(1)
		defer p.pipelineHandlers.Add(-1)
	}
	for _, ev := range events {
		p.mu.Lock()
		hs := p.handlers[ev.Type]
		if ev.RunID == "" {
			ev.RunID = p.runID
		}
		p.mu.Unlock()
		if ev.Time.IsZero() {
			ev.Time = p.now()
		}
		logEvent(p.logger, ev)
		for i, h := range hs {
			if err := p.call(h, ev); err != nil {
				p.logger.Warn("event handler failed", "event", ev.Type, "handler", i, "err", err)
				p.mu.Lock()
				p.stats.HandlerErrors++
				p.mu.Unlock()
				p.metrics.HandlerErrors.Add(p.bg, 1)
			}
		}
	}
}

func (p *Processor) call(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ev)
}

func logEvent(l *slog.Logger, ev Event) {
	if ev.Type != EventError {
		return
	}
	if ev.Fatal {
		l.Error("pipeline stopped", "run_id", ev.RunID, "err", ev.Err)
		return
	}
	l.Warn("pipeline error", "run_id", ev.RunID, "err", ev.Err)
}
