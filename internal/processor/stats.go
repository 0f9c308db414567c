package processor

import (
	"slices"
	"time"
)

// latencyWindow is the number of recent generation latencies kept for the
// average and p95.
const latencyWindow = 128

// Stats is a snapshot of the processor's counters.
type Stats struct {
	FramesProcessed    uint64
	FramesDropped      uint64
	DetectionsFiltered uint64
	DetectionErrors    uint64
	MappingFallbacks   uint64

	Regenerations      uint64
	CooldownSuppressed uint64
	Coalesced          uint64

	GenerationFailures uint64
	GenerationTimeouts uint64
	SynthesisFailures  uint64

	TransitionsStarted   uint64
	TransitionsCompleted uint64
	HandlerErrors        uint64

	// Latencies over the last 128 successful generations.
	AvgGenerationLatency time.Duration
	P95GenerationLatency time.Duration

	// Uptime is the age of the current run, or the length of the last run
	// once stopped.
	Uptime time.Duration
}

// latencies is a fixed-size ring of durations.
type latencies struct {
	buf  [latencyWindow]time.Duration
	n    int
	next int
}

func (l *latencies) add(d time.Duration) {
	l.buf[l.next] = d
	l.next = (l.next + 1) % latencyWindow
	l.n = min(l.n+1, latencyWindow)
}

func (l *latencies) reset() { *l = latencies{} }

// summary returns the mean and nearest-rank 95th percentile.
func (l *latencies) summary() (avg, p95 time.Duration) {
	if l.n == 0 {
		return 0, 0
	}
	s := slices.Clone(l.buf[:l.n])
	slices.Sort(s)
	var sum time.Duration
	for _, d := range s {
		sum += d
	}
	rank := (95*l.n + 99) / 100
	return sum / time.Duration(l.n), s[rank-1]
}

// Stats returns a snapshot. With reset, counters and the latency window are
// zeroed after the copy.
func (p *Processor) Stats(reset bool) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := p.stats
	s.AvgGenerationLatency, s.P95GenerationLatency = p.lat.summary()
	switch {
	case p.state == StateRunning:
		s.Uptime = p.now().Sub(p.startedAt)
	case !p.stoppedAt.IsZero():
		s.Uptime = p.stoppedAt.Sub(p.startedAt)
	}
	if reset {
		p.stats = Stats{}
		p.lat.reset()
	}
	return s
}
