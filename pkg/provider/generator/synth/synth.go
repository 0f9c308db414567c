// Package synth implements generator.Generator with a small procedural
// synthesizer.
//
// The renderer builds a diatonic chord progression in the requested key and
// mode, voices it with a pad, an optional bass line, an arpeggiated melody
// and a pulse, and shapes the mix with the parameter set's dials. Every
// rendering is deterministic. A Standard MIDI File of the same notes is
// attached to each result.
package synth

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/sonoscope/pkg/audio"
	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/generator"
	"github.com/MrWong99/sonoscope/pkg/types"
)

const (
	defaultSampleRate  = 44100
	defaultAmplitude   = 0.3
	defaultMaxDuration = 10 * time.Second
	maxEstimate        = 2 * time.Second
	middleC            = 261.6256
)

// progression holds scale degrees (0-based) for one chord per bar.
var progression = [4]int{0, 4, 5, 3}

// Generator is the procedural synthesizer. It is safe for concurrent use.
type Generator struct {
	mu          sync.RWMutex
	sampleRate  int
	amplitude   float64
	maxDuration time.Duration
	midi        bool
}

// New returns an uninitialised Generator with default settings. Initialize
// may still override them.
func New() *Generator {
	return &Generator{
		sampleRate:  defaultSampleRate,
		amplitude:   defaultAmplitude,
		maxDuration: defaultMaxDuration,
		midi:        true,
	}
}

// Initialize reads sample_rate, amplitude, max_duration and midi.
func (g *Generator) Initialize(_ context.Context, opts provider.Options) error {
	if err := opts.Check("sample_rate", "amplitude", "max_duration", "midi"); err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	rate, err := opts.Int("sample_rate", defaultSampleRate)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	amp, err := opts.Float("amplitude", defaultAmplitude)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	maxDur, err := opts.Duration("max_duration", defaultMaxDuration)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	withMIDI, err := opts.Bool("midi", true)
	if err != nil {
		return fmt.Errorf("synth: %w", err)
	}
	switch {
	case rate < 8000 || rate > 192000:
		return fmt.Errorf("synth: sample_rate must be in [8000,192000], got %d", rate)
	case amp <= 0 || amp > 1:
		return fmt.Errorf("synth: amplitude must be in (0,1], got %v", amp)
	case maxDur <= 0:
		return fmt.Errorf("synth: max_duration must be positive, got %s", maxDur)
	}

	g.mu.Lock()
	g.sampleRate, g.amplitude, g.maxDuration, g.midi = rate, amp, maxDur, withMIDI
	g.mu.Unlock()
	slog.Debug("synth generator initialised", "sample_rate", rate, "max_duration", maxDur)
	return nil
}

func (g *Generator) settings() (int, float64, time.Duration, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sampleRate, g.amplitude, g.maxDuration, g.midi
}

// Generate renders params, truncated to max_duration.
func (g *Generator) Generate(ctx context.Context, params types.MusicalParameters) (*types.GeneratedAudio, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("synth: %w", err)
	}
	start := time.Now()
	rate, amp, maxDur, withMIDI := g.settings()
	d := min(params.Duration, maxDur)

	score := compose(params, d)
	pcm, err := render(ctx, score, params, rate, d)
	if err != nil {
		return nil, err
	}
	shape(pcm, params, rate, amp)

	out := &types.GeneratedAudio{
		Samples:    pcm,
		SampleRate: rate,
		Duration:   time.Duration(len(pcm)) * time.Second / time.Duration(rate),
		Parameters: params.Clone(),
	}
	if withMIDI {
		if out.MIDI, err = writeMIDI(score, params); err != nil {
			return nil, fmt.Errorf("synth: midi: %w", err)
		}
	}
	out.GenerationTime = time.Since(start)
	return out, nil
}

// GenerateTransition renders d of each parameter set and crossfades them
// over the whole span.
func (g *Generator) GenerateTransition(ctx context.Context, from, to types.MusicalParameters, d time.Duration) (*types.GeneratedAudio, error) {
	if d <= 0 {
		return nil, fmt.Errorf("synth: transition duration must be positive, got %s", d)
	}
	rate, amp, _, _ := g.settings()
	a := from.Clone()
	b := to.Clone()
	a.Duration, a.FadeIn, a.FadeOut = d, 0, 0
	b.Duration, b.FadeIn, b.FadeOut = d, 0, 0

	oldPCM, err := render(ctx, compose(a, d), a, rate, d)
	if err != nil {
		return nil, err
	}
	shape(oldPCM, a, rate, amp)
	newPCM, err := render(ctx, compose(b, d), b, rate, d)
	if err != nil {
		return nil, err
	}
	shape(newPCM, b, rate, amp)

	pcm := audio.Crossfade(oldPCM, newPCM, len(newPCM))
	return &types.GeneratedAudio{
		Samples:    pcm,
		SampleRate: rate,
		Duration:   time.Duration(len(pcm)) * time.Second / time.Duration(rate),
		Parameters: to.Clone(),
	}, nil
}

// EstimateTime is min(2s, duration/10).
func (g *Generator) EstimateTime(params types.MusicalParameters) time.Duration {
	_, _, maxDur, _ := g.settings()
	return min(maxEstimate, min(params.Duration, maxDur)/10)
}

// SupportedStyles implements generator.Generator.
func (g *Generator) SupportedStyles() []types.Style { return types.AllStyles }

// SupportedInstruments implements generator.Generator.
func (g *Generator) SupportedInstruments() []types.Instrument { return types.AllInstruments }

// Cleanup implements generator.Generator.
func (g *Generator) Cleanup() error { return nil }

// ─── Rendering ───────────────────────────────────────────────────────────────

// note is one scheduled pitch in beats.
type note struct {
	voice    voice
	midi     uint8
	start    float64
	length   float64
	velocity float64
}

type voice int

const (
	voicePad voice = iota
	voiceBass
	voiceMelody
	voicePulse
)

type score struct {
	beatsPerBar int
	totalBeats  float64
	notes       []note
}

// compose schedules the notes for d at the parameter set's tempo.
func compose(p types.MusicalParameters, d time.Duration) score {
	beats := d.Minutes() * float64(p.Tempo)
	s := score{beatsPerBar: p.TimeSignature.Numerator, totalBeats: beats}
	intervals := p.Key.Mode.Intervals()
	root := 60 + p.Key.Semitone() + octaveShift(p.MelodicRange)*12

	degree := func(d int) int {
		return root + 12*(d/7) + intervals[d%7]
	}

	hasBass := hasInstrument(p, types.InstrumentBass) || p.Energy > 0.5
	hasPulse := hasInstrument(p, types.InstrumentPercussion) || p.Energy > 0.6
	subdiv := 1
	if p.RhythmicComplexity > 0.5 {
		subdiv = 2
	}

	for bar := 0; float64(bar*s.beatsPerBar) < beats; bar++ {
		at := float64(bar * s.beatsPerBar)
		length := math.Min(float64(s.beatsPerBar), beats-at)
		chord := progression[bar%len(progression)]
		for i := range 3 {
			s.notes = append(s.notes, note{voicePad, uint8(degree(chord + 2*i)), at, length, 0.5})
		}
		if hasBass {
			s.notes = append(s.notes, note{voiceBass, uint8(degree(chord) - 24), at, length, 0.7})
		}
		step := 1 / float64(subdiv)
		for i := 0; float64(i)*step < length; i++ {
			// Arpeggio walks root, third, fifth, octave.
			tone := []int{0, 2, 4, 7}[i%4]
			s.notes = append(s.notes, note{voiceMelody, uint8(degree(chord+tone) + 12), at + float64(i)*step, step * 0.9, 0.6})
		}
		if hasPulse {
			for b := 0; float64(b) < length; b++ {
				vel := 0.5
				if b == 0 {
					vel = 0.9
				}
				s.notes = append(s.notes, note{voicePulse, 36, at + float64(b), 0.25, vel})
			}
		}
	}
	return s
}

func octaveShift(r types.MelodicRange) int {
	switch r {
	case types.RangeLow:
		return -1
	case types.RangeHigh:
		return 1
	default:
		return 0
	}
}

func hasInstrument(p types.MusicalParameters, in types.Instrument) bool {
	for _, v := range p.PrimaryInstruments {
		if v == in {
			return true
		}
	}
	for _, v := range p.SecondaryInstruments {
		if v == in {
			return true
		}
	}
	return false
}

func freq(midi uint8) float64 {
	return middleC * math.Pow(2, float64(int(midi)-60)/12)
}

// render mixes the score into a mono buffer of exactly d.
func render(ctx context.Context, s score, p types.MusicalParameters, rate int, d time.Duration) ([]float32, error) {
	n := audio.Samples(d, rate)
	pcm := make([]float32, n)
	secPerBeat := 60 / float64(p.Tempo)
	overtones := 1 + int(math.Round(p.Brightness*3))

	gains := [...]float64{
		voicePad:    0.35 * (0.5 + p.HarmonicRichness),
		voiceBass:   0.45,
		voiceMelody: 0.25 * (0.5 + p.Complexity),
		voicePulse:  0.4 * p.Energy,
	}

	for i, nt := range s.notes {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		from := int(nt.start * secPerBeat * float64(rate))
		to := min(n, from+int(nt.length*secPerBeat*float64(rate)))
		if from >= n || to <= from {
			continue
		}
		f := freq(nt.midi)
		gain := gains[nt.voice] * nt.velocity
		span := float64(to - from)
		for j := from; j < to; j++ {
			t := float64(j-from) / float64(rate)
			pos := float64(j-from) / span
			var v float64
			switch nt.voice {
			case voicePulse:
				v = math.Sin(2*math.Pi*f*t) * math.Exp(-pos*12)
			case voiceMelody:
				v = partials(f, t, overtones) * envelope(pos, 0.05, 0.3)
			default:
				v = partials(f, t, overtones) * envelope(pos, 0.15, 0.15)
				if p.Tension > 0.5 && nt.voice == voicePad {
					// A semitone cluster under the pad adds grit.
					v += 0.3 * (p.Tension - 0.5) * math.Sin(2*math.Pi*f*1.0595*t)
				}
			}
			pcm[j] += float32(gain * v)
		}
	}
	return pcm, nil
}

func partials(f, t float64, count int) float64 {
	var v float64
	for k := 1; k <= count; k++ {
		v += math.Sin(2*math.Pi*f*float64(k)*t) / float64(k*k)
	}
	return v
}

// envelope is a linear attack/release shape over a note's normalised
// position.
func envelope(pos, attack, release float64) float64 {
	switch {
	case pos < attack:
		return pos / attack
	case pos > 1-release:
		return (1 - pos) / release
	default:
		return 1
	}
}

// shape normalises the peak to amp and applies the fades, each limited to
// half the buffer.
func shape(pcm []float32, p types.MusicalParameters, rate int, amp float64) {
	var peak float32
	for _, v := range pcm {
		peak = max(peak, v, -v)
	}
	if peak > 0 {
		audio.Gain(pcm, float32(amp)/peak)
	}
	half := len(pcm) / 2
	if in := min(audio.Samples(p.FadeIn, rate), half); in > 0 {
		copy(pcm, audio.FadeIn(pcm[:in], in))
	}
	if out := min(audio.Samples(p.FadeOut, rate), half); out > 0 {
		tail := pcm[len(pcm)-out:]
		copy(tail, audio.FadeOut(tail, out))
	}
}

var _ generator.Generator = (*Generator)(nil)
