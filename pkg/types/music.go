package types

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Style is the broad musical genre of a parameter set.
type Style string

const (
	StyleAmbient      Style = "ambient"
	StyleClassical    Style = "classical"
	StyleJazz         Style = "jazz"
	StyleElectronic   Style = "electronic"
	StyleFolk         Style = "folk"
	StyleRock         Style = "rock"
	StyleWorld        Style = "world"
	StyleExperimental Style = "experimental"
)

// AllStyles lists every Style in declaration order.
var AllStyles = []Style{
	StyleAmbient, StyleClassical, StyleJazz, StyleElectronic,
	StyleFolk, StyleRock, StyleWorld, StyleExperimental,
}

// IsValid reports whether s is a known style.
func (s Style) IsValid() bool {
	return slices.Contains(AllStyles, s)
}

// Instrument is an instrument family.
type Instrument string

const (
	InstrumentPiano       Instrument = "piano"
	InstrumentStrings     Instrument = "strings"
	InstrumentBrass       Instrument = "brass"
	InstrumentWoodwinds   Instrument = "woodwinds"
	InstrumentPercussion  Instrument = "percussion"
	InstrumentSynthesizer Instrument = "synthesizer"
	InstrumentGuitar      Instrument = "guitar"
	InstrumentBass        Instrument = "bass"
)

// AllInstruments lists every Instrument in declaration order.
var AllInstruments = []Instrument{
	InstrumentPiano, InstrumentStrings, InstrumentBrass, InstrumentWoodwinds,
	InstrumentPercussion, InstrumentSynthesizer, InstrumentGuitar, InstrumentBass,
}

// IsValid reports whether i is a known instrument family.
func (i Instrument) IsValid() bool {
	return slices.Contains(AllInstruments, i)
}

// MelodicRange is the pitch span a melody may cover.
type MelodicRange string

const (
	RangeLow    MelodicRange = "low"
	RangeMedium MelodicRange = "medium"
	RangeHigh   MelodicRange = "high"
	RangeWide   MelodicRange = "wide"
)

// IsValid reports whether r is a known range.
func (r MelodicRange) IsValid() bool {
	switch r {
	case RangeLow, RangeMedium, RangeHigh, RangeWide:
		return true
	}
	return false
}

// DefaultTempoTolerance is the BPM difference below which two parameter
// sets with the same style and key are considered musically equivalent.
const DefaultTempoTolerance = 5

// MusicalParameters fully describes the music to generate for one state.
//
// Treat values as immutable once built: share them by value and use
// [MusicalParameters.Clone] before handing one to another goroutine.
type MusicalParameters struct {
	Tempo         int
	Key           MusicalKey
	TimeSignature TimeSignature
	Style         Style

	PrimaryInstruments   []Instrument
	SecondaryInstruments []Instrument

	// Emotional dials, each in [0, 1].
	Energy     float64
	Complexity float64
	Brightness float64
	Tension    float64

	Duration time.Duration
	FadeIn   time.Duration
	FadeOut  time.Duration

	HarmonicRichness   float64
	RhythmicComplexity float64
	MelodicRange       MelodicRange
}

// NeutralParameters is the fallback used when mapping fails: a calm,
// balanced ambient bed.
func NeutralParameters() MusicalParameters {
	return MusicalParameters{
		Tempo:              80,
		Key:                Key("C", ModeMajor),
		TimeSignature:      TimeSignature{Numerator: 4, Denominator: 4},
		Style:              StyleAmbient,
		PrimaryInstruments: []Instrument{InstrumentSynthesizer},
		Energy:             0.5,
		Complexity:         0.5,
		Brightness:         0.5,
		Tension:            0.5,
		Duration:           30 * time.Second,
		FadeIn:             2 * time.Second,
		FadeOut:            2 * time.Second,
		HarmonicRichness:   0.5,
		RhythmicComplexity: 0.5,
		MelodicRange:       RangeMedium,
	}
}

// Validate returns every constraint violation joined into one error.
func (p MusicalParameters) Validate() error {
	var errs []error
	if p.Tempo <= 0 {
		errs = append(errs, fmt.Errorf("types: tempo must be positive, got %d", p.Tempo))
	}
	if err := p.Key.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := p.TimeSignature.Validate(); err != nil {
		errs = append(errs, err)
	}
	if !p.Style.IsValid() {
		errs = append(errs, fmt.Errorf("types: unknown style %q", p.Style))
	}
	for _, in := range slices.Concat(p.PrimaryInstruments, p.SecondaryInstruments) {
		if !in.IsValid() {
			errs = append(errs, fmt.Errorf("types: unknown instrument %q", in))
		}
	}
	dials := []struct {
		name string
		v    float64
	}{
		{"energy", p.Energy},
		{"complexity", p.Complexity},
		{"brightness", p.Brightness},
		{"tension", p.Tension},
		{"harmonic_richness", p.HarmonicRichness},
		{"rhythmic_complexity", p.RhythmicComplexity},
	}
	for _, d := range dials {
		if d.v < 0 || d.v > 1 {
			errs = append(errs, fmt.Errorf("types: %s %.3f outside [0,1]", d.name, d.v))
		}
	}
	if p.Duration < 0 || p.FadeIn < 0 || p.FadeOut < 0 {
		errs = append(errs, errors.New("types: durations must not be negative"))
	}
	if !p.MelodicRange.IsValid() {
		errs = append(errs, fmt.Errorf("types: unknown melodic range %q", p.MelodicRange))
	}
	return errors.Join(errs...)
}

// Clone returns a deep copy of p.
func (p MusicalParameters) Clone() MusicalParameters {
	p.PrimaryInstruments = slices.Clone(p.PrimaryInstruments)
	p.SecondaryInstruments = slices.Clone(p.SecondaryInstruments)
	return p
}

// Equal compares field by field. Nil and empty instrument lists are equal.
func (p MusicalParameters) Equal(o MusicalParameters) bool {
	if !slices.Equal(p.PrimaryInstruments, o.PrimaryInstruments) ||
		!slices.Equal(p.SecondaryInstruments, o.SecondaryInstruments) {
		return false
	}
	return p.Tempo == o.Tempo &&
		p.Key == o.Key &&
		p.TimeSignature == o.TimeSignature &&
		p.Style == o.Style &&
		p.Energy == o.Energy &&
		p.Complexity == o.Complexity &&
		p.Brightness == o.Brightness &&
		p.Tension == o.Tension &&
		p.Duration == o.Duration &&
		p.FadeIn == o.FadeIn &&
		p.FadeOut == o.FadeOut &&
		p.HarmonicRichness == o.HarmonicRichness &&
		p.RhythmicComplexity == o.RhythmicComplexity &&
		p.MelodicRange == o.MelodicRange
}

// MateriallyDifferent reports whether o changes style, key, or moves the
// tempo by more than tolerance BPM.
func (p MusicalParameters) MateriallyDifferent(o MusicalParameters, tolerance int) bool {
	if p.Style != o.Style || p.Key != o.Key {
		return true
	}
	diff := p.Tempo - o.Tempo
	if diff < 0 {
		diff = -diff
	}
	return diff > tolerance
}

// Mood projects the emotional dials into a fixed-order vector used for
// similarity search: energy, complexity, brightness, tension, harmonic
// richness, rhythmic complexity.
func (p MusicalParameters) Mood() []float32 {
	return []float32{
		float32(p.Energy), float32(p.Complexity), float32(p.Brightness),
		float32(p.Tension), float32(p.HarmonicRichness), float32(p.RhythmicComplexity),
	}
}
