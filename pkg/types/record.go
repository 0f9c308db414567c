package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ParametersRecord is the flat, serialisable form of [MusicalParameters].
// It is what gets logged, stored in history, sent to remote generators, and
// written in custom mapping files. Durations are in seconds.
type ParametersRecord struct {
	Tempo                int      `json:"tempo" yaml:"tempo"`
	Key                  string   `json:"key" yaml:"key"`
	TimeSignature        string   `json:"time_signature" yaml:"time_signature"`
	Style                string   `json:"style" yaml:"style"`
	PrimaryInstruments   []string `json:"primary_instruments" yaml:"primary_instruments"`
	SecondaryInstruments []string `json:"secondary_instruments" yaml:"secondary_instruments"`
	EnergyLevel          float64  `json:"energy_level" yaml:"energy_level"`
	Complexity           float64  `json:"complexity" yaml:"complexity"`
	Brightness           float64  `json:"brightness" yaml:"brightness"`
	Tension              float64  `json:"tension" yaml:"tension"`
	Duration             float64  `json:"duration" yaml:"duration"`
	FadeIn               float64  `json:"fade_in" yaml:"fade_in"`
	FadeOut              float64  `json:"fade_out" yaml:"fade_out"`
	HarmonicRichness     float64  `json:"harmonic_richness" yaml:"harmonic_richness"`
	RhythmicComplexity   float64  `json:"rhythmic_complexity" yaml:"rhythmic_complexity"`
	MelodicRange         string   `json:"melodic_range" yaml:"melodic_range"`
}

// ToRecord flattens p. Instrument lists are never nil in the record.
func (p MusicalParameters) ToRecord() ParametersRecord {
	return ParametersRecord{
		Tempo:                p.Tempo,
		Key:                  p.Key.String(),
		TimeSignature:        p.TimeSignature.String(),
		Style:                string(p.Style),
		PrimaryInstruments:   instrumentTags(p.PrimaryInstruments),
		SecondaryInstruments: instrumentTags(p.SecondaryInstruments),
		EnergyLevel:          p.Energy,
		Complexity:           p.Complexity,
		Brightness:           p.Brightness,
		Tension:              p.Tension,
		Duration:             p.Duration.Seconds(),
		FadeIn:               p.FadeIn.Seconds(),
		FadeOut:              p.FadeOut.Seconds(),
		HarmonicRichness:     p.HarmonicRichness,
		RhythmicComplexity:   p.RhythmicComplexity,
		MelodicRange:         string(p.MelodicRange),
	}
}

// FromRecord rebuilds and validates a parameter set. Empty instrument lists
// become nil.
func FromRecord(r ParametersRecord) (MusicalParameters, error) {
	var errs []error
	key, err := ParseKey(r.Key)
	if err != nil {
		errs = append(errs, err)
	}
	ts, err := ParseTimeSignature(r.TimeSignature)
	if err != nil {
		errs = append(errs, err)
	}
	primary, err := parseInstruments(r.PrimaryInstruments)
	if err != nil {
		errs = append(errs, err)
	}
	secondary, err := parseInstruments(r.SecondaryInstruments)
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return MusicalParameters{}, err
	}

	p := MusicalParameters{
		Tempo:                r.Tempo,
		Key:                  key,
		TimeSignature:        ts,
		Style:                Style(r.Style),
		PrimaryInstruments:   primary,
		SecondaryInstruments: secondary,
		Energy:               r.EnergyLevel,
		Complexity:           r.Complexity,
		Brightness:           r.Brightness,
		Tension:              r.Tension,
		Duration:             seconds(r.Duration),
		FadeIn:               seconds(r.FadeIn),
		FadeOut:              seconds(r.FadeOut),
		HarmonicRichness:     r.HarmonicRichness,
		RhythmicComplexity:   r.RhythmicComplexity,
		MelodicRange:         MelodicRange(r.MelodicRange),
	}
	if err := p.Validate(); err != nil {
		return MusicalParameters{}, err
	}
	return p, nil
}

func instrumentTags(in []Instrument) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func parseInstruments(tags []string) ([]Instrument, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	out := make([]Instrument, len(tags))
	for i, t := range tags {
		in := Instrument(t)
		if !in.IsValid() {
			return nil, fmt.Errorf("types: unknown instrument %q", t)
		}
		out[i] = in
	}
	return out, nil
}

// seconds converts float seconds to a Duration, rounding to the nearest
// microsecond so that values survive a float round trip.
func seconds(s float64) time.Duration {
	us := math.Round(s * 1e6)
	return time.Duration(us) * time.Microsecond
}
