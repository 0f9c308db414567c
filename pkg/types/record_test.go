package types_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/sonoscope/pkg/types"
)

func sampleParams() types.MusicalParameters {
	return types.MusicalParameters{
		Tempo:                128,
		Key:                  types.Key("F#", types.ModeMinor),
		TimeSignature:        types.TimeSignature{Numerator: 7, Denominator: 8},
		Style:                types.StyleElectronic,
		PrimaryInstruments:   []types.Instrument{types.InstrumentSynthesizer, types.InstrumentPercussion},
		SecondaryInstruments: []types.Instrument{types.InstrumentBass},
		Energy:               0.8,
		Complexity:           0.6,
		Brightness:           0.7,
		Tension:              0.3,
		Duration:             30 * time.Second,
		FadeIn:               1500 * time.Millisecond,
		FadeOut:              2 * time.Second,
		HarmonicRichness:     0.45,
		RhythmicComplexity:   0.9,
		MelodicRange:         types.RangeWide,
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    types.MusicalParameters
	}{
		{"full", sampleParams()},
		{"neutral", types.NeutralParameters()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := json.Marshal(tt.p.ToRecord())
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var rec types.ParametersRecord
			if err := json.Unmarshal(b, &rec); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			got, err := types.FromRecord(rec)
			if err != nil {
				t.Fatalf("FromRecord: %v", err)
			}
			if !got.Equal(tt.p) {
				t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", tt.p, got)
			}
		})
	}
}

func TestRecord_FlatFormat(t *testing.T) {
	t.Parallel()

	rec := sampleParams().ToRecord()
	if rec.Key != "F# Minor" {
		t.Errorf("want key %q, got %q", "F# Minor", rec.Key)
	}
	if rec.TimeSignature != "7/8" {
		t.Errorf("want time signature 7/8, got %q", rec.TimeSignature)
	}
	if rec.Duration != 30 {
		t.Errorf("want duration 30, got %v", rec.Duration)
	}

	b, err := json.Marshal(types.NeutralParameters().ToRecord())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, field := range []string{
		`"tempo"`, `"key"`, `"time_signature"`, `"style"`, `"primary_instruments"`,
		`"secondary_instruments":[]`, `"energy_level"`, `"complexity"`, `"brightness"`,
		`"tension"`, `"duration"`, `"harmonic_richness"`, `"rhythmic_complexity"`, `"melodic_range"`,
	} {
		if !strings.Contains(string(b), field) {
			t.Errorf("serialized record missing %s: %s", field, b)
		}
	}
}

func TestFromRecord_RejectsUnknownTags(t *testing.T) {
	t.Parallel()

	rec := types.NeutralParameters().ToRecord()
	rec.Style = "polka"
	rec.PrimaryInstruments = []string{"kazoo"}
	rec.Key = "H Major"

	_, err := types.FromRecord(rec)
	if err == nil {
		t.Fatal("want error for unknown tags, got nil")
	}
	for _, want := range []string{"kazoo", "tonic"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("want error mentioning %q, got %v", want, err)
		}
	}
}
