package table

import (
	"time"

	"github.com/MrWong99/sonoscope/pkg/types"
)

type entry struct {
	mood   string
	params types.MusicalParameters
}

// preset builds a parameter set from the neutral baseline.
func preset(style types.Style, tempo int, key types.MusicalKey, dials [4]float64, rng types.MelodicRange, instruments ...types.Instrument) types.MusicalParameters {
	p := types.NeutralParameters()
	p.Style = style
	p.Tempo = tempo
	p.Key = key
	p.Energy, p.Complexity, p.Brightness, p.Tension = dials[0], dials[1], dials[2], dials[3]
	p.HarmonicRichness = (dials[1] + dials[2]) / 2
	p.RhythmicComplexity = (dials[0] + dials[1]) / 2
	p.MelodicRange = rng
	p.PrimaryInstruments = instruments
	return p
}

// builtinEntries is the default desk-object table.
func builtinEntries() map[string]entry {
	cup := preset(types.StyleJazz, 95, types.Key("F", types.ModeMajor),
		[4]float64{0.45, 0.65, 0.55, 0.3}, types.RangeMedium,
		types.InstrumentPiano, types.InstrumentBass)
	cup.SecondaryInstruments = []types.Instrument{types.InstrumentPercussion}

	camera := preset(types.StyleRock, 124, types.Key("A", types.ModeMinor),
		[4]float64{0.85, 0.5, 0.6, 0.6}, types.RangeWide,
		types.InstrumentGuitar, types.InstrumentBass)
	camera.SecondaryInstruments = []types.Instrument{types.InstrumentPercussion}

	lamp := preset(types.StyleAmbient, 66, types.Key("F", types.ModeLydian),
		[4]float64{0.2, 0.3, 0.8, 0.1}, types.RangeHigh,
		types.InstrumentSynthesizer, types.InstrumentStrings)
	lamp.FadeIn = 3 * time.Second
	lamp.FadeOut = 3 * time.Second

	return map[string]entry{
		"plant": {"Peaceful, natural", preset(types.StyleAmbient, 72, types.Key("C", types.ModeMajor),
			[4]float64{0.3, 0.3, 0.6, 0.2}, types.RangeMedium,
			types.InstrumentSynthesizer, types.InstrumentStrings)},
		"book": {"Contemplative, intellectual", preset(types.StyleClassical, 60, types.Key("A", types.ModeMinor),
			[4]float64{0.25, 0.6, 0.4, 0.35}, types.RangeWide,
			types.InstrumentPiano, types.InstrumentStrings)},
		"cup": {"Cozy, intimate", cup},
		"laptop": {"Modern, focused", preset(types.StyleElectronic, 128, types.Key("D", types.ModeMinor),
			[4]float64{0.8, 0.55, 0.7, 0.5}, types.RangeMedium,
			types.InstrumentSynthesizer, types.InstrumentPercussion)},
		"guitar": {"Warm, nostalgic", preset(types.StyleFolk, 85, types.Key("G", types.ModeMajor),
			[4]float64{0.5, 0.4, 0.65, 0.2}, types.RangeMedium,
			types.InstrumentGuitar, types.InstrumentPercussion)},
		"phone": {"Restless, connected", preset(types.StyleElectronic, 112, types.Key("E", types.ModeMinor),
			[4]float64{0.7, 0.5, 0.75, 0.55}, types.RangeHigh,
			types.InstrumentSynthesizer, types.InstrumentBass)},
		"bottle": {"Airy, hollow", preset(types.StyleWorld, 92, types.Key("D", types.ModeDorian),
			[4]float64{0.5, 0.45, 0.5, 0.3}, types.RangeMedium,
			types.InstrumentWoodwinds, types.InstrumentPercussion)},
		"clock": {"Precise, insistent", preset(types.StyleExperimental, 100, types.Key("B", types.ModeMinor),
			[4]float64{0.55, 0.7, 0.4, 0.65}, types.RangeLow,
			types.InstrumentPercussion, types.InstrumentPiano)},
		"lamp":   {"Soft, glowing", lamp},
		"camera": {"Vivid, curious", camera},
	}
}
