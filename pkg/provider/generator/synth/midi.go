package synth

import (
	"bytes"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/MrWong99/sonoscope/pkg/types"
)

// General MIDI programs per voice. The pulse voice uses channel 10 drums.
var programs = map[types.Instrument]uint8{
	types.InstrumentPiano:       0,
	types.InstrumentGuitar:      24,
	types.InstrumentBass:        32,
	types.InstrumentStrings:     48,
	types.InstrumentBrass:       61,
	types.InstrumentWoodwinds:   73,
	types.InstrumentSynthesizer: 89,
}

const drumChannel = 9

type midiEvent struct {
	tick uint32
	off  bool
	msg  midi.Message
}

// writeMIDI renders the score as a format-1 Standard MIDI File with one
// conductor track and one track per voice.
func writeMIDI(s score, p types.MusicalParameters) ([]byte, error) {
	file := smf.New()
	ticks := smf.MetricTicks(480)
	file.TimeFormat = ticks

	var conductor smf.Track
	conductor.Add(0, smf.MetaMeter(uint8(p.TimeSignature.Numerator), uint8(p.TimeSignature.Denominator)))
	conductor.Add(0, smf.MetaTempo(float64(p.Tempo)))
	conductor.Close(0)
	if err := file.Add(conductor); err != nil {
		return nil, err
	}

	lead := types.InstrumentPiano
	if len(p.PrimaryInstruments) > 0 {
		lead = p.PrimaryInstruments[0]
	}
	channels := []struct {
		v  voice
		ch uint8
	}{{voicePad, 0}, {voiceBass, 1}, {voiceMelody, 2}, {voicePulse, drumChannel}}
	for _, c := range channels {
		v, ch := c.v, c.ch
		var events []midiEvent
		for _, n := range s.notes {
			if n.voice != v {
				continue
			}
			on := uint32(math.Round(n.start * float64(ticks.Ticks4th())))
			off := on + max(1, uint32(math.Round(n.length*float64(ticks.Ticks4th()))))
			vel := uint8(max(1, min(127, math.Round(n.velocity*127))))
			events = append(events,
				midiEvent{on, false, midi.NoteOn(ch, n.midi, vel)},
				midiEvent{off, true, midi.NoteOff(ch, n.midi)},
			)
		}
		if len(events) == 0 {
			continue
		}
		// Note-offs sort before note-ons at the same tick so repeated
		// pitches retrigger.
		sort.SliceStable(events, func(i, j int) bool {
			if events[i].tick != events[j].tick {
				return events[i].tick < events[j].tick
			}
			return events[i].off && !events[j].off
		})

		var tr smf.Track
		if ch != drumChannel {
			prog := lead
			if v == voiceBass {
				prog = types.InstrumentBass
			}
			tr.Add(0, midi.ProgramChange(ch, programs[prog]))
		}
		var last uint32
		for _, e := range events {
			tr.Add(e.tick-last, e.msg)
			last = e.tick
		}
		tr.Close(0)
		if err := file.Add(tr); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
