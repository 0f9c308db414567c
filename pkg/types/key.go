package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Mode is a diatonic mode.
type Mode string

const (
	ModeMajor      Mode = "major"
	ModeMinor      Mode = "minor"
	ModeDorian     Mode = "dorian"
	ModePhrygian   Mode = "phrygian"
	ModeLydian     Mode = "lydian"
	ModeMixolydian Mode = "mixolydian"
	ModeAeolian    Mode = "aeolian"
	ModeLocrian    Mode = "locrian"
)

// IsValid reports whether m is a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeMajor, ModeMinor, ModeDorian, ModePhrygian, ModeLydian, ModeMixolydian, ModeAeolian, ModeLocrian:
		return true
	}
	return false
}

// Intervals returns the semitone offsets of the mode's scale degrees.
func (m Mode) Intervals() [7]int {
	switch m {
	case ModeMinor, ModeAeolian:
		return [7]int{0, 2, 3, 5, 7, 8, 10}
	case ModeDorian:
		return [7]int{0, 2, 3, 5, 7, 9, 10}
	case ModePhrygian:
		return [7]int{0, 1, 3, 5, 7, 8, 10}
	case ModeLydian:
		return [7]int{0, 2, 4, 6, 7, 9, 11}
	case ModeMixolydian:
		return [7]int{0, 2, 4, 5, 7, 9, 10}
	case ModeLocrian:
		return [7]int{0, 1, 3, 5, 6, 8, 10}
	default:
		return [7]int{0, 2, 4, 5, 7, 9, 11}
	}
}

// semitones from C for each natural tonic letter.
var letterSemitone = map[byte]int{'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11}

// MusicalKey is a tonic plus mode, e.g. "F# Minor".
type MusicalKey struct {
	// Tonic is a letter A–G optionally followed by '#' or 'b'.
	Tonic string
	Mode  Mode
}

// Key is shorthand for constructing a MusicalKey.
func Key(tonic string, mode Mode) MusicalKey {
	return MusicalKey{Tonic: tonic, Mode: mode}
}

// String renders "Tonic Mode" with the mode title-cased.
func (k MusicalKey) String() string {
	m := string(k.Mode)
	if m != "" {
		m = strings.ToUpper(m[:1]) + m[1:]
	}
	return k.Tonic + " " + m
}

// Validate checks the tonic spelling and the mode.
func (k MusicalKey) Validate() error {
	if _, err := tonicSemitone(k.Tonic); err != nil {
		return err
	}
	if !k.Mode.IsValid() {
		return fmt.Errorf("types: unknown mode %q", k.Mode)
	}
	return nil
}

// Semitone returns the tonic's pitch class (0 = C). Invalid tonics yield 0.
func (k MusicalKey) Semitone() int {
	s, _ := tonicSemitone(k.Tonic)
	return s
}

func tonicSemitone(tonic string) (int, error) {
	if len(tonic) == 0 || len(tonic) > 2 {
		return 0, fmt.Errorf("types: invalid tonic %q", tonic)
	}
	base, ok := letterSemitone[tonic[0]]
	if !ok {
		return 0, fmt.Errorf("types: invalid tonic letter %q", tonic)
	}
	if len(tonic) == 2 {
		switch tonic[1] {
		case '#':
			base++
		case 'b':
			base--
		default:
			return 0, fmt.Errorf("types: invalid accidental in tonic %q", tonic)
		}
	}
	return (base + 12) % 12, nil
}

// ParseKey parses "Tonic Mode". The mode is case-insensitive; the tonic
// letter is upper-cased.
func ParseKey(s string) (MusicalKey, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return MusicalKey{}, fmt.Errorf("types: key %q must be \"Tonic Mode\"", s)
	}
	tonic := fields[0]
	tonic = strings.ToUpper(tonic[:1]) + tonic[1:]
	k := MusicalKey{Tonic: tonic, Mode: Mode(strings.ToLower(fields[1]))}
	if err := k.Validate(); err != nil {
		return MusicalKey{}, err
	}
	return k, nil
}

// TimeSignature is a meter such as 4/4.
type TimeSignature struct {
	Numerator   int
	Denominator int
}

// String renders "N/D".
func (t TimeSignature) String() string {
	return strconv.Itoa(t.Numerator) + "/" + strconv.Itoa(t.Denominator)
}

// Validate requires both parts to be positive.
func (t TimeSignature) Validate() error {
	if t.Numerator <= 0 || t.Denominator <= 0 {
		return fmt.Errorf("types: time signature %s must be positive", t)
	}
	return nil
}

// ParseTimeSignature parses "N/D".
func ParseTimeSignature(s string) (TimeSignature, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return TimeSignature{}, fmt.Errorf("types: time signature %q must be \"N/D\"", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil {
		return TimeSignature{}, fmt.Errorf("types: time signature numerator: %w", err)
	}
	d, err := strconv.Atoi(den)
	if err != nil {
		return TimeSignature{}, fmt.Errorf("types: time signature denominator: %w", err)
	}
	ts := TimeSignature{Numerator: n, Denominator: d}
	if err := ts.Validate(); err != nil {
		return TimeSignature{}, err
	}
	return ts, nil
}
