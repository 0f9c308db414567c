package transition

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode is returned for a transition mode outside the closed set.
var ErrUnknownMode = errors.New("transition: unknown mode")

// Mode selects how new audio replaces the audio that is playing.
type Mode string

const (
	// ModeInstant cuts to the new audio at the next handoff.
	ModeInstant Mode = "instant"

	// ModeFade fades the old tail out, then fades the new audio in.
	ModeFade Mode = "fade"

	// ModeCrossfade overlaps both streams under complementary linear gain
	// ramps.
	ModeCrossfade Mode = "crossfade"
)

// Modes lists every valid mode.
var Modes = []Mode{ModeInstant, ModeFade, ModeCrossfade}

// IsValid reports whether m is one of Modes.
func (m Mode) IsValid() bool {
	switch m {
	case ModeInstant, ModeFade, ModeCrossfade:
		return true
	}
	return false
}

// ParseMode parses a mode name. "smooth" is accepted as an alias for
// crossfade.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if m == "smooth" {
		return ModeCrossfade, nil
	}
	if !m.IsValid() {
		return "", fmt.Errorf("%w %q", ErrUnknownMode, s)
	}
	return m, nil
}
