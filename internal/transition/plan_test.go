package transition

import (
	"testing"
	"time"

	"github.com/MrWong99/sonoscope/pkg/types"
)

func ones(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

func piece(n, rate int, fadeIn, fadeOut time.Duration) *types.GeneratedAudio {
	p := types.NeutralParameters()
	p.FadeIn, p.FadeOut = fadeIn, fadeOut
	return &types.GeneratedAudio{
		Samples:    ones(n),
		SampleRate: rate,
		Duration:   time.Duration(n) * time.Second / time.Duration(rate),
		Parameters: p,
	}
}

func TestTail(t *testing.T) {
	t.Parallel()

	cur := ones(1000)
	if got := len(tail(cur, 1000, 250*time.Millisecond)); got != 750 {
		t.Errorf("want 750 unplayed samples, got %d", got)
	}
	if got := tail(cur, 1000, 2*time.Second); got != nil {
		t.Errorf("want nil after the end, got %d samples", len(got))
	}
	if got := len(tail(cur, 1000, -time.Second)); got != 1000 {
		t.Errorf("negative elapsed should keep everything, got %d", got)
	}
}

func TestBuild_NoPreviousIsInstant(t *testing.T) {
	t.Parallel()

	next := piece(100, 8000, 0, 0)
	for _, mode := range Modes {
		p := build(mode, nil, types.MusicalParameters{}, 0, next, time.Second)
		if p.mode != ModeInstant || len(p.samples) != 100 || p.rate != 8000 || p.region != 0 {
			t.Errorf("%s: want instant passthrough, got mode %s, %d samples at %d, region %s", mode, p.mode, len(p.samples), p.rate, p.region)
		}
	}
}

func TestBuild_CrossfadeLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		old, next int
		d         time.Duration
		want      int
		region    time.Duration
	}{
		// Tail is cut to the crossfade length, then fully overlapped.
		{"long tail", 5000, 3000, time.Second, 3000, time.Second},
		{"short tail", 200, 3000, time.Second, 3000, 200 * time.Millisecond},
		{"short next", 1000, 300, time.Second, 1000, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := build(ModeCrossfade, ones(tt.old), types.NeutralParameters(), 1000, piece(tt.next, 1000, 0, 0), tt.d)
			if len(p.samples) != tt.want {
				t.Errorf("want %d samples, got %d", tt.want, len(p.samples))
			}
			if p.region != tt.region {
				t.Errorf("want region %s, got %s", tt.region, p.region)
			}
			// Unit inputs under complementary gains stay at unit level.
			for i, s := range p.samples {
				if s < 0.999 || s > 1.001 {
					t.Fatalf("sample %d: want 1, got %v", i, s)
				}
			}
		})
	}
}

func TestBuild_FadeUsesOldFadeOutAndNewFadeIn(t *testing.T) {
	t.Parallel()

	oldParams := types.NeutralParameters()
	oldParams.FadeOut = 100 * time.Millisecond
	next := piece(1000, 1000, 200*time.Millisecond, 0)

	p := build(ModeFade, ones(500), oldParams, 1000, next, time.Second)
	if p.mode != ModeFade {
		t.Fatalf("want fade, got %s", p.mode)
	}
	if len(p.samples) != 100+1000 {
		t.Errorf("want 1100 samples, got %d", len(p.samples))
	}
	if p.region != 300*time.Millisecond {
		t.Errorf("want region 300ms, got %s", p.region)
	}
	if p.samples[99] != 0 || p.samples[100] != 0 {
		t.Errorf("want silence at the seam, got %v %v", p.samples[99], p.samples[100])
	}
	if p.samples[1099] != 1 {
		t.Errorf("want full gain after the fade-in, got %v", p.samples[1099])
	}
}

func TestBuild_ResamplesToPlayingRate(t *testing.T) {
	t.Parallel()

	p := build(ModeCrossfade, ones(100), types.NeutralParameters(), 16000, piece(800, 8000, 0, 0), time.Second)
	if p.rate != 16000 {
		t.Errorf("want 16000, got %d", p.rate)
	}
	if len(p.samples) < 1500 {
		t.Errorf("want the 8kHz piece upsampled to ~1600 samples, got %d", len(p.samples))
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{"instant": ModeInstant, " Fade ": ModeFade, "crossfade": ModeCrossfade, "smooth": ModeCrossfade} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q): want %s, got %s, %v", in, want, got, err)
		}
	}
	if _, err := ParseMode("wipe"); err == nil {
		t.Error("want error for unknown mode")
	}
}
