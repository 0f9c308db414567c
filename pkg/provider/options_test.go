package provider_test

import (
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/sonoscope/pkg/provider"
)

func TestOptions_Check(t *testing.T) {
	t.Parallel()

	o := provider.Options{"model": "x", "treshold": 0.5, "zzz": 1}
	err := o.Check("model", "threshold")
	if err == nil {
		t.Fatal("want error for unknown keys, got nil")
	}
	if !strings.Contains(err.Error(), "[treshold zzz]") {
		t.Errorf("want sorted unknown keys in error, got %v", err)
	}
	if err := (provider.Options{"model": "x"}).Check("model"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOptions_TypedGetters(t *testing.T) {
	t.Parallel()

	o := provider.Options{
		"name":    "yolo",
		"rate":    44100,
		"amp":     0.3,
		"whole":   2.0,
		"frac":    2.5,
		"enabled": true,
		"timeout": "250ms",
		"secs":    1.5,
	}

	if s, err := o.String("name", ""); err != nil || s != "yolo" {
		t.Errorf("String: want yolo, got %q (%v)", s, err)
	}
	if s, _ := o.String("missing", "def"); s != "def" {
		t.Errorf("String default: want def, got %q", s)
	}
	if _, err := o.String("rate", ""); err == nil {
		t.Error("String on int: want error")
	}
	if f, err := o.Float("rate", 0); err != nil || f != 44100 {
		t.Errorf("Float from int: want 44100, got %v (%v)", f, err)
	}
	if n, err := o.Int("whole", 0); err != nil || n != 2 {
		t.Errorf("Int from whole float: want 2, got %v (%v)", n, err)
	}
	if _, err := o.Int("frac", 0); err == nil {
		t.Error("Int from fractional float: want error")
	}
	if b, err := o.Bool("enabled", false); err != nil || !b {
		t.Errorf("Bool: want true, got %v (%v)", b, err)
	}
	if d, err := o.Duration("timeout", 0); err != nil || d != 250*time.Millisecond {
		t.Errorf("Duration string: want 250ms, got %v (%v)", d, err)
	}
	if d, err := o.Duration("secs", 0); err != nil || d != 1500*time.Millisecond {
		t.Errorf("Duration seconds: want 1.5s, got %v (%v)", d, err)
	}
	if _, err := o.Duration("name", 0); err == nil {
		t.Error("Duration from non-duration string: want error")
	}
}
