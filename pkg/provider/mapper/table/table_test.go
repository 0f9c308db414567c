package table_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/sonoscope/pkg/provider"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper"
	"github.com/MrWong99/sonoscope/pkg/provider/mapper/table"
	"github.com/MrWong99/sonoscope/pkg/types"
)

func obj(class string) types.DetectedObject {
	return types.DetectedObject{ClassName: class, Confidence: 0.9, BBox: types.BoundingBox{Width: 10, Height: 10}}
}

func mapClass(t *testing.T, m *table.Mapper, class string) types.MusicalParameters {
	t.Helper()
	p, err := m.Map(context.Background(), obj(class), nil, mapper.Context{})
	if err != nil {
		t.Fatalf("Map(%q): %v", class, err)
	}
	return p
}

func TestMap_BuiltinPresets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		class string
		style types.Style
		tempo int
		key   string
	}{
		{"plant", types.StyleAmbient, 72, "C Major"},
		{"book", types.StyleClassical, 60, "A Minor"},
		{"cup", types.StyleJazz, 95, "F Major"},
		{"laptop", types.StyleElectronic, 128, "D Minor"},
		{"guitar", types.StyleFolk, 85, "G Major"},
	}
	m := table.New()
	for _, tt := range tests {
		p := mapClass(t, m, tt.class)
		if p.Style != tt.style || p.Tempo != tt.tempo || p.Key.String() != tt.key {
			t.Errorf("%s: want %s/%d/%s, got %s/%d/%s", tt.class, tt.style, tt.tempo, tt.key, p.Style, p.Tempo, p.Key)
		}
	}
}

func TestMap_UnknownFallsBackToNeutral(t *testing.T) {
	t.Parallel()

	p := mapClass(t, table.New(), "spaceship")
	if !p.Equal(types.NeutralParameters()) {
		t.Errorf("want neutral parameters, got %+v", p)
	}
}

func TestMap_FuzzyMatch(t *testing.T) {
	t.Parallel()

	m := table.New()
	for label, want := range map[string]types.Style{
		"potted plant": types.StyleAmbient,
		"Guitars":      types.StyleFolk,
	} {
		if got := mapClass(t, m, label).Style; got != want {
			t.Errorf("%q: want %s, got %s", label, want, got)
		}
	}
}

func TestMap_Deterministic(t *testing.T) {
	t.Parallel()

	m := table.New()
	features := map[string]float64{"energy": 0.9, "tension": 0.1}
	mctx := mapper.Context{Frame: types.FrameMetadata{Lighting: 0.8}, Others: []types.DetectedObject{obj("cup")}}
	a, err := m.Map(context.Background(), obj("laptop"), features, mctx)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	b, _ := m.Map(context.Background(), obj("laptop"), features, mctx)
	if !a.Equal(b) {
		t.Errorf("identical inputs produced different parameters:\n%+v\n%+v", a, b)
	}
}

func TestMap_FeaturesShapeDials(t *testing.T) {
	t.Parallel()

	m := table.New()
	base := mapClass(t, m, "plant")
	p, err := m.Map(context.Background(), obj("plant"), map[string]float64{"energy": 1}, mapper.Context{})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	want := 0.5*base.Energy + 0.5
	if diff := p.Energy - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("want energy %v, got %v", want, p.Energy)
	}
	if p.Style != base.Style || p.Tempo != base.Tempo {
		t.Error("features must not change style or tempo")
	}
}

func TestUpdateWeights(t *testing.T) {
	t.Parallel()

	m := table.New(table.WithLearningRate(1))
	before := mapClass(t, m, "book").Energy

	if err := m.UpdateWeights(mapper.Feedback{ClassName: "book", Adjustments: map[string]float64{"energy": 1}}); err != nil {
		t.Fatalf("UpdateWeights: %v", err)
	}
	after := mapClass(t, m, "book").Energy
	if diff := after - (before + 0.2); diff > 1e-9 || diff < -1e-9 {
		t.Errorf("want energy offset clamped to +0.2 (%v), got %v", before+0.2, after)
	}
	if !strings.Contains(m.Explain("book"), "tuned by feedback") {
		t.Errorf("explanation should mention feedback: %q", m.Explain("book"))
	}

	if err := m.UpdateWeights(mapper.Feedback{ClassName: "book", Adjustments: map[string]float64{"volume": 0.1}}); err == nil {
		t.Error("want error for unknown dial")
	}
	if err := m.UpdateWeights(mapper.Feedback{ClassName: "spaceship"}); err == nil {
		t.Error("want error for unknown class")
	}
}

func TestExplain(t *testing.T) {
	t.Parallel()

	m := table.New()
	if got := m.Explain("guitar"); !strings.Contains(got, "folk") || !strings.Contains(got, "85 BPM") {
		t.Errorf("unexpected explanation: %q", got)
	}
	if got := m.Explain("spaceship"); !strings.Contains(got, "neutral") {
		t.Errorf("want neutral fallback explanation, got %q", got)
	}
}

func TestLoadCustomMappings(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mappings.yaml")
	content := `mappings:
  teapot:
    mood: "Steaming, homely"
    style: jazz
    tempo: 90
    key: "Bb Major"
    primary_instruments: [piano, bass]
  plant:
    style: world
    tempo: 70
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := table.FromOptions(provider.Options{"mappings_file": path})
	if err != nil {
		t.Fatalf("FromOptions: %v", err)
	}

	p := mapClass(t, m, "teapot")
	if p.Style != types.StyleJazz || p.Tempo != 90 || p.Key.String() != "Bb Major" {
		t.Errorf("teapot: unexpected parameters %+v", p)
	}
	if p.TimeSignature.String() != "4/4" {
		t.Errorf("omitted fields should keep neutral defaults, got %s", p.TimeSignature)
	}
	if got := mapClass(t, m, "plant").Style; got != types.StyleWorld {
		t.Errorf("plant override: want world, got %s", got)
	}
}

func TestLoadCustomMappings_InvalidLeavesTableUnchanged(t *testing.T) {
	t.Parallel()

	m := table.New()
	err := m.LoadCustomMappingsFrom(strings.NewReader("mappings:\n  plant:\n    style: polka\n  cup:\n    tempo: 100\n"))
	if err == nil {
		t.Fatal("want error for unknown style")
	}
	if got := mapClass(t, m, "cup").Tempo; got != 95 {
		t.Errorf("table changed after failed load: cup tempo %d", got)
	}
}

func TestFromOptions_RejectsUnknown(t *testing.T) {
	t.Parallel()

	if _, err := table.FromOptions(provider.Options{"mapping_file": "x"}); err == nil {
		t.Error("want error for misspelled option")
	}
}
