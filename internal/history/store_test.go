package history_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/sonoscope/internal/history"
	"github.com/MrWong99/sonoscope/pkg/types"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if SONOSCOPE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("SONOSCOPE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SONOSCOPE_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore opens a store on a freshly dropped table.
func newTestStore(t *testing.T) *history.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS music_history CASCADE"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	s, err := history.Open(ctx, dsn, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func audioFor(style types.Style, energy, tension float64) *types.GeneratedAudio {
	p := types.NeutralParameters()
	p.Style = style
	p.Energy = energy
	p.Tension = tension
	return &types.GeneratedAudio{
		Samples:        make([]float32, 4410),
		SampleRate:     44100,
		Duration:       100 * time.Millisecond,
		Parameters:     p,
		GenerationTime: 40 * time.Millisecond,
	}
}

func TestNewEntry(t *testing.T) {
	t.Parallel()

	a := audioFor(types.StyleJazz, 0.8, 0.1)
	e := history.NewEntry("run-1", "cup", a)

	if e.ID == "" || e.RunID != "run-1" || e.ClassName != "cup" {
		t.Errorf("unexpected identity fields: %+v", e)
	}
	if e.Parameters.Style != string(types.StyleJazz) {
		t.Errorf("want style jazz, got %q", e.Parameters.Style)
	}
	if len(e.Mood) != history.MoodDimensions {
		t.Fatalf("want %d mood dimensions, got %d", history.MoodDimensions, len(e.Mood))
	}
	if e.Mood[0] != 0.8 {
		t.Errorf("mood[0] should be energy 0.8, got %v", e.Mood[0])
	}
	if e.Duration != 100*time.Millisecond || e.GenerationTime != 40*time.Millisecond {
		t.Errorf("want durations 100ms/40ms, got %s/%s", e.Duration, e.GenerationTime)
	}
	if other := history.NewEntry("run-1", "cup", a); other.ID == e.ID {
		t.Error("entries must get distinct IDs")
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Minute)
	for i, class := range []string{"plant", "book", "cup"} {
		e := history.NewEntry("run-1", class, audioFor(types.StyleAmbient, 0.2, 0.2))
		e.GeneratedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record %s: %v", class, err)
		}
	}

	got, err := s.Recent(ctx, 2, history.Filter{})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].ClassName != "cup" || got[1].ClassName != "book" {
		t.Fatalf("want cup then book, got %+v", got)
	}
	if len(got[0].Mood) != history.MoodDimensions {
		t.Errorf("mood should round-trip, got %v", got[0].Mood)
	}

	got, err = s.Recent(ctx, 10, history.Filter{ExcludeClass: "cup"})
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("want 2 entries without cup, got %d", len(got))
	}
}

func TestStore_RecordRejectsWrongDimensions(t *testing.T) {
	s := newTestStore(t)
	e := history.NewEntry("run-1", "plant", audioFor(types.StyleAmbient, 0.2, 0.2))
	e.Mood = e.Mood[:3]
	if err := s.Record(context.Background(), e); err == nil {
		t.Fatal("want error for short mood vector")
	}
}

func TestStore_Similar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	calm := history.NewEntry("r", "plant", audioFor(types.StyleAmbient, 0.1, 0.05))
	tense := history.NewEntry("r", "laptop", audioFor(types.StyleElectronic, 0.95, 0.9))
	mid := history.NewEntry("r", "book", audioFor(types.StyleClassical, 0.5, 0.5))
	for _, e := range []history.Entry{calm, tense, mid} {
		if err := s.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	query := audioFor(types.StyleRock, 0.9, 0.85).Parameters.Mood()
	got, err := s.Similar(ctx, query, 2, history.Filter{})
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 matches, got %d", len(got))
	}
	if got[0].Entry.ClassName != "laptop" {
		t.Errorf("want laptop most similar, got %q", got[0].Entry.ClassName)
	}
	if got[0].Distance > got[1].Distance {
		t.Errorf("matches must be ordered by distance, got %v then %v", got[0].Distance, got[1].Distance)
	}

	got, err = s.Similar(ctx, query, 3, history.Filter{ExcludeClass: "laptop", Style: string(types.StyleAmbient)})
	if err != nil {
		t.Fatalf("Similar: %v", err)
	}
	if len(got) != 1 || got[0].Entry.ClassName != "plant" {
		t.Errorf("want only plant, got %+v", got)
	}
}

func TestStore_Ping(t *testing.T) {
	s := newTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
