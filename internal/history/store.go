// Package history keeps a PostgreSQL log of every piece of music the
// processor generated. Each entry carries its parameter record and a mood
// vector, so past music can be searched by emotional similarity with
// pgvector.
//
// Usage:
//
//	store, err := history.Open(ctx, dsn, history.MoodDimensions)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, history.NewEntry(runID, "guitar", audio))
//	matches, _ := store.Similar(ctx, params.Mood(), 5, history.Filter{})
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/sonoscope/pkg/types"
)

// MoodDimensions is the length of [types.MusicalParameters.Mood].
const MoodDimensions = 6

// Entry is one generated piece of music.
type Entry struct {
	ID             string
	RunID          string
	ClassName      string
	Parameters     types.ParametersRecord
	Mood           []float32
	Duration       time.Duration
	GenerationTime time.Duration
	GeneratedAt    time.Time
}

// Match is an entry returned by [Store.Similar] together with its cosine
// distance to the query. Lower is more similar.
type Match struct {
	Entry    Entry
	Distance float64
}

// Filter narrows [Store.Similar] and [Store.Recent].
type Filter struct {
	// ExcludeClass drops entries for this class, e.g. the class that is
	// playing right now.
	ExcludeClass string

	// Style keeps only entries with this style.
	Style string

	// After keeps only entries generated after this time.
	After time.Time
}

// NewEntry builds an entry for audio generated for class during run runID.
func NewEntry(runID, class string, audio *types.GeneratedAudio) Entry {
	return Entry{
		ID:             uuid.NewString(),
		RunID:          runID,
		ClassName:      class,
		Parameters:     audio.Parameters.ToRecord(),
		Mood:           audio.Parameters.Mood(),
		Duration:       audio.Duration,
		GenerationTime: audio.GenerationTime,
		GeneratedAt:    time.Now().UTC(),
	}
}

// Store is the PostgreSQL-backed history. It is safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// Open connects to dsn, registers pgvector types on every connection and
// runs [Migrate]. moodDimensions must match the mood vector length; 0
// selects [MoodDimensions].
func Open(ctx context.Context, dsn string, moodDimensions int) (*Store, error) {
	if moodDimensions == 0 {
		moodDimensions = MoodDimensions
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if err := Migrate(ctx, pool, moodDimensions); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, dims: moodDimensions}, nil
}

// Ping checks that the database answers. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Record inserts e. An empty ID is filled in.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ClassName == "" {
		return errors.New("history: entry needs a class name")
	}
	if len(e.Mood) != s.dims {
		return fmt.Errorf("history: mood vector has %d dimensions, want %d", len(e.Mood), s.dims)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.GeneratedAt.IsZero() {
		e.GeneratedAt = time.Now().UTC()
	}
	params, err := json.Marshal(e.Parameters)
	if err != nil {
		return fmt.Errorf("history: marshal parameters: %w", err)
	}

	const q = `
		INSERT INTO music_history
		    (id, run_id, class_name, style, tempo, music_key, parameters, mood,
		     duration_ms, generation_ms, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`

	_, err = s.pool.Exec(ctx, q,
		e.ID,
		e.RunID,
		e.ClassName,
		e.Parameters.Style,
		e.Parameters.Tempo,
		e.Parameters.Key,
		params,
		pgvector.NewVector(e.Mood),
		e.Duration.Milliseconds(),
		e.GenerationTime.Milliseconds(),
		e.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("history: record: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int, f Filter) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	var args []any
	where := f.conditions(&args)
	args = append(args, limit)

	q := fmt.Sprintf(`
		SELECT %s
		FROM   music_history
		%s
		ORDER  BY generated_at DESC
		LIMIT  $%d`, entryColumns, where, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		return scanEntry(row)
	})
	if err != nil {
		return nil, fmt.Errorf("history: recent: %w", err)
	}
	return entries, nil
}

// Similar returns up to topK entries whose mood is closest (cosine
// distance) to mood, most similar first.
func (s *Store) Similar(ctx context.Context, mood []float32, topK int, f Filter) ([]Match, error) {
	if len(mood) != s.dims {
		return nil, fmt.Errorf("history: query mood has %d dimensions, want %d", len(mood), s.dims)
	}
	if topK <= 0 {
		return nil, nil
	}
	args := []any{pgvector.NewVector(mood)} // $1 = query vector
	where := f.conditions(&args)
	args = append(args, topK)

	q := fmt.Sprintf(`
		SELECT %s, mood <=> $1 AS distance
		FROM   music_history
		%s
		ORDER  BY distance
		LIMIT  $%d`, entryColumns, where, len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("history: similar: %w", err)
	}
	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var m Match
		e, err := scanEntry(row, &m.Distance)
		m.Entry = e
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("history: similar: %w", err)
	}
	return matches, nil
}

const entryColumns = `id, run_id, class_name, parameters, mood, duration_ms, generation_ms, generated_at`

func scanEntry(row pgx.CollectableRow, extra ...any) (Entry, error) {
	var (
		e           Entry
		params      []byte
		mood        pgvector.Vector
		durMs, genMs int64
	)
	dest := append([]any{&e.ID, &e.RunID, &e.ClassName, &params, &mood, &durMs, &genMs, &e.GeneratedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(params, &e.Parameters); err != nil {
		return Entry{}, fmt.Errorf("decode parameters of %s: %w", e.ID, err)
	}
	e.Mood = mood.Slice()
	e.Duration = time.Duration(durMs) * time.Millisecond
	e.GenerationTime = time.Duration(genMs) * time.Millisecond
	return e, nil
}

// conditions appends f's values to args and returns the WHERE clause.
func (f Filter) conditions(args *[]any) string {
	next := func(v any) string {
		*args = append(*args, v)
		return fmt.Sprintf("$%d", len(*args))
	}
	var conds []string
	if f.ExcludeClass != "" {
		conds = append(conds, "class_name <> "+next(f.ExcludeClass))
	}
	if f.Style != "" {
		conds = append(conds, "style = "+next(f.Style))
	}
	if !f.After.IsZero() {
		conds = append(conds, "generated_at > "+next(f.After))
	}
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, "\n  AND ")
}
