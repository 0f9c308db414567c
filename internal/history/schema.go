package history

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the history DDL with the mood vector dimension substituted.
// The dimension is baked into the column type at schema creation time.
func ddl(moodDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS music_history (
    id              TEXT         PRIMARY KEY,
    run_id          TEXT         NOT NULL DEFAULT '',
    class_name      TEXT         NOT NULL,
    style           TEXT         NOT NULL,
    tempo           INTEGER      NOT NULL,
    music_key       TEXT         NOT NULL,
    parameters      JSONB        NOT NULL,
    mood            vector(%d)   NOT NULL,
    duration_ms     BIGINT       NOT NULL DEFAULT 0,
    generation_ms   BIGINT       NOT NULL DEFAULT 0,
    generated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_music_history_class
    ON music_history (class_name);

CREATE INDEX IF NOT EXISTS idx_music_history_generated_at
    ON music_history (generated_at);

CREATE INDEX IF NOT EXISTS idx_music_history_mood
    ON music_history USING hnsw (mood vector_cosine_ops);
`, moodDimensions)
}

// Migrate creates the history table and its indexes. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, moodDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(moodDimensions)); err != nil {
		return fmt.Errorf("history migrate: %w", err)
	}
	return nil
}
