package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS known_listings (
	id           BIGSERIAL PRIMARY KEY,
	search_title TEXT NOT NULL,
	website_type TEXT NOT NULL,
	unique_id    TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (search_title, unique_id)
);

CREATE TABLE IF NOT EXISTS markers (
	search_title TEXT PRIMARY KEY,
	marker_id    TEXT NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS proxies (
	id           BIGSERIAL PRIMARY KEY,
	ip           TEXT NOT NULL,
	port         INTEGER NOT NULL,
	protocol     TEXT NOT NULL DEFAULT 'http',
	country      TEXT,
	anonymity    TEXT,
	latency_ms   INTEGER,
	username     TEXT,
	password     TEXT,
	is_valid     BOOLEAN NOT NULL DEFAULT TRUE,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	last_checked TIMESTAMPTZ,
	last_used    TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (ip, port, protocol)
);

CREATE INDEX IF NOT EXISTS idx_proxies_retry_count ON proxies (retry_count);
`

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
