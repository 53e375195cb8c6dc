package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KnownListingRepoImpl provides a concrete implementation for the KnownListingRepository interface using PostgreSQL.
type KnownListingRepoImpl struct {
	db *pgxpool.Pool
}

// NewKnownListingRepo creates a new instance of KnownListingRepoImpl.
func NewKnownListingRepo(db *pgxpool.Pool) *KnownListingRepoImpl {
	return &KnownListingRepoImpl{db: db}
}

// KnownIDs loads the id set of a scope.
func (r *KnownListingRepoImpl) KnownIDs(ctx context.Context, searchTitle string) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx, `SELECT unique_id FROM known_listings WHERE search_title = $1`, searchTitle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		known[id] = struct{}{}
	}
	return known, rows.Err()
}

// ApplySnapshot inserts the new ids and deletes the purged ones within a
// single transaction, so the scope never holds a half-applied snapshot.
func (r *KnownListingRepoImpl) ApplySnapshot(ctx context.Context, searchTitle, websiteType string, added, purged []string) error {
	if len(added) == 0 && len(purged) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(added) > 0 {
		batch := &pgx.Batch{}
		for _, id := range added {
			batch.Queue(`INSERT INTO known_listings (search_title, website_type, unique_id)
			             VALUES ($1, $2, $3)
			             ON CONFLICT (search_title, unique_id) DO NOTHING`,
				searchTitle, websiteType, id)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert known listings: %w", err)
		}
	}

	if len(purged) > 0 {
		_, err := tx.Exec(ctx,
			`DELETE FROM known_listings WHERE search_title = $1 AND unique_id = ANY($2)`,
			searchTitle, purged)
		if err != nil {
			return fmt.Errorf("failed to purge known listings: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// CountKnown returns the size of a scope's id set.
func (r *KnownListingRepoImpl) CountKnown(ctx context.Context, searchTitle string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM known_listings WHERE search_title = $1`, searchTitle).Scan(&n)
	return n, err
}
