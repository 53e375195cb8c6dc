package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MarkerRepoImpl stores Marker-mode cursors in PostgreSQL.
type MarkerRepoImpl struct {
	db *pgxpool.Pool
}

// NewMarkerRepo creates a new instance of MarkerRepoImpl.
func NewMarkerRepo(db *pgxpool.Pool) *MarkerRepoImpl {
	return &MarkerRepoImpl{db: db}
}

func (r *MarkerRepoImpl) GetMarker(ctx context.Context, searchTitle string) (string, bool, error) {
	var marker string
	err := r.db.QueryRow(ctx, `SELECT marker_id FROM markers WHERE search_title = $1`, searchTitle).Scan(&marker)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return marker, true, nil
}

// SaveMarker creates or replaces the cursor of a scope.
func (r *MarkerRepoImpl) SaveMarker(ctx context.Context, searchTitle, marker string) error {
	query := `
		INSERT INTO markers (search_title, marker_id, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (search_title) DO UPDATE SET
			marker_id = EXCLUDED.marker_id,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := r.db.Exec(ctx, query, searchTitle, marker)
	return err
}

func (r *MarkerRepoImpl) MarkerUpdatedAt(ctx context.Context, searchTitle string) (*time.Time, error) {
	var updated time.Time
	err := r.db.QueryRow(ctx, `SELECT updated_at FROM markers WHERE search_title = $1`, searchTitle).Scan(&updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
