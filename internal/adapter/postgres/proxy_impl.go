package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
)

// ProxyRepoImpl provides a concrete implementation for the ProxyRepository interface using PostgreSQL.
// Every mutation is a single statement, so concurrent callers never lose an update.
type ProxyRepoImpl struct {
	db *pgxpool.Pool
}

// NewProxyRepo creates a new instance of ProxyRepoImpl.
func NewProxyRepo(db *pgxpool.Pool) *ProxyRepoImpl {
	return &ProxyRepoImpl{db: db}
}

// ListActive retrieves proxies that are still below the eviction threshold.
func (r *ProxyRepoImpl) ListActive(ctx context.Context, threshold int) ([]entity.Proxy, error) {
	query := `
		SELECT id, ip, port, protocol, COALESCE(country, ''), COALESCE(anonymity, ''), latency_ms,
		       COALESCE(username, ''), COALESCE(password, ''), is_valid, retry_count,
		       last_checked, last_used, created_at
		FROM proxies
		WHERE retry_count < $1
		ORDER BY retry_count ASC, latency_ms ASC NULLS LAST, id ASC;
	`
	rows, err := r.db.Query(ctx, query, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proxies []entity.Proxy
	for rows.Next() {
		var p entity.Proxy
		if err := rows.Scan(
			&p.ID,
			&p.IP,
			&p.Port,
			&p.Protocol,
			&p.Country,
			&p.Anonymity,
			&p.LatencyMS,
			&p.Username,
			&p.Password,
			&p.IsValid,
			&p.RetryCount,
			&p.LastChecked,
			&p.LastUsed,
			&p.CreatedAt,
		); err != nil {
			return nil, err
		}
		proxies = append(proxies, p)
	}
	return proxies, rows.Err()
}

// InsertBatch adds proxies, skipping any (ip, port, protocol) already present.
func (r *ProxyRepoImpl) InsertBatch(ctx context.Context, proxies []entity.Proxy) (int, error) {
	if len(proxies) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, p := range proxies {
		batch.Queue(`INSERT INTO proxies (ip, port, protocol, country, anonymity, latency_ms, username, password, is_valid)
		             VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), NULLIF($8, ''), $9)
		             ON CONFLICT (ip, port, protocol) DO NOTHING`,
			p.IP, p.Port, p.Protocol, p.Country, p.Anonymity, p.LatencyMS, p.Username, p.Password, p.IsValid)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	added := 0
	for i := range proxies {
		tag, err := br.Exec()
		if err != nil {
			return added, fmt.Errorf("failed to insert proxy %s: %w", proxies[i].Key(), err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

// IncrementRetry bumps the retry count atomically and returns the new value.
func (r *ProxyRepoImpl) IncrementRetry(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`UPDATE proxies SET retry_count = retry_count + 1 WHERE id = $1 RETURNING retry_count`,
		id,
	).Scan(&count)
	return count, err
}

func (r *ProxyRepoImpl) MarkUsed(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `UPDATE proxies SET last_used = NOW() WHERE id = $1`, id)
	return err
}

func (r *ProxyRepoImpl) SetValid(ctx context.Context, id int64, valid bool) error {
	_, err := r.db.Exec(ctx, `UPDATE proxies SET is_valid = $2, last_checked = NOW() WHERE id = $1`, id, valid)
	return err
}

// DeleteEvicted removes every proxy at or above the threshold.
func (r *ProxyRepoImpl) DeleteEvicted(ctx context.Context, threshold int) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM proxies WHERE retry_count >= $1`, threshold)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *ProxyRepoImpl) Stats(ctx context.Context, threshold int) (entity.ProxyStats, error) {
	var s entity.ProxyStats
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE retry_count < $1),
		        COUNT(*) FILTER (WHERE retry_count >= $1)
		 FROM proxies`,
		threshold,
	).Scan(&s.Total, &s.Active, &s.Evicted)
	return s, err
}
