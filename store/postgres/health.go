package postgres

import (
	"context"
	"fmt"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/health"
)

// UpsertProviderHealth persists the record, creating it if needed.
func (s *Store) UpsertProviderHealth(ctx context.Context, rec *health.Record) error {
	query := `
		INSERT INTO renderq_provider_health (
			provider, status, consecutive_failures,
			avg_response_time, last_checked_at, cost_per_request
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider) DO UPDATE SET
			status = EXCLUDED.status,
			consecutive_failures = EXCLUDED.consecutive_failures,
			avg_response_time = EXCLUDED.avg_response_time,
			last_checked_at = EXCLUDED.last_checked_at,
			cost_per_request = EXCLUDED.cost_per_request`

	_, err := s.pool.Exec(ctx, query,
		rec.Provider, rec.Status, rec.ConsecutiveFailures,
		int64(rec.AvgResponseTime), rec.LastCheckedAt, rec.CostPerRequest,
	)
	if err != nil {
		return fmt.Errorf("renderq/postgres: upsert provider health: %w", err)
	}

	return nil
}

// GetProviderHealth retrieves the record for one provider.
func (s *Store) GetProviderHealth(ctx context.Context, provider string) (*health.Record, error) {
	query := `
		SELECT provider, status, consecutive_failures,
			avg_response_time, last_checked_at, cost_per_request
		FROM renderq_provider_health
		WHERE provider = $1`

	rec, err := scanHealthRecord(s.pool.QueryRow(ctx, query, provider))
	if err != nil {
		if isNoRows(err) {
			return nil, renderq.ErrHealthNotFound
		}
		return nil, fmt.Errorf("renderq/postgres: get provider health: %w", err)
	}

	return rec, nil
}

// ListProviderHealth returns all records ordered by provider name.
func (s *Store) ListProviderHealth(ctx context.Context) ([]*health.Record, error) {
	query := `
		SELECT provider, status, consecutive_failures,
			avg_response_time, last_checked_at, cost_per_request
		FROM renderq_provider_health
		ORDER BY provider ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("renderq/postgres: list provider health: %w", err)
	}
	defer rows.Close()

	var recs []*health.Record
	for rows.Next() {
		rec, err := scanHealthRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}
