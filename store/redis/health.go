package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xraph/renderq"
	"github.com/xraph/renderq/health"
)

// UpsertProviderHealth persists the record as a Hash, creating it if needed.
func (s *Store) UpsertProviderHealth(ctx context.Context, rec *health.Record) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, healthKey(rec.Provider), map[string]interface{}{
		"provider":             rec.Provider,
		"status":               string(rec.Status),
		"consecutive_failures": strconv.Itoa(rec.ConsecutiveFailures),
		"avg_response_time":    strconv.FormatInt(int64(rec.AvgResponseTime), 10),
		"last_checked_at":      rec.LastCheckedAt.Format(time.RFC3339Nano),
		"cost_per_request":     strconv.FormatFloat(rec.CostPerRequest, 'f', -1, 64),
	})
	pipe.SAdd(ctx, healthProvidersKey, rec.Provider)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("renderq/redis: upsert provider health: %w", err)
	}
	return nil
}

// GetProviderHealth retrieves the record for one provider.
func (s *Store) GetProviderHealth(ctx context.Context, provider string) (*health.Record, error) {
	vals, err := s.client.HGetAll(ctx, healthKey(provider)).Result()
	if err != nil {
		return nil, fmt.Errorf("renderq/redis: get provider health: %w", err)
	}
	if len(vals) == 0 {
		return nil, renderq.ErrHealthNotFound
	}
	return mapToHealthRecord(vals), nil
}

// ListProviderHealth returns all records ordered by provider name.
func (s *Store) ListProviderHealth(ctx context.Context) ([]*health.Record, error) {
	providers, err := s.client.SMembers(ctx, healthProvidersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("renderq/redis: list provider health: %w", err)
	}
	sort.Strings(providers)

	recs := make([]*health.Record, 0, len(providers))
	for _, p := range providers {
		vals, getErr := s.client.HGetAll(ctx, healthKey(p)).Result()
		if getErr != nil || len(vals) == 0 {
			continue // skip missing
		}
		recs = append(recs, mapToHealthRecord(vals))
	}
	return recs, nil
}

func mapToHealthRecord(m map[string]string) *health.Record {
	failures, _ := strconv.Atoi(m["consecutive_failures"])              //nolint:errcheck // best-effort parse from trusted Redis data
	avgResponse, _ := strconv.ParseInt(m["avg_response_time"], 10, 64)  //nolint:errcheck // best-effort parse from trusted Redis data
	costPerReq, _ := strconv.ParseFloat(m["cost_per_request"], 64)      //nolint:errcheck // best-effort parse from trusted Redis data
	lastChecked, _ := time.Parse(time.RFC3339Nano, m["last_checked_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	return &health.Record{
		Provider:            m["provider"],
		Status:              health.Status(m["status"]),
		ConsecutiveFailures: failures,
		AvgResponseTime:     time.Duration(avgResponse),
		LastCheckedAt:       lastChecked,
		CostPerRequest:      costPerReq,
	}
}
