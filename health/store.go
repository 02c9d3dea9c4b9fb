package health

import "context"

// Store defines the persistence contract for provider health records. The
// Tracker writes through to it best-effort so health survives process
// restarts and is visible to external reporting.
type Store interface {
	// UpsertProviderHealth persists the record, creating it if needed.
	UpsertProviderHealth(ctx context.Context, rec *Record) error

	// GetProviderHealth retrieves the record for one provider.
	GetProviderHealth(ctx context.Context, provider string) (*Record, error)

	// ListProviderHealth returns all records ordered by provider name.
	ListProviderHealth(ctx context.Context) ([]*Record, error)
}
