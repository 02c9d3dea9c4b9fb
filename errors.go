package renderq

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("renderq: no store configured")
	ErrStoreClosed     = errors.New("renderq: store closed")
	ErrMigrationFailed = errors.New("renderq: migration failed")

	// Not found errors.
	ErrJobNotFound      = errors.New("renderq: job not found")
	ErrProviderNotFound = errors.New("renderq: provider not found")
	ErrHealthNotFound   = errors.New("renderq: provider health record not found")

	// Conflict errors.
	ErrJobAlreadyExists      = errors.New("renderq: job already exists")
	ErrProviderAlreadyExists = errors.New("renderq: provider already registered")

	// Validation errors.
	ErrEmptyPrompt = errors.New("renderq: prompt must not be empty")
	ErrInvalidLane = errors.New("renderq: unknown lane")

	// State errors.
	ErrInvalidTransition = errors.New("renderq: invalid status transition")
	ErrRetriesExhausted  = errors.New("renderq: retries exhausted")

	// Routing errors.
	ErrNoProviderAvailable = errors.New("renderq: no provider available")
)
