package violation

import "context"

// Repository defines the interface for violation report persistence
type Repository interface {
	// Append stores one received report
	Append(ctx context.Context, record Record) error

	// List returns the most recent records, oldest first. limit <= 0 returns all.
	List(ctx context.Context, limit int) ([]Record, error)
}
