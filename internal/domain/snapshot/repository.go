package snapshot

import "context"

// Repository defines the interface for snapshot persistence
type Repository interface {
	// Save persists a snapshot
	Save(ctx context.Context, snapshot *Snapshot) error

	// FindByID retrieves a snapshot by its ID
	FindByID(ctx context.Context, id string) (*Snapshot, error)

	// FindAll lists stored snapshots, newest first
	FindAll(ctx context.Context) ([]Summary, error)

	// Delete removes a snapshot by its ID
	Delete(ctx context.Context, id string) error
}
