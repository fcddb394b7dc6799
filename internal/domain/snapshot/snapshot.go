package snapshot

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/khanhnv2901/cspgen/internal/resource"
)

// Snapshot is a persisted scan result. It lets generate and report reuse a scan
// without walking the tree again.
type Snapshot struct {
	id         string
	root       string
	host       string
	collection resource.Collection
	stats      resource.Stats
	createdAt  time.Time
}

// NewSnapshot wraps a finished scan in a snapshot with a fresh ID.
func NewSnapshot(root, host string, collection resource.Collection, stats resource.Stats) (*Snapshot, error) {
	if root == "" {
		return nil, errors.New("snapshot root cannot be empty")
	}
	if collection == nil {
		collection = resource.NewCollection()
	}

	return &Snapshot{
		id:         uuid.NewString(),
		root:       root,
		host:       host,
		collection: collection,
		stats:      stats,
		createdAt:  time.Now().UTC(),
	}, nil
}

// Reconstruct creates a snapshot from persisted data (for repository use)
func Reconstruct(id, root, host string, collection resource.Collection, stats resource.Stats, createdAt time.Time) *Snapshot {
	return &Snapshot{
		id:         id,
		root:       root,
		host:       host,
		collection: collection,
		stats:      stats,
		createdAt:  createdAt,
	}
}

// ValidID reports whether id looks like a snapshot ID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Getters

func (s *Snapshot) ID() string                      { return s.id }
func (s *Snapshot) Root() string                    { return s.root }
func (s *Snapshot) Host() string                    { return s.host }
func (s *Snapshot) Collection() resource.Collection { return s.collection }
func (s *Snapshot) Stats() resource.Stats           { return s.stats }
func (s *Snapshot) CreatedAt() time.Time            { return s.createdAt }

// Summary is the list view of a snapshot.
type Summary struct {
	ID         string    `json:"id"`
	Root       string    `json:"root"`
	Host       string    `json:"host"`
	References int       `json:"references"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary returns the list view of s.
func (s *Snapshot) Summary() Summary {
	return Summary{
		ID:         s.id,
		Root:       s.root,
		Host:       s.host,
		References: s.collection.Len(),
		CreatedAt:  s.createdAt,
	}
}
