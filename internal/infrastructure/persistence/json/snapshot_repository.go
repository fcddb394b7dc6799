package json

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	"github.com/khanhnv2901/cspgen/internal/resource"
	"github.com/khanhnv2901/cspgen/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
	"github.com/khanhnv2901/cspgen/internal/shared/security"
)

const snapshotDirName = "snapshots"

// snapshotDTO is the data transfer object for JSON serialization
type snapshotDTO struct {
	ID         string              `json:"id"`
	Root       string              `json:"root"`
	Host       string              `json:"host"`
	Collection resource.Collection `json:"resources"`
	Stats      resource.Stats      `json:"stats"`
	CreatedAt  string              `json:"created_at"`
}

// SnapshotRepository implements the snapshot.Repository interface with one JSON
// file per snapshot.
type SnapshotRepository struct {
	fs  afero.Fs
	dir string
	mu  sync.RWMutex
}

// NewSnapshotRepository creates a JSON snapshot repository under dataDir/snapshots.
func NewSnapshotRepository(fs afero.Fs, dataDir string) (*SnapshotRepository, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	dir, err := security.ResolveWithin(dataDir, snapshotDirName)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot directory: %w", err)
	}

	if err := fs.MkdirAll(dir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	return &SnapshotRepository{fs: fs, dir: dir}, nil
}

// Save persists a snapshot, replacing any earlier version with the same ID
func (r *SnapshotRepository) Save(ctx context.Context, s *snapshot.Snapshot) error {
	path, err := r.pathFor(s.ID())
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(r.toDTO(s), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Readers never see a partial snapshot.
	tmp := path + ".tmp"
	if err := afero.WriteFile(r.fs, tmp, data, constants.DefaultFilePerm); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := r.fs.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// FindByID retrieves a snapshot by its ID
func (r *SnapshotRepository) FindByID(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	path, err := r.pathFor(id)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	dto, err := r.load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", sharedErrors.ErrScanNotFound, id)
		}
		return nil, fmt.Errorf("failed to load snapshot %s: %w", id, err)
	}
	return r.fromDTO(dto)
}

// FindAll lists stored snapshots, newest first
func (r *SnapshotRepository) FindAll(ctx context.Context) ([]snapshot.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	summaries := make([]snapshot.Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dto, err := r.load(filepath.Join(r.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load snapshot %s: %w", entry.Name(), err)
		}
		s, err := r.fromDTO(dto)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s.Summary())
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// Delete removes a snapshot by its ID
func (r *SnapshotRepository) Delete(ctx context.Context, id string) error {
	path, err := r.pathFor(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.fs.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", sharedErrors.ErrScanNotFound, id)
		}
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Helper methods

func (r *SnapshotRepository) pathFor(id string) (string, error) {
	if !snapshot.ValidID(id) {
		return "", fmt.Errorf("%w: %q", sharedErrors.ErrInvalidScanID, id)
	}
	return security.ResolveWithin(r.dir, strings.ToLower(id)+".json")
}

func (r *SnapshotRepository) load(path string) (snapshotDTO, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return snapshotDTO{}, err
	}

	var dto snapshotDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return snapshotDTO{}, err
	}
	return dto, nil
}

func (r *SnapshotRepository) toDTO(s *snapshot.Snapshot) snapshotDTO {
	return snapshotDTO{
		ID:         strings.ToLower(s.ID()),
		Root:       s.Root(),
		Host:       s.Host(),
		Collection: s.Collection(),
		Stats:      s.Stats(),
		CreatedAt:  s.CreatedAt().Format(time.RFC3339Nano),
	}
}

func (r *SnapshotRepository) fromDTO(dto snapshotDTO) (*snapshot.Snapshot, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, dto.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created at time: %w", err)
	}

	collection := resource.NewCollection()
	for _, t := range resource.AllTypes() {
		if refs := dto.Collection[t]; len(refs) > 0 {
			collection[t] = refs
		}
	}

	return snapshot.Reconstruct(dto.ID, dto.Root, dto.Host, collection, dto.Stats, createdAt), nil
}
