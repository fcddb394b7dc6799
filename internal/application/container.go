package application

import (
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	cspapp "github.com/khanhnv2901/cspgen/internal/application/csp"
	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	"github.com/khanhnv2901/cspgen/internal/domain/violation"
	"github.com/khanhnv2901/cspgen/internal/infrastructure/persistence/json"
)

// Container holds all application services and repositories
// This is a simple dependency injection container
type Container struct {
	// Repositories
	SnapshotRepo  snapshot.Repository
	ViolationRepo violation.Repository

	// Services
	CSPService *cspapp.Service
}

// NewContainer creates a new application service container. Scans read from
// and snapshots are stored on fs.
func NewContainer(fs afero.Fs, dataDir string, logger *zap.SugaredLogger) (*Container, error) {
	snapshotRepo, err := json.NewSnapshotRepository(fs, dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot repository: %w", err)
	}

	violationRepo, err := json.NewViolationRepository(fs, dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create violation repository: %w", err)
	}

	return &Container{
		SnapshotRepo:  snapshotRepo,
		ViolationRepo: violationRepo,
		CSPService:    cspapp.NewService(fs, snapshotRepo, violationRepo, logger),
	}, nil
}
