package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// DefaultWorkers is the number of HTML files parsed concurrently by default.
	DefaultWorkers = 1
	// MaxWorkers caps configurable scan parallelism.
	MaxWorkers = 64
	// DefaultViolationLimit is how many violation reports `violations list` shows.
	DefaultViolationLimit = 50
	// ServerShutdownTimeout bounds graceful shutdown of the API server.
	ServerShutdownTimeout = 10 * time.Second
)
