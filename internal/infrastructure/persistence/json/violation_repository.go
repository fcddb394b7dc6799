package json

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/khanhnv2901/cspgen/internal/domain/violation"
	"github.com/khanhnv2901/cspgen/internal/shared/constants"
	"github.com/khanhnv2901/cspgen/internal/shared/security"
)

const (
	violationLogName = "violations.jsonl"

	// DefaultMaxViolationLogBytes is the size at which the log is rotated.
	// One rotated generation is kept, so the log never exceeds twice this.
	DefaultMaxViolationLogBytes int64 = 4 << 20
)

// tailChunkSize is how much of the log List reads per step from the end.
var tailChunkSize int64 = 64 << 10

// ViolationRepository implements the violation.Repository interface as an
// append-only JSON Lines log with a size cap.
type ViolationRepository struct {
	fs          afero.Fs
	filePath    string
	rotatedPath string
	maxBytes    int64
	mu          sync.Mutex
}

// ViolationOption customizes a ViolationRepository.
type ViolationOption func(*ViolationRepository)

// WithMaxLogBytes sets the rotation threshold. Values <= 0 keep the default.
func WithMaxLogBytes(n int64) ViolationOption {
	return func(r *ViolationRepository) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// NewViolationRepository creates a violation log at dataDir/violations.jsonl.
func NewViolationRepository(fs afero.Fs, dataDir string, opts ...ViolationOption) (*ViolationRepository, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory cannot be empty")
	}

	filePath, err := security.ResolveWithin(dataDir, violationLogName)
	if err != nil {
		return nil, fmt.Errorf("invalid violation log path: %w", err)
	}

	if err := fs.MkdirAll(dataDir, constants.DefaultDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	r := &ViolationRepository{
		fs:          fs,
		filePath:    filePath,
		rotatedPath: filePath + ".1",
		maxBytes:    DefaultMaxViolationLogBytes,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Append stores one received report, rotating the log first when the record
// would push it past the size cap.
func (r *ViolationRepository) Append(ctx context.Context, record violation.Record) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode violation: %w", err)
	}
	line = append(line, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.rotateIfFull(int64(len(line))); err != nil {
		return err
	}

	file, err := r.fs.OpenFile(r.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, constants.DefaultFilePerm)
	if err != nil {
		return fmt.Errorf("failed to open violation log: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(line); err != nil {
		return fmt.Errorf("failed to write violation: %w", err)
	}
	return nil
}

func (r *ViolationRepository) rotateIfFull(incoming int64) error {
	info, err := r.fs.Stat(r.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat violation log: %w", err)
	}
	if info.Size() == 0 || info.Size()+incoming <= r.maxBytes {
		return nil
	}

	if err := r.fs.Remove(r.rotatedPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to drop rotated violation log: %w", err)
	}
	if err := r.fs.Rename(r.filePath, r.rotatedPath); err != nil {
		return fmt.Errorf("failed to rotate violation log: %w", err)
	}
	return nil
}

// List returns the most recent records, oldest first. limit <= 0 returns all
// retained records. Lines that cannot be decoded are skipped.
func (r *ViolationRepository) List(ctx context.Context, limit int) ([]violation.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.tail(ctx, r.filePath, limit)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || len(records) < limit {
		rest := 0
		if limit > 0 {
			rest = limit - len(records)
		}
		older, err := r.tail(ctx, r.rotatedPath, rest)
		if err != nil {
			return nil, err
		}
		records = append(older, records...)
	}
	if records == nil {
		records = []violation.Record{}
	}
	return records, nil
}

// tail decodes up to limit records from the end of path, reading backwards in
// chunks, and returns them oldest first.
func (r *ViolationRepository) tail(ctx context.Context, path string, limit int) ([]violation.Record, error) {
	file, err := r.fs.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open violation log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat violation log: %w", err)
	}

	full := func(n int) bool { return limit > 0 && n >= limit }

	var newestFirst []violation.Record
	var partial []byte
	offset := info.Size()
	for offset > 0 && !full(len(newestFirst)) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(tailChunkSize, offset)
		offset -= n

		chunk := make([]byte, n, n+int64(len(partial)))
		if _, err := file.ReadAt(chunk, offset); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read violation log: %w", err)
		}
		lines := bytes.Split(append(chunk, partial...), []byte{'\n'})

		// The first line may continue in the previous chunk.
		partial = lines[0]
		for i := len(lines) - 1; i >= 1 && !full(len(newestFirst)); i-- {
			if record, ok := decodeViolation(lines[i]); ok {
				newestFirst = append(newestFirst, record)
			}
		}
	}
	if offset == 0 && !full(len(newestFirst)) {
		if record, ok := decodeViolation(partial); ok {
			newestFirst = append(newestFirst, record)
		}
	}

	records := make([]violation.Record, len(newestFirst))
	for i, record := range newestFirst {
		records[len(newestFirst)-1-i] = record
	}
	return records, nil
}

func decodeViolation(line []byte) (violation.Record, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return violation.Record{}, false
	}
	var record violation.Record
	if err := json.Unmarshal(line, &record); err != nil {
		return violation.Record{}, false
	}
	return record, true
}
