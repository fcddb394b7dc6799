package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

// DefaultExtensions lists the file extensions scanned when none are configured.
var DefaultExtensions = []string{".html"}

// Stats is the diagnostic side channel of a scan.
type Stats struct {
	FilesVisited    int           `json:"files_visited"`
	HTMLFiles       int           `json:"html_files"`
	FilesParsed     int           `json:"files_parsed"`
	Ignored         int           `json:"ignored"`
	ParseErrors     int           `json:"parse_errors"`
	TraversalErrors int           `json:"traversal_errors"`
	References      int           `json:"references"`
	AmbiguousURLs   int           `json:"ambiguous_urls"`
	Duration        time.Duration `json:"duration_ns"`
	Errors          []FileError   `json:"errors,omitempty"`
}

// Skipped returns how many HTML files or entries were dropped because of errors.
func (s Stats) Skipped() int {
	return s.ParseErrors + s.TraversalErrors
}

// FileResult is reported to OnFile after each HTML file is processed.
type FileResult struct {
	Path       string
	References int
	Err        error
}

// Scanner walks a directory tree and extracts references from its HTML files.
type Scanner struct {
	Fs         afero.Fs
	Extractor  *Extractor
	Extensions []string
	// Workers bounds concurrent file parsing. Values below 2 scan sequentially.
	Workers int
	Logger  *zap.SugaredLogger

	// OnEnumerate receives the number of HTML files about to be parsed.
	OnEnumerate func(total int)
	// OnFile is called once per HTML file, possibly from several goroutines.
	OnFile func(FileResult)
}

// NewScanner returns a sequential scanner on the OS filesystem.
func NewScanner(classifier Classifier) *Scanner {
	return &Scanner{
		Fs:         afero.NewOsFs(),
		Extractor:  &Extractor{Classifier: classifier},
		Extensions: DefaultExtensions,
		Workers:    1,
	}
}

type fileOutcome struct {
	done       bool
	references []Reference
	ambiguous  int
	kind       ErrorKind
	err        error
}

// Scan enumerates every regular file under root, extracts references from the
// HTML ones and returns them grouped by type and sorted by containing directory.
//
// A missing or non-directory root returns an *InputError and an empty
// collection. Per-file failures are recorded in Stats and skipped. If ctx is
// cancelled, the returned collection holds the files completed before the first
// unfinished one and the context error is returned with it.
func (s *Scanner) Scan(ctx context.Context, root string) (Collection, Stats, error) {
	start := time.Now()
	stats := Stats{}
	collection := NewCollection()

	info, err := s.fs().Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return collection, stats, &InputError{Root: root, Err: sharedErrors.ErrRootNotFound}
		}
		return collection, stats, &InputError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return collection, stats, &InputError{Root: root, Err: sharedErrors.ErrNotADirectory}
	}

	files, err := s.enumerate(ctx, root, &stats)
	if err != nil {
		stats.Duration = time.Since(start)
		return collection, stats, err
	}
	stats.HTMLFiles = len(files)
	if s.OnEnumerate != nil {
		s.OnEnumerate(len(files))
	}

	outcomes := make([]fileOutcome, len(files))
	runErr := s.parseAll(ctx, files, outcomes)

	// Merge in discovery order; stop at the first file that never ran so a
	// cancelled scan stays a consistent prefix.
	for i, outcome := range outcomes {
		if !outcome.done {
			break
		}
		if outcome.err != nil {
			if outcome.kind == KindTraversal {
				stats.TraversalErrors++
			} else {
				stats.ParseErrors++
			}
			stats.Errors = append(stats.Errors, FileError{Path: files[i], Kind: outcome.kind, Err: outcome.err.Error()})
			continue
		}
		stats.FilesParsed++
		stats.AmbiguousURLs += outcome.ambiguous
		collection.Add(outcome.references...)
	}

	collection.Sort()
	stats.References = collection.Len()
	stats.Duration = time.Since(start)

	s.logger().Infow("scan complete",
		"root", root,
		"html_files", stats.HTMLFiles,
		"parsed", stats.FilesParsed,
		"references", stats.References,
		"skipped", stats.Skipped(),
		"duration", stats.Duration,
	)

	return collection, stats, runErr
}

func (s *Scanner) enumerate(ctx context.Context, root string, stats *Stats) ([]string, error) {
	var files []string
	fs := s.fs()

	// A symlinked root is walked through its target.
	walkRoot := root
	if lstater, ok := fs.(afero.Lstater); ok {
		if info, _, err := lstater.LstatIfPossible(root); err == nil && info.Mode()&os.ModeSymlink != 0 {
			walkRoot = root + string(filepath.Separator)
		}
	}

	walkErr := afero.Walk(fs, walkRoot, func(path string, info os.FileInfo, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.traversalError(stats, path, err)
			return nil
		}
		if info.IsDir() {
			return nil
		}

		mode := info.Mode()
		if mode&os.ModeSymlink != 0 {
			// Follow links to files, but never descend into linked directories.
			target, statErr := fs.Stat(path)
			if statErr != nil {
				s.traversalError(stats, path, statErr)
				return nil
			}
			if !target.Mode().IsRegular() {
				return nil
			}
		} else if !mode.IsRegular() {
			return nil
		}

		stats.FilesVisited++
		if !s.matchesExtension(path) {
			stats.Ignored++
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}

func (s *Scanner) parseAll(ctx context.Context, files []string, outcomes []fileOutcome) error {
	workers := s.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.parseFile(files[i])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Scanner) parseFile(path string) fileOutcome {
	outcome := fileOutcome{done: true}

	data, err := afero.ReadFile(s.fs(), path)
	if err != nil {
		outcome.kind = KindTraversal
		outcome.err = fmt.Errorf("%w: %s: %v", sharedErrors.ErrTraversal, path, err)
	} else {
		extraction, extractErr := s.extractor().Extract(bytes.NewReader(data), path)
		if extractErr != nil {
			outcome.kind = KindParse
			outcome.err = extractErr
		} else {
			outcome.references = extraction.References
			outcome.ambiguous = len(extraction.Ambiguous)
			for _, amb := range extraction.Ambiguous {
				s.logger().Debugw("ambiguous resource url", "file", path, "url", amb.URL, "error", amb.Cause)
			}
		}
	}

	if outcome.err != nil {
		s.logger().Warnw("skipping html file", "file", path, "error", outcome.err)
	}
	if s.OnFile != nil {
		s.OnFile(FileResult{Path: path, References: len(outcome.references), Err: outcome.err})
	}
	return outcome
}

func (s *Scanner) traversalError(stats *Stats, path string, err error) {
	stats.TraversalErrors++
	stats.Errors = append(stats.Errors, FileError{Path: path, Kind: KindTraversal, Err: err.Error()})
	s.logger().Warnw("skipping unreadable entry", "path", path, "error", err)
}

func (s *Scanner) matchesExtension(path string) bool {
	exts := s.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	ext := filepath.Ext(path)
	for _, want := range exts {
		if ext == want {
			return true
		}
	}
	return false
}

func (s *Scanner) extractor() *Extractor {
	if s.Extractor == nil {
		return &Extractor{}
	}
	return s.Extractor
}

func (s *Scanner) fs() afero.Fs {
	if s.Fs == nil {
		return afero.NewOsFs()
	}
	return s.Fs
}

func (s *Scanner) logger() *zap.SugaredLogger {
	if s.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return s.Logger
}
