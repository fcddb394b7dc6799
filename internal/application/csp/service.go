package csp

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	"github.com/khanhnv2901/cspgen/internal/domain/violation"
	"github.com/khanhnv2901/cspgen/internal/policy"
	"github.com/khanhnv2901/cspgen/internal/resource"
)

// Service coordinates scanning, snapshot storage, policy generation and
// violation intake for the CLI and the API.
type Service struct {
	fs            afero.Fs
	snapshotRepo  snapshot.Repository
	violationRepo violation.Repository
	logger        *zap.SugaredLogger
}

// NewService creates a new CSP service
func NewService(
	fs afero.Fs,
	snapshotRepo snapshot.Repository,
	violationRepo violation.Repository,
	logger *zap.SugaredLogger,
) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		fs:            fs,
		snapshotRepo:  snapshotRepo,
		violationRepo: violationRepo,
		logger:        logger,
	}
}

// ScanRequest describes one directory scan.
type ScanRequest struct {
	Root       string
	Host       string
	Workers    int
	Extensions []string
	Malformed  resource.MalformedPolicy
	// Save persists the result as a snapshot.
	Save bool

	OnEnumerate func(total int)
	OnFile      func(resource.FileResult)
}

// Scan walks req.Root and wraps the result in a snapshot. A cancelled scan
// returns the partial snapshot together with the context error; it is never
// saved.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*snapshot.Snapshot, error) {
	scanner := resource.NewScanner(resource.Classifier{Host: req.Host, Malformed: req.Malformed})
	scanner.Fs = s.fs
	scanner.Logger = s.logger
	scanner.Workers = req.Workers
	if len(req.Extensions) > 0 {
		scanner.Extensions = req.Extensions
	}
	scanner.OnEnumerate = req.OnEnumerate
	scanner.OnFile = req.OnFile

	collection, stats, scanErr := scanner.Scan(ctx, req.Root)
	var inputErr *resource.InputError
	if errors.As(scanErr, &inputErr) {
		return nil, scanErr
	}

	snap, err := snapshot.NewSnapshot(req.Root, req.Host, collection, stats)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot: %w", err)
	}
	if scanErr != nil {
		s.logger.Warnw("scan stopped early", "root", req.Root, "files_parsed", stats.FilesParsed, "error", scanErr)
		return snap, scanErr
	}

	if req.Save {
		if err := s.snapshotRepo.Save(ctx, snap); err != nil {
			return snap, fmt.Errorf("failed to save snapshot: %w", err)
		}
		s.logger.Infow("snapshot saved", "id", snap.ID(), "root", req.Root)
	}
	return snap, nil
}

// GetSnapshot retrieves a stored snapshot by ID
func (s *Service) GetSnapshot(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	snap, err := s.snapshotRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return snap, nil
}

// ListSnapshots lists stored snapshots, newest first
func (s *Service) ListSnapshots(ctx context.Context) ([]snapshot.Summary, error) {
	summaries, err := s.snapshotRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	return summaries, nil
}

// DeleteSnapshot removes a stored snapshot
func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if err := s.snapshotRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	s.logger.Infow("snapshot deleted", "id", id)
	return nil
}

// GenerateRequest selects sources and an output format for a policy.
type GenerateRequest struct {
	// Allow is the operator's allow-list. When nil, Selection decides.
	Allow         policy.AllowList
	Selection     policy.Selection
	Dialect       policy.Dialect
	ReportURI     string
	StrictSources bool
}

// Generated is a built policy with its snippet and lint result.
type Generated struct {
	Policy  policy.Policy   `json:"-"`
	Text    string          `json:"policy"`
	Header  string          `json:"header"`
	Snippet policy.Snippet  `json:"snippet"`
	Lint    policy.Analysis `json:"lint"`
}

// Generate builds a policy from c and wraps it in the requested dialect.
func (s *Service) Generate(c resource.Collection, req GenerateRequest) (*Generated, error) {
	allow := req.Allow
	if allow == nil {
		sel := req.Selection
		if sel == "" {
			sel = policy.SelectLocal
		}
		allow = policy.AllowFrom(c, sel)
	}

	opts := []policy.Option{policy.WithReportURI(req.ReportURI)}
	if req.StrictSources {
		opts = append(opts, policy.WithStrictSources())
	}
	p := policy.Build(c, allow, opts...)

	snippet, err := policy.Wrap(p, req.Dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap policy: %w", err)
	}

	for _, rejected := range p.Rejected {
		s.logger.Warnw("rejected unsafe source", "type", rejected.Type.String(), "src", rejected.Source, "reason", rejected.Reason)
	}

	return &Generated{
		Policy:  p,
		Text:    p.String(),
		Header:  p.Header(),
		Snippet: snippet,
		Lint:    policy.Analyze(p.Header()),
	}, nil
}

// RecordViolation appends a received violation report to the log
func (s *Service) RecordViolation(ctx context.Context, record violation.Record) error {
	if err := s.violationRepo.Append(ctx, record); err != nil {
		return fmt.Errorf("failed to record violation: %w", err)
	}
	s.logger.Infow("csp violation",
		"directive", record.Report.Directive(),
		"blocked_uri", record.Report.BlockedURI,
		"document_uri", record.Report.DocumentURI,
	)
	return nil
}

// ListViolations returns the most recent violation reports
func (s *Service) ListViolations(ctx context.Context, limit int) ([]violation.Record, error) {
	records, err := s.violationRepo.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	return records, nil
}
