package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	cspapp "github.com/khanhnv2901/cspgen/internal/application/csp"
	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	"github.com/khanhnv2901/cspgen/internal/resource"
	consts "github.com/khanhnv2901/cspgen/internal/shared/constants"
	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

// addScanFlags registers the flags shared by every command that walks a directory.
func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", cliConfig.Scan.Host, "host (optionally host:port) treated as same-origin")
	cmd.Flags().Int("workers", cliConfig.Scan.Workers, fmt.Sprintf("parallel HTML parsers (1 = sequential, max %d)", consts.MaxWorkers))
	cmd.Flags().StringSlice("ext", cliConfig.Scan.Extensions, "file extensions treated as HTML")
	cmd.Flags().String("malformed-urls", cliConfig.Scan.Malformed.String(), "classify unparseable URLs as external or local")
	cmd.Flags().Bool("progress", false, "show parse progress on stderr")
}

// addSourceFlags adds scan flags plus --scan-id for commands that can reuse a
// stored scan instead of walking a directory.
func addSourceFlags(cmd *cobra.Command) {
	addScanFlags(cmd)
	cmd.Flags().String("scan-id", "", "use a stored scan instead of a directory")
}

// scanOptions captures the parsed scan flags.
type scanOptions struct {
	Host       string
	Workers    int
	Extensions []string
	Malformed  resource.MalformedPolicy
	Progress   bool
}

func readScanOptions(cmd *cobra.Command) (scanOptions, error) {
	host, _ := cmd.Flags().GetString("host")
	workers, _ := cmd.Flags().GetInt("workers")
	exts, _ := cmd.Flags().GetStringSlice("ext")
	malformed, _ := cmd.Flags().GetString("malformed-urls")
	progress, _ := cmd.Flags().GetBool("progress")

	if workers < 0 || workers > consts.MaxWorkers {
		return scanOptions{}, fmt.Errorf("%w: --workers must be between 0 and %d", sharedErrors.ErrInvalidInput, consts.MaxWorkers)
	}
	mode, err := resource.ParseMalformedPolicy(malformed)
	if err != nil {
		return scanOptions{}, err
	}

	return scanOptions{
		Host:       host,
		Workers:    workers,
		Extensions: exts,
		Malformed:  mode,
		Progress:   progress,
	}, nil
}

// runScan walks root with the command's scan flags, optionally saving the
// result. Per-file failures are summarized on stderr.
func runScan(cmd *cobra.Command, appCtx *AppContext, root string, save bool) (*snapshot.Snapshot, error) {
	opts, err := readScanOptions(cmd)
	if err != nil {
		return nil, err
	}

	req := cspapp.ScanRequest{
		Root:       root,
		Host:       opts.Host,
		Workers:    opts.Workers,
		Extensions: opts.Extensions,
		Malformed:  opts.Malformed,
		Save:       save,
	}

	var printer *progressPrinter
	if opts.Progress {
		printer = newProgressPrinter(cmd.ErrOrStderr(), 0, "scan")
		req.OnEnumerate = printer.SetTotal
		req.OnFile = printer.Record
		printer.Start()
	}

	start := time.Now()
	snap, err := appCtx.Services.CSPService.Scan(cmd.Context(), req)
	if printer != nil {
		printer.Stop()
	}
	if err != nil {
		return nil, err
	}

	stats := snap.Stats()
	reportSkipped(cmd.ErrOrStderr(), stats)

	if telemetry, _ := cmd.Flags().GetBool("telemetry"); telemetry {
		if err := recordTelemetry(appCtx, cmd.CommandPath(), stats, time.Since(start)); err != nil {
			appCtx.logger().Warnw("failed to record telemetry", "error", err)
		}
	}
	return snap, nil
}

// loadSnapshot resolves the command's input: a stored scan via --scan-id or a
// fresh scan of the directory argument.
func loadSnapshot(cmd *cobra.Command, appCtx *AppContext, args []string) (*snapshot.Snapshot, error) {
	scanID, _ := cmd.Flags().GetString("scan-id")
	switch {
	case scanID != "" && len(args) > 0:
		return nil, &SourceArgumentError{Command: cmd.Name(), Both: true}
	case scanID == "" && len(args) == 0:
		return nil, &SourceArgumentError{Command: cmd.Name()}
	case scanID != "":
		if err := validateScanID(scanID); err != nil {
			return nil, err
		}
		snap, err := appCtx.Services.CSPService.GetSnapshot(cmd.Context(), scanID)
		if errors.Is(err, sharedErrors.ErrScanNotFound) {
			return nil, &ScanNotFoundError{ID: scanID}
		}
		return snap, err
	}
	return runScan(cmd, appCtx, args[0], false)
}

func reportSkipped(w io.Writer, stats resource.Stats) {
	if stats.Skipped() == 0 && stats.AmbiguousURLs == 0 {
		return
	}
	fmt.Fprintf(w, "%s parse errors: %d, unreadable entries: %d, ambiguous URLs: %d\n",
		colorWarn("!"), stats.ParseErrors, stats.TraversalErrors, stats.AmbiguousURLs)
	for _, fe := range stats.Errors {
		fmt.Fprintf(w, "  %s %s: %s\n", fe.Kind, fe.Path, fe.Err)
	}
}
