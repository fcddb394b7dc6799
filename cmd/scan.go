package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/cspgen/internal/domain/snapshot"
	"github.com/khanhnv2901/cspgen/internal/resource"
)

var scanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "List the resources referenced by the HTML files under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		typeNames, _ := cmd.Flags().GetStringSlice("type")
		only, _ := cmd.Flags().GetString("only")
		search, _ := cmd.Flags().GetString("search")
		asJSON, _ := cmd.Flags().GetBool("json")
		save, _ := cmd.Flags().GetBool("save")

		types, err := resource.ParseTypes(typeNames)
		if err != nil {
			return err
		}
		locality, err := resource.ParseLocality(only)
		if err != nil {
			return err
		}

		snap, err := runScan(cmd, appCtx, args[0], save)
		if err != nil {
			return err
		}

		filter := resource.Filter{Types: types, Only: locality, Search: search}
		view := filter.Apply(snap.Collection())

		if asJSON {
			return writeScanJSON(cmd.OutOrStdout(), snap, view, save)
		}
		printCollection(cmd.OutOrStdout(), view)
		printScanSummary(cmd.OutOrStdout(), snap, save)
		return nil
	},
}

type scanOutput struct {
	ID        string              `json:"id,omitempty"`
	Root      string              `json:"root"`
	Host      string              `json:"host,omitempty"`
	Resources resource.Collection `json:"resources"`
	Stats     resource.Stats      `json:"stats"`
}

func writeScanJSON(w io.Writer, snap *snapshot.Snapshot, view resource.Collection, saved bool) error {
	out := scanOutput{
		Root:      snap.Root(),
		Host:      snap.Host(),
		Resources: view,
		Stats:     snap.Stats(),
	}
	if saved {
		out.ID = snap.ID()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printCollection lists references grouped by type, each prefixed with a
// green (local) or red (external) dot.
func printCollection(w io.Writer, c resource.Collection) {
	for _, t := range resource.AllTypes() {
		refs := c.Refs(t)
		if len(refs) == 0 {
			continue
		}
		fmt.Fprintf(w, "%s (%s, %d)\n", colorHeading(t.String()), t.Directive(), len(refs))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, ref := range refs {
			src := ref.Source
			if src == "" {
				src = `""`
			}
			fmt.Fprintf(tw, "  %s %s\t%s\n", localityDot(ref.Local), src, ref.File)
		}
		_ = tw.Flush()
		fmt.Fprintln(w)
	}
}

func printScanSummary(w io.Writer, snap *snapshot.Snapshot, saved bool) {
	stats := snap.Stats()
	fmt.Fprintf(w, "%s %d reference(s) in %d of %d HTML file(s) under %s (%s)\n",
		colorInfo("→"), stats.References, stats.FilesParsed, stats.HTMLFiles, snap.Root(), stats.Duration.Round(time.Millisecond))
	if saved {
		fmt.Fprintf(w, "%s Saved scan %s\n", colorSuccess("✓"), snap.ID())
	}
}

func init() {
	addScanFlags(scanCmd)
	scanCmd.Flags().StringSlice("type", nil, "only show these resource types (scripts, stylesheets, images, fonts, media, object, frame, worker)")
	scanCmd.Flags().String("only", string(resource.LocalityAll), "only show all, local or external references")
	scanCmd.Flags().String("search", "", "case-insensitive substring match on source or file path")
	scanCmd.Flags().Bool("json", false, "print the result as JSON")
	scanCmd.Flags().Bool("save", false, "store the scan for later generate/report runs")
}
