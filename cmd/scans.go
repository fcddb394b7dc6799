package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	sharedErrors "github.com/khanhnv2901/cspgen/internal/shared/errors"
)

var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Manage stored scans",
}

var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored scans, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		asJSON, _ := cmd.Flags().GetBool("json")

		summaries, err := appCtx.Services.CSPService.ListSnapshots(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summaries)
		}
		if len(summaries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No stored scans. Use `cspgen scan <dir> --save` to store one.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tREFS\tHOST\tROOT")
		for _, s := range summaries {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", s.ID, s.CreatedAt.Local().Format(time.DateTime), s.References, s.Host, s.Root)
		}
		return tw.Flush()
	},
}

var scansDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored scan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		id := args[0]
		if err := validateScanID(id); err != nil {
			return err
		}
		if err := appCtx.Services.CSPService.DeleteSnapshot(cmd.Context(), id); err != nil {
			if errors.Is(err, sharedErrors.ErrScanNotFound) {
				return &ScanNotFoundError{ID: id}
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted scan %s\n", colorSuccess("✓"), id)
		return nil
	},
}

func init() {
	scansListCmd.Flags().Bool("json", false, "print summaries as JSON")
	scansCmd.AddCommand(scansListCmd)
	scansCmd.AddCommand(scansDeleteCmd)
}
