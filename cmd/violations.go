package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	consts "github.com/khanhnv2901/cspgen/internal/shared/constants"
)

var violationsCmd = &cobra.Command{
	Use:   "violations",
	Short: "Inspect CSP violation reports received by `cspgen serve`",
}

var violationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent violation reports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		if limit <= 0 {
			return fmt.Errorf("--limit must be positive")
		}

		records, err := appCtx.Services.CSPService.ListViolations(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No violation reports received.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RECEIVED\tDIRECTIVE\tBLOCKED\tDOCUMENT")
		for _, r := range records {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
				r.ReceivedAt.Local().Format(time.DateTime), r.Report.Directive(), r.Report.BlockedURI, r.Report.DocumentURI)
		}
		return tw.Flush()
	},
}

func init() {
	violationsListCmd.Flags().Int("limit", consts.DefaultViolationLimit, "maximum number of reports to show")
	violationsListCmd.Flags().Bool("json", false, "print reports as JSON")
	violationsCmd.AddCommand(violationsListCmd)
}
