package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/khanhnv2901/cspgen/internal/policy"
)

var lintCmd = &cobra.Command{
	Use:   "lint [policy]",
	Short: "Grade a Content-Security-Policy for unsafe sources and missing directives",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		file, _ := cmd.Flags().GetString("file")
		asJSON, _ := cmd.Flags().GetBool("json")

		var value string
		switch {
		case file != "" && len(args) > 0:
			return errors.New("lint: pass either a policy or --file, not both")
		case file != "":
			data, err := afero.ReadFile(appCtx.Fs, file)
			if err != nil {
				return fmt.Errorf("read policy file: %w", err)
			}
			value = extractPolicyValue(string(data))
		case len(args) > 0:
			value = args[0]
		default:
			return errors.New("lint: a policy argument or --file is required")
		}

		analysis := policy.Analyze(value)
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		}
		printAnalysis(cmd.OutOrStdout(), analysis)
		return nil
	},
}

// extractPolicyValue pulls the quoted policy out of a generated snippet so
// lint accepts .htaccess, nginx and meta files as well as raw policies.
func extractPolicyValue(text string) string {
	for _, marker := range []string{`Content-Security-Policy "`, `content="`} {
		idx := strings.Index(text, marker)
		if idx < 0 {
			continue
		}
		rest := text[idx+len(marker):]
		if end := strings.Index(rest, `"`); end >= 0 {
			return html.UnescapeString(rest[:end])
		}
	}
	return strings.TrimSpace(text)
}

func printAnalysis(w io.Writer, a policy.Analysis) {
	fmt.Fprintf(w, "%s %s (%d/%d)\n", colorHeading("Grade:"), formatGradeWithColor(a.Grade), a.Score, a.MaxScore)
	for _, issue := range a.Issues {
		fmt.Fprintf(w, "  %s %s\n", colorWarn("-"), issue)
	}
	if a.Recommendation != "" {
		fmt.Fprintf(w, "%s %s\n", colorInfo("→"), a.Recommendation)
	}
}

func init() {
	lintCmd.Flags().StringP("file", "f", "", "read the policy (or a generated snippet) from a file")
	lintCmd.Flags().Bool("json", false, "print the analysis as JSON")
}
