package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	cspapp "github.com/khanhnv2901/cspgen/internal/application/csp"
	"github.com/khanhnv2901/cspgen/internal/policy"
)

var generateCmd = &cobra.Command{
	Use:   "generate [dir]",
	Short: "Build a Content-Security-Policy snippet from a directory or a stored scan",
	Long: `generate builds a policy from the sources approved by --allow-file, or by the
--select mode when no allow-list is given (local sources by default), and wraps it
for the chosen server dialect. Without --output the snippet is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)

		snap, err := loadSnapshot(cmd, appCtx, args)
		if err != nil {
			return err
		}

		req, err := readGenerateRequest(cmd, appCtx)
		if err != nil {
			return err
		}

		gen, err := appCtx.Services.CSPService.Generate(snap.Collection(), req)
		if err != nil {
			return err
		}
		return emitGenerated(cmd, appCtx, gen)
	},
}

// addPolicyFlags registers the flags that shape a generated policy.
func addPolicyFlags(cmd *cobra.Command) {
	cmd.Flags().String("dialect", string(cliConfig.Policy.Dialect), "output format: apache, nginx or meta")
	cmd.Flags().String("report-uri", cliConfig.Policy.ReportURI, "report-uri directive value")
	cmd.Flags().Bool("strict-sources", cliConfig.Policy.StrictSources, "drop approved sources that could break out of the directive")
	cmd.Flags().StringP("output", "O", "", "write the snippet to this file (a directory receives the dialect's default filename)")
	cmd.Flags().Bool("json", false, "print the policy, snippet and lint result as JSON")
	cmd.Flags().Bool("lint", false, "print a policy grade to stderr")
}

func readGenerateRequest(cmd *cobra.Command, appCtx *AppContext) (cspapp.GenerateRequest, error) {
	allowFile, _ := cmd.Flags().GetString("allow-file")
	selection, _ := cmd.Flags().GetString("select")

	req, err := readPolicyFlags(cmd)
	if err != nil {
		return req, err
	}

	sel, err := policy.ParseSelection(selection)
	if err != nil {
		return req, err
	}
	req.Selection = sel

	if allowFile != "" {
		allow, err := policy.LoadAllowList(appCtx.Fs, allowFile)
		if err != nil {
			return req, err
		}
		req.Allow = allow
	}
	return req, nil
}

func readPolicyFlags(cmd *cobra.Command) (cspapp.GenerateRequest, error) {
	dialect, _ := cmd.Flags().GetString("dialect")
	reportURI, _ := cmd.Flags().GetString("report-uri")
	strict, _ := cmd.Flags().GetBool("strict-sources")

	d, err := policy.ParseDialect(dialect)
	if err != nil {
		return cspapp.GenerateRequest{}, err
	}
	return cspapp.GenerateRequest{
		Dialect:       d,
		ReportURI:     reportURI,
		StrictSources: strict,
	}, nil
}

// emitGenerated prints or writes gen according to --output, --json and --lint.
func emitGenerated(cmd *cobra.Command, appCtx *AppContext, gen *cspapp.Generated) error {
	output, _ := cmd.Flags().GetString("output")
	asJSON, _ := cmd.Flags().GetBool("json")
	lint, _ := cmd.Flags().GetBool("lint")

	for _, rejected := range gen.Policy.Rejected {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s dropped %s source %q: %s\n",
			colorWarn("!"), rejected.Type, rejected.Source, rejected.Reason)
	}
	if lint {
		printAnalysis(cmd.ErrOrStderr(), gen.Lint)
	}

	if output != "" {
		path, err := resolveOutputPath(appCtx.Fs, output, gen.Snippet.Filename)
		if err != nil {
			return err
		}
		if err := writeOutputFile(appCtx.Fs, path, []byte(gen.Snippet.Content)); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Wrote %s snippet to %s\n", colorSuccess("✓"), gen.Snippet.Dialect, path)
		if !asJSON {
			return nil
		}
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(gen)
	}
	_, err := io.WriteString(cmd.OutOrStdout(), gen.Snippet.Content)
	return err
}

func init() {
	addSourceFlags(generateCmd)
	addPolicyFlags(generateCmd)
	generateCmd.Flags().String("allow-file", "", "YAML or JSON allow-list mapping resource types to approved sources")
	generateCmd.Flags().String("select", string(cliConfig.Policy.Selection), "sources to approve without an allow-list: local, external, all or none")
}
