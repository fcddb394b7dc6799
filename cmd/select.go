package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/cspgen/internal/policy"
	"github.com/khanhnv2901/cspgen/internal/tui"
)

var selectCmd = &cobra.Command{
	Use:   "select [dir]",
	Short: "Pick approved sources interactively and write the policy snippet",
	Long: `select opens a checklist of every referenced source, grouped by type, with
local sources pre-checked. Confirming with enter writes the snippet; q or esc
leaves without writing anything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		selection, _ := cmd.Flags().GetString("select")
		saveAllow, _ := cmd.Flags().GetString("save-allow")

		snap, err := loadSnapshot(cmd, appCtx, args)
		if err != nil {
			return err
		}
		if snap.Collection().Len() == 0 {
			return fmt.Errorf("no resources found under %s", snap.Root())
		}

		req, err := readPolicyFlags(cmd)
		if err != nil {
			return err
		}
		sel, err := policy.ParseSelection(selection)
		if err != nil {
			return err
		}

		// Keystrokes come from the command's input when it has been redirected.
		var opts []tea.ProgramOption
		if in := cmd.InOrStdin(); in != os.Stdin {
			opts = append(opts, tea.WithInput(in), tea.WithOutput(cmd.ErrOrStderr()))
		}

		preselect := policy.AllowFrom(snap.Collection(), sel)
		allow, confirmed, err := tui.Run(cmd.Context(), tui.NewStyleSet(tui.DefaultTheme()), snap.Collection(), preselect, opts...)
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(cmd.ErrOrStderr(), colorWarn("Selection cancelled; nothing written."))
			return nil
		}

		if saveAllow != "" {
			data, err := yaml.Marshal(allow.ToMap())
			if err != nil {
				return fmt.Errorf("encode allow-list: %w", err)
			}
			if err := writeOutputFile(appCtx.Fs, saveAllow, data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Saved allow-list to %s\n", colorSuccess("✓"), saveAllow)
		}

		req.Allow = allow
		gen, err := appCtx.Services.CSPService.Generate(snap.Collection(), req)
		if err != nil {
			return err
		}
		return emitGenerated(cmd, appCtx, gen)
	},
}

func init() {
	addSourceFlags(selectCmd)
	addPolicyFlags(selectCmd)
	selectCmd.Flags().String("select", string(cliConfig.Policy.Selection), "initially checked sources: local, external, all or none")
	selectCmd.Flags().String("save-allow", "", "also save the confirmed selection as a YAML allow-list")
	output := selectCmd.Flags().Lookup("output")
	_ = output.Value.Set(".")
	output.DefValue = "."
}
