package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/khanhnv2901/cspgen/internal/application"
)

var cfgFile string
var debug bool

var rootCmd = &cobra.Command{
	Use:   "cspgen",
	Short: "Generate a Content-Security-Policy from the resources a static site references",
	Long: `cspgen scans a directory of HTML files, lists the scripts, stylesheets, images,
fonts, media, objects, frames and workers they reference, and turns the sources
you approve into a Content-Security-Policy wrapped for Apache, nginx or a meta tag.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init config
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath("$HOME")
			viper.SetConfigName(".cspgen")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("CSPGEN")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
			return fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}

		if err := applyConfigDefaults(cmd); err != nil {
			return err
		}

		l, err := newLogger(debug)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		logger := l.Sugar()

		dataDir, err := getDataDir()
		if err != nil {
			return err
		}

		fs := afero.NewOsFs()
		services, err := application.NewContainer(fs, dataDir, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}

		logger.Debugw("initialized", "data_dir", dataDir, "config", viper.ConfigFileUsed())

		storeAppContext(cmd, &AppContext{
			Logger:   logger,
			Fs:       fs,
			DataDir:  dataDir,
			Config:   cliConfig,
			Services: services,
		})
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appCtx := getAppContext(cmd); appCtx != nil && appCtx.Logger != nil {
			_ = appCtx.Logger.Sync()
		}
	},
}

// newLogger returns a production logger writing to stderr. Scan diagnostics
// are only shown with --debug.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

func init() {
	// config file flag
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.cspgen.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log scan diagnostics to stderr")
	rootCmd.PersistentFlags().Bool("telemetry", cliConfig.Defaults.TelemetryEnabled, "append local scan metrics to telemetry.jsonl in the data dir")

	// add subcommands
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(lintCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(scansCmd)
	rootCmd.AddCommand(violationsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
