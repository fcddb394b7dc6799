package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	consts "github.com/khanhnv2901/cspgen/internal/shared/constants"
)

const indexHTML = `<script src="/app.js"></script><img src="https://cdn.example.com/logo.png">`

// writeSite creates an HTML tree under a temp dir and returns its root.
func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), consts.DefaultDirPerm); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), consts.DefaultFilePerm); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return root
}

// runCLI executes the root command in an isolated data and home directory.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return runCLIWithInput(t, nil, args...)
}

// runCLIWithInput is runCLI with stdin replaced by input when it is non-nil.
func runCLIWithInput(t *testing.T, input io.Reader, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	if os.Getenv(dataDirEnvVar) == "" {
		t.Setenv(dataDirEnvVar, t.TempDir())
	}
	if home := os.Getenv("HOME"); !strings.HasPrefix(home, os.TempDir()) {
		t.Setenv("HOME", t.TempDir())
	}

	originalConfig := cliConfig
	originalAppCtx := globalAppContext
	t.Cleanup(func() {
		resetCLIState()
		cliConfig = originalConfig
		globalAppContext = originalAppCtx
	})
	resetCLIState()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(input)
	rootCmd.SetArgs(args)
	err = rootCmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// resetCLIState clears what a previous execution left in package globals.
func resetCLIState() {
	cliConfig = newCLIConfig()
	globalAppContext = nil
	cfgFile = ""
	debug = false
	viper.Reset()
	rootCmd.SetIn(nil)
	resetFlags(rootCmd)
}

// resetFlags restores every flag in the tree to its default so commands can
// be executed repeatedly within one test binary.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := strings.Trim(f.DefValue, "[]")
			var vals []string
			if def != "" {
				vals = strings.Split(def, ",")
			}
			_ = sv.Replace(vals)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}
