package cmd

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestApplyIntDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 0, "")

	var applied int
	applyIntDefault(flags, "workers", 15, func(v int) {
		applied = v
	})
	if applied != 15 {
		t.Fatalf("expected setter to receive 15, got %d", applied)
	}

	// When flag already set, setter should not run.
	if err := flags.Set("workers", "7"); err != nil {
		t.Fatalf("failed to set flag: %v", err)
	}
	applied = 0
	applyIntDefault(flags, "workers", 20, func(v int) {
		applied = v
	})
	if applied != 0 {
		t.Fatalf("setter should not run when flag overridden, got %d", applied)
	}
}

func TestApplyBoolDefault(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Bool("telemetry", false, "")

	applied := false
	applyBoolDefault(flags, "telemetry", true, func(v bool) {
		applied = v
	})
	if !applied {
		t.Fatal("expected setter to run with true")
	}

	if err := flags.Set("telemetry", "false"); err != nil {
		t.Fatalf("failed to set bool flag: %v", err)
	}
	applied = true
	applyBoolDefault(flags, "telemetry", true, func(v bool) {
		applied = v
	})
	if !applied {
		t.Fatalf("setter should not change value when flag already set")
	}
}

func TestSetStringFlagIfUnset(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("host", "", "")

	setStringFlagIfUnset(flags, "host", "example.com")
	if got := flags.Lookup("host").Value.String(); got != "example.com" {
		t.Fatalf("expected host to be default, got %s", got)
	}

	if err := flags.Set("host", "user.example"); err != nil {
		t.Fatalf("failed to set host: %v", err)
	}
	setStringFlagIfUnset(flags, "host", "new.example")
	if got := flags.Lookup("host").Value.String(); got != "user.example" {
		t.Fatalf("expected host to remain user-provided, got %s", got)
	}

	setStringFlagIfUnset(flags, "missing", "ignored")
}

func newConfigTestCommand() *cobra.Command {
	c := &cobra.Command{Use: "test"}
	addScanFlags(c)
	addPolicyFlags(c)
	c.Flags().String("select", "local", "")
	return c
}

func resetConfigState(t *testing.T) {
	t.Helper()
	original := cliConfig
	cliConfig = newCLIConfig()
	t.Cleanup(func() {
		viper.Reset()
		cliConfig = original
	})
}

func TestApplyConfigDefaultsFromViper(t *testing.T) {
	resetConfigState(t)
	viper.Set("scan.host", "mysite.com")
	viper.Set("scan.workers", 4)
	viper.Set("scan.extensions", []string{".html", ".htm"})
	viper.Set("scan.malformed_urls", "local")
	viper.Set("policy.dialect", "nginx")
	viper.Set("policy.selection", "all")
	viper.Set("policy.strict_sources", false)

	c := newConfigTestCommand()
	if err := applyConfigDefaults(c); err != nil {
		t.Fatalf("applyConfigDefaults failed: %v", err)
	}

	flags := c.Flags()
	checks := map[string]string{
		"host":           "mysite.com",
		"workers":        "4",
		"ext":            "[.html,.htm]",
		"malformed-urls": "local",
		"dialect":        "nginx",
		"select":         "all",
		"strict-sources": "false",
	}
	for name, want := range checks {
		if got := flags.Lookup(name).Value.String(); got != want {
			t.Errorf("flag %s = %s, want %s", name, got, want)
		}
	}
	if cliConfig.Scan.Workers != 4 || cliConfig.Policy.Dialect != "nginx" || cliConfig.Policy.StrictSources {
		t.Errorf("runtime config not updated: %+v", cliConfig)
	}
}

func TestApplyConfigDefaultsKeepsExplicitFlags(t *testing.T) {
	resetConfigState(t)
	viper.Set("policy.dialect", "nginx")
	viper.Set("scan.workers", 4)

	c := newConfigTestCommand()
	if err := c.Flags().Set("dialect", "meta"); err != nil {
		t.Fatal(err)
	}
	if err := c.Flags().Set("workers", "2"); err != nil {
		t.Fatal(err)
	}
	if err := applyConfigDefaults(c); err != nil {
		t.Fatalf("applyConfigDefaults failed: %v", err)
	}

	if got := c.Flags().Lookup("dialect").Value.String(); got != "meta" {
		t.Errorf("expected explicit dialect to win, got %s", got)
	}
	if got := c.Flags().Lookup("workers").Value.String(); got != "2" {
		t.Errorf("expected explicit workers to win, got %s", got)
	}
}

func TestApplyConfigDefaultsRejectsInvalidValues(t *testing.T) {
	tests := map[string]interface{}{
		"policy.dialect":      "iis",
		"policy.selection":    "some",
		"scan.malformed_urls": "maybe",
		"scan.workers":        1000,
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			resetConfigState(t)
			viper.Set(key, value)
			if err := applyConfigDefaults(newConfigTestCommand()); err == nil {
				t.Fatalf("expected %s=%v to be rejected", key, value)
			}
		})
	}
}
