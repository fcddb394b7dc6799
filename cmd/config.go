package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/khanhnv2901/cspgen/internal/policy"
	"github.com/khanhnv2901/cspgen/internal/resource"
	consts "github.com/khanhnv2901/cspgen/internal/shared/constants"
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Defaults DefaultValues
	Scan     ScanRuntimeConfig
	Policy   PolicyRuntimeConfig
	Serve    ServeRuntimeConfig
}

// DefaultValues represent operator-level defaults, typically derived from env/config.
type DefaultValues struct {
	TelemetryEnabled bool
}

// ScanRuntimeConfig consolidates settings for commands that walk a directory.
type ScanRuntimeConfig struct {
	Host       string
	Workers    int
	Extensions []string
	Malformed  resource.MalformedPolicy
}

// PolicyRuntimeConfig holds policy generation defaults.
type PolicyRuntimeConfig struct {
	Dialect       policy.Dialect
	Selection     policy.Selection
	ReportURI     string
	StrictSources bool
}

// ServeRuntimeConfig holds API server defaults.
type ServeRuntimeConfig struct {
	Addr      string
	Root      string
	AuthToken string
	RateLimit int
	RateBurst int
}

type defaultOverrides struct {
	TelemetryEnabled *bool
	Host             string
	Workers          *int
	Extensions       []string
	Malformed        string
	Dialect          string
	Selection        string
	ReportURI        string
	StrictSources    *bool
	ServeAddr        string
	ServeRoot        string
	AuthToken        string
	RateLimit        *int
	RateBurst        *int
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Defaults: DefaultValues{
			TelemetryEnabled: false,
		},
		Scan: ScanRuntimeConfig{
			Workers:    consts.DefaultWorkers,
			Extensions: append([]string(nil), resource.DefaultExtensions...),
			Malformed:  resource.MalformedExternal,
		},
		Policy: PolicyRuntimeConfig{
			Dialect:       policy.DialectApache,
			Selection:     policy.SelectLocal,
			ReportURI:     policy.DefaultReportURI,
			StrictSources: true,
		},
		Serve: ServeRuntimeConfig{
			Addr:      "127.0.0.1:8080",
			RateLimit: 10,
			RateBurst: 20,
		},
	}
}

func loadDefaultOverrides() defaultOverrides {
	overrides := defaultOverrides{}

	if viper.IsSet("defaults.telemetry") {
		val := viper.GetBool("defaults.telemetry")
		overrides.TelemetryEnabled = &val
	}

	overrides.Host = viper.GetString("scan.host")
	if viper.IsSet("scan.workers") {
		val := viper.GetInt("scan.workers")
		overrides.Workers = &val
	}
	if viper.IsSet("scan.extensions") {
		overrides.Extensions = viper.GetStringSlice("scan.extensions")
	}
	overrides.Malformed = viper.GetString("scan.malformed_urls")

	overrides.Dialect = viper.GetString("policy.dialect")
	overrides.Selection = viper.GetString("policy.selection")
	overrides.ReportURI = viper.GetString("policy.report_uri")
	if viper.IsSet("policy.strict_sources") {
		val := viper.GetBool("policy.strict_sources")
		overrides.StrictSources = &val
	}

	overrides.ServeAddr = viper.GetString("serve.addr")
	overrides.ServeRoot = viper.GetString("serve.root")
	overrides.AuthToken = viper.GetString("serve.auth_token")
	if viper.IsSet("serve.rate_limit") {
		val := viper.GetInt("serve.rate_limit")
		overrides.RateLimit = &val
	}
	if viper.IsSet("serve.rate_burst") {
		val := viper.GetInt("serve.rate_burst")
		overrides.RateBurst = &val
	}

	return overrides
}

// applyConfigDefaults merges config file and environment defaults into the runtime
// config and into the running command's flags, unless the user set those flags
// explicitly.
func applyConfigDefaults(cmd *cobra.Command) error {
	overrides := loadDefaultOverrides()
	flags := cmd.Flags()

	if overrides.TelemetryEnabled != nil {
		applyBoolDefault(flags, "telemetry", *overrides.TelemetryEnabled, func(v bool) {
			cliConfig.Defaults.TelemetryEnabled = v
			setStringFlagIfUnset(flags, "telemetry", strconv.FormatBool(v))
		})
	}

	if overrides.Host != "" {
		cliConfig.Scan.Host = overrides.Host
		setStringFlagIfUnset(flags, "host", overrides.Host)
	}
	if overrides.Workers != nil {
		if *overrides.Workers < 0 || *overrides.Workers > consts.MaxWorkers {
			return fmt.Errorf("invalid config value scan.workers=%d: must be between 0 and %d", *overrides.Workers, consts.MaxWorkers)
		}
		applyIntDefault(flags, "workers", *overrides.Workers, func(v int) {
			cliConfig.Scan.Workers = v
			setStringFlagIfUnset(flags, "workers", strconv.Itoa(v))
		})
	}
	if len(overrides.Extensions) > 0 {
		cliConfig.Scan.Extensions = overrides.Extensions
		setStringFlagIfUnset(flags, "ext", strings.Join(overrides.Extensions, ","))
	}
	if overrides.Malformed != "" {
		mode, err := resource.ParseMalformedPolicy(overrides.Malformed)
		if err != nil {
			return fmt.Errorf("invalid config value scan.malformed_urls: %w", err)
		}
		cliConfig.Scan.Malformed = mode
		setStringFlagIfUnset(flags, "malformed-urls", mode.String())
	}

	if overrides.Dialect != "" {
		dialect, err := policy.ParseDialect(overrides.Dialect)
		if err != nil {
			return fmt.Errorf("invalid config value policy.dialect: %w", err)
		}
		cliConfig.Policy.Dialect = dialect
		setStringFlagIfUnset(flags, "dialect", string(dialect))
	}
	if overrides.Selection != "" {
		sel, err := policy.ParseSelection(overrides.Selection)
		if err != nil {
			return fmt.Errorf("invalid config value policy.selection: %w", err)
		}
		cliConfig.Policy.Selection = sel
		setStringFlagIfUnset(flags, "select", string(sel))
	}
	if overrides.ReportURI != "" {
		cliConfig.Policy.ReportURI = overrides.ReportURI
		setStringFlagIfUnset(flags, "report-uri", overrides.ReportURI)
	}
	if overrides.StrictSources != nil {
		applyBoolDefault(flags, "strict-sources", *overrides.StrictSources, func(v bool) {
			cliConfig.Policy.StrictSources = v
			setStringFlagIfUnset(flags, "strict-sources", strconv.FormatBool(v))
		})
	}

	if overrides.ServeAddr != "" {
		cliConfig.Serve.Addr = overrides.ServeAddr
		setStringFlagIfUnset(flags, "addr", overrides.ServeAddr)
	}
	if overrides.ServeRoot != "" {
		cliConfig.Serve.Root = overrides.ServeRoot
		setStringFlagIfUnset(flags, "root", overrides.ServeRoot)
	}
	if overrides.AuthToken != "" {
		cliConfig.Serve.AuthToken = overrides.AuthToken
		setStringFlagIfUnset(flags, "auth-token", overrides.AuthToken)
	}
	if overrides.RateLimit != nil {
		applyIntDefault(flags, "rate-limit", *overrides.RateLimit, func(v int) {
			cliConfig.Serve.RateLimit = v
			setStringFlagIfUnset(flags, "rate-limit", strconv.Itoa(v))
		})
	}
	if overrides.RateBurst != nil {
		applyIntDefault(flags, "rate-burst", *overrides.RateBurst, func(v int) {
			cliConfig.Serve.RateBurst = v
			setStringFlagIfUnset(flags, "rate-burst", strconv.Itoa(v))
		})
	}

	return nil
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}
