package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers the configuration flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "courier",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all configuration flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (YAML, JSON or TOML)")

	// Connector flags
	flags.String("base-url", "", "Base URL every request endpoint is joined onto")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.StringSlice("query", nil, "Additional query parameter in key=value form")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Int("retries", 0, "Number of retries per request on transport errors and 5xx")
	flags.Int("rate-limit", 0, "Requests per second limit (0 means unlimited)")

	// Fixture flags
	flags.String("fixture-dir", DefaultFixtureDir, "Directory holding recorded fixtures")
	flags.Bool("record", false, "Record a live response when the fixture does not exist")

	// Tracing flags
	flags.String("trace-endpoint", "", "OTLP collector endpoint (tracing is off when empty)")
	flags.String("trace-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("trace-insecure", false, "Connect to the OTLP collector without TLS")

	// Logging flags
	flags.Bool("debug", false, "Log pending requests, mocked responses and transport failures")
	flags.String("log-format", "console", "Log format: 'console' or 'json'")
	flags.String("log-file", "", "Also write logs to this file, rotated by size")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("base-url") {
		val, err := fs.GetString("base-url")
		if err != nil {
			return err
		}
		cfg.Connector.BaseURL = strings.TrimSpace(val)
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Connector.Timeout = val
	}
	if fs.Changed("retries") {
		val, err := fs.GetInt("retries")
		if err != nil {
			return err
		}
		cfg.Connector.Retries = val
	}
	if fs.Changed("rate-limit") {
		val, err := fs.GetInt("rate-limit")
		if err != nil {
			return err
		}
		cfg.Connector.RateLimit = val
	}

	headers, err := parsePairs(fs, "header")
	if err != nil {
		return err
	}
	if cfg.Connector.Headers == nil {
		cfg.Connector.Headers = map[string]string{}
	}
	for key, value := range headers {
		cfg.Connector.Headers[http.CanonicalHeaderKey(key)] = value
	}
	query, err := parsePairs(fs, "query")
	if err != nil {
		return err
	}
	if cfg.Connector.Query == nil {
		cfg.Connector.Query = map[string]string{}
	}
	for key, value := range query {
		cfg.Connector.Query[key] = value
	}

	if fs.Changed("fixture-dir") {
		val, err := fs.GetString("fixture-dir")
		if err != nil {
			return err
		}
		cfg.Fixtures.Dir = strings.TrimSpace(val)
	}
	if fs.Changed("record") {
		val, err := fs.GetBool("record")
		if err != nil {
			return err
		}
		cfg.Fixtures.Record = val
	}

	if fs.Changed("trace-endpoint") {
		val, err := fs.GetString("trace-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("trace-protocol") {
		val, err := fs.GetString("trace-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("trace-insecure") {
		val, err := fs.GetBool("trace-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}

	if fs.Changed("debug") {
		val, err := fs.GetBool("debug")
		if err != nil {
			return err
		}
		cfg.Logging.Debug = val
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.Logging.Format = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("log-file") {
		val, err := fs.GetString("log-file")
		if err != nil {
			return err
		}
		cfg.Logging.File = strings.TrimSpace(val)
	}

	return nil
}

// parsePairs reads a repeatable key=value flag.
func parsePairs(fs *pflag.FlagSet, name string) (map[string]string, error) {
	vals, err := fs.GetStringSlice(name)
	if err != nil {
		return nil, err
	}
	pairs := make(map[string]string, len(vals))
	for _, entry := range vals {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("%s must be in key=value format: %s", name, entry)
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			return nil, fmt.Errorf("%s key cannot be empty", name)
		}
		pairs[key] = strings.TrimSpace(parts[1])
	}
	return pairs, nil
}
