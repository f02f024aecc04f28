package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const usageLine = "barrage [flags] <url> <totalRequests> <delayMillis> [workers]"

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           usageLine,
		Short:         "Fixed-volume HTTP GET load generator",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(out)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Mission flags; positional arguments take precedence.
	flags.String("target", "", "Target URL (http:// or https://)")
	flags.IntP("total", "n", 0, "Total number of requests to send")
	flags.Int("delay", 0, "Delay between requests of a worker in milliseconds")
	flags.IntP("workers", "w", 0, "Number of workers (0 picks the optimal count for this host)")

	// Connection flags
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Int("max-conns-per-host", DefaultMaxConnsPerHost, "Connection limit per worker")
	flags.Int("max-idle-conns-per-host", DefaultMaxIdleConnsPerHost, "Idle connection limit per worker")
	flags.Duration("keep-alive", DefaultKeepAlive, "TCP keep-alive interval")
	flags.Int("max-redirects", DefaultMaxRedirects, "Redirects followed per request")

	// Run control flags
	flags.Duration("settle-delay", DefaultSettleDelay, "Pause between all workers ready and start")
	flags.Duration("refresh-interval", DefaultRefreshInterval, "Live statistics refresh interval")

	// Output flags
	flags.StringP("output", "o", string(OutputText), "Report format: text, json or yaml")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.BoolP("quiet", "q", false, "Suppress banners and live progress")
	flags.Bool("log-errors", false, "Log failed requests at warn level")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Performance thresholds (repeatable, e.g., 'http_req_duration:p95 < 500')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", DefaultSampleRate, "Fraction of requests traced (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS to the OTLP collector")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context headers into requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// PrintUsage writes the usage text to w.
func PrintUsage(w io.Writer) {
	displayHelp(newFlagCommand(w))
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("target") {
		val, err := fs.GetString("target")
		if err != nil {
			return err
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}
	if fs.Changed("delay") {
		val, err := fs.GetInt("delay")
		if err != nil {
			return err
		}
		cfg.Delay = millis(val)
	}

	ints := map[string]*int{
		"total":                   &cfg.Total,
		"workers":                 &cfg.Workers,
		"max-conns-per-host":      &cfg.MaxConnsPerHost,
		"max-idle-conns-per-host": &cfg.MaxIdleConnsPerHost,
		"max-redirects":           &cfg.MaxRedirects,
	}
	for name, dst := range ints {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	durations := map[string]*time.Duration{
		"timeout":          &cfg.Timeout,
		"keep-alive":       &cfg.KeepAlive,
		"settle-delay":     &cfg.SettleDelay,
		"refresh-interval": &cfg.RefreshInterval,
	}
	for name, dst := range durations {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetDuration(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	bools := map[string]*bool{
		"dashboard":         &cfg.Dashboard,
		"quiet":             &cfg.Quiet,
		"log-errors":        &cfg.LogErrors,
		"tracing-insecure":  &cfg.Tracing.Insecure,
		"tracing-propagate": &cfg.Tracing.Propagate,
	}
	for name, dst := range bools {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	strs := map[string]*string{
		"log-level":            &cfg.LogLevel,
		"log-format":           &cfg.LogFormat,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(val)
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	return nil
}
