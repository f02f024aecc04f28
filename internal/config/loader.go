package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files, flags and positional arguments.
type Loader struct {
	out io.Writer
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// ErrUsage marks malformed command-line input. The caller prints usage and exits 1.
var ErrUsage = errors.New("invalid usage")

// NewLoader creates a new configuration Loader that prints help to stdout.
func NewLoader() *Loader {
	return &Loader{out: os.Stdout}
}

// NewLoaderWithOutput creates a Loader that prints help to w.
func NewLoaderWithOutput(w io.Writer) *Loader {
	return &Loader{out: w}
}

// Load parses command-line arguments and the optional configuration file.
// Precedence, lowest first: defaults, config file, flags, positional arguments.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand(l.out)
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: missing arguments", ErrUsage)
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	if err := applyPositionalArgs(cfg, flagSet.Args()); err != nil {
		return nil, err
	}

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(string(cfg.Output))))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))

	return cfg, nil
}

// applyPositionalArgs maps `<url> <totalRequests> <delayMillis> [workers]`.
func applyPositionalArgs(cfg *Config, args []string) error {
	if len(args) > 4 {
		return fmt.Errorf("%w: expected at most 4 arguments, got %d", ErrUsage, len(args))
	}
	if len(args) > 0 {
		cfg.TargetURL = args[0]
	}
	if len(args) > 1 {
		total, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil {
			return fmt.Errorf("%w: totalRequests %q is not an integer", ErrUsage, args[1])
		}
		cfg.Total = total
	}
	if len(args) > 2 {
		ms, err := strconv.Atoi(strings.TrimSpace(args[2]))
		if err != nil {
			return fmt.Errorf("%w: delayMillis %q is not an integer", ErrUsage, args[2])
		}
		cfg.Delay = millis(ms)
	}
	if len(args) > 3 {
		workers, err := strconv.Atoi(strings.TrimSpace(args[3]))
		if err != nil {
			return fmt.Errorf("%w: workers %q is not an integer", ErrUsage, args[3])
		}
		cfg.Workers = workers
	}
	return nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "target", "url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = strings.TrimSpace(val)
	}

	ints := []struct {
		dst  *int
		name string
		keys []string
	}{
		{&cfg.Total, "total", []string{"total", "total_requests"}},
		{&cfg.Workers, "workers", []string{"workers"}},
		{&cfg.MaxConnsPerHost, "max_conns_per_host", []string{"max_conns_per_host", "maxconnsperhost"}},
		{&cfg.MaxIdleConnsPerHost, "max_idle_conns_per_host", []string{"max_idle_conns_per_host", "maxidleconnsperhost"}},
		{&cfg.MaxRedirects, "max_redirects", []string{"max_redirects", "maxredirects"}},
	}
	for _, field := range ints {
		raw, ok := lookupSetting(settings, field.keys...)
		if !ok {
			continue
		}
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = val
	}

	if raw, ok := lookupSetting(settings, "delay"); ok {
		dur, err := asMillis(raw)
		if err != nil {
			return fmt.Errorf("delay: %w", err)
		}
		cfg.Delay = dur
	}

	durations := []struct {
		dst  *time.Duration
		name string
		keys []string
	}{
		{&cfg.Timeout, "timeout", []string{"timeout"}},
		{&cfg.KeepAlive, "keep_alive", []string{"keep_alive", "keepalive"}},
		{&cfg.SettleDelay, "settle_delay", []string{"settle_delay", "settledelay"}},
		{&cfg.RefreshInterval, "refresh_interval", []string{"refresh_interval", "refreshinterval"}},
	}
	for _, field := range durations {
		raw, ok := lookupSetting(settings, field.keys...)
		if !ok {
			continue
		}
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = dur
	}

	bools := []struct {
		dst  *bool
		name string
		keys []string
	}{
		{&cfg.Dashboard, "dashboard", []string{"dashboard"}},
		{&cfg.Quiet, "quiet", []string{"quiet"}},
		{&cfg.LogErrors, "log_errors", []string{"log_errors", "logerrors"}},
	}
	for _, field := range bools {
		raw, ok := lookupSetting(settings, field.keys...)
		if !ok {
			continue
		}
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = val
	}

	strs := []struct {
		dst  *string
		name string
		keys []string
	}{
		{&cfg.LogLevel, "log_level", []string{"log_level", "loglevel"}},
		{&cfg.LogFormat, "log_format", []string{"log_format", "logformat"}},
	}
	for _, field := range strs {
		raw, ok := lookupSetting(settings, field.keys...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyTracingSettings(t *TracingConfig, raw interface{}) error {
	settings, err := toStringKeyMap(raw)
	if err != nil {
		return err
	}

	if v, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
		t.Endpoint = strings.TrimSpace(val)
	}
	if v, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
		t.Protocol = val
	}
	if v, ok := lookupSetting(settings, "service_name", "servicename"); ok {
		val, err := asString(v)
		if err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
		t.ServiceName = val
	}
	if v, ok := lookupSetting(settings, "sample_rate", "samplerate"); ok {
		val, err := asFloat64(v)
		if err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
		t.SampleRate = val
	}
	if v, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(v)
		if err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
		t.Insecure = val
	}
	if v, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(v)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = val
	}
	return nil
}
