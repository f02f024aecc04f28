package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/torosent/barrage/internal/logging"
	"github.com/torosent/barrage/internal/threshold"
)

// Defaults applied before the config file, flags and arguments.
const (
	DefaultTimeout             = 15 * time.Second
	DefaultMaxConnsPerHost     = 100
	DefaultMaxIdleConnsPerHost = 20
	DefaultKeepAlive           = time.Second
	DefaultMaxRedirects        = 3
	DefaultSettleDelay         = 3 * time.Second
	DefaultRefreshInterval     = 50 * time.Millisecond
	DefaultSampleRate          = 1.0

	// highWorkerCount triggers an authorization reminder on stderr.
	highWorkerCount = 500
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

type Config struct {
	TargetURL           string        `mapstructure:"target"`
	Total               int           `mapstructure:"total"`
	Delay               time.Duration `mapstructure:"delay"`
	Workers             int           `mapstructure:"workers"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
	MaxRedirects        int           `mapstructure:"max_redirects"`
	SettleDelay         time.Duration `mapstructure:"settle_delay"`
	RefreshInterval     time.Duration `mapstructure:"refresh_interval"`
	Output              OutputFormat  `mapstructure:"output"`
	Dashboard           bool          `mapstructure:"dashboard"`
	Quiet               bool          `mapstructure:"quiet"`
	LogErrors           bool          `mapstructure:"log_errors"`
	LogLevel            string        `mapstructure:"log_level"`
	LogFormat           string        `mapstructure:"log_format"`
	Thresholds          []string      `mapstructure:"thresholds"`
	Tracing             TracingConfig `mapstructure:"tracing"`
	ConfigFile          string        `mapstructure:"-"`
}

// TracingConfig configures optional OTLP export of per-request client spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" (default) or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether W3C trace headers go out with each request.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Enabled() && t.Propagate
}

// defaults returns a Config populated with every default value.
func defaults() *Config {
	return &Config{
		Timeout:             DefaultTimeout,
		MaxConnsPerHost:     DefaultMaxConnsPerHost,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		KeepAlive:           DefaultKeepAlive,
		MaxRedirects:        DefaultMaxRedirects,
		SettleDelay:         DefaultSettleDelay,
		RefreshInterval:     DefaultRefreshInterval,
		Output:              OutputText,
		LogLevel:            "info",
		LogFormat:           logging.FormatText,
		Tracing: TracingConfig{
			SampleRate: DefaultSampleRate,
			Propagate:  true,
		},
	}
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	issues = append(issues, validateTarget(c.TargetURL)...)

	if c.Workers > highWorkerCount {
		fmt.Fprintf(os.Stderr, "WARNING: High worker count configured (%d workers). Ensure you have authorization to test the target system.\n", c.Workers)
	}

	if c.Total <= 0 {
		issues = append(issues, "total requests must be > 0")
	}
	if c.Delay < 0 {
		issues = append(issues, "delay must be >= 0")
	}
	if c.Workers < 0 {
		issues = append(issues, "workers must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.MaxConnsPerHost < 0 {
		issues = append(issues, "max_conns_per_host must be >= 0")
	}
	if c.MaxIdleConnsPerHost < 0 {
		issues = append(issues, "max_idle_conns_per_host must be >= 0")
	}
	if c.KeepAlive < 0 {
		issues = append(issues, "keep_alive must be >= 0")
	}
	if c.MaxRedirects < 0 {
		issues = append(issues, "max_redirects must be >= 0")
	}
	if c.SettleDelay < 0 {
		issues = append(issues, "settle_delay must be >= 0")
	}
	if c.RefreshInterval <= 0 {
		issues = append(issues, "refresh_interval must be > 0")
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be 'text', 'json' or 'yaml', got %q", c.Output))
	}
	if c.Dashboard && c.Output != OutputText {
		issues = append(issues, fmt.Sprintf("dashboard and %s output are mutually exclusive", c.Output))
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, err.Error())
	}
	switch strings.ToLower(c.LogFormat) {
	case logging.FormatText, logging.FormatJSON:
	default:
		issues = append(issues, fmt.Sprintf("log format must be 'text' or 'json', got %q", c.LogFormat))
	}

	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}

	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTarget(target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return []string{"target is required (use --help for usage information)"}
	}
	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return []string{fmt.Sprintf("target %q must begin with http:// or https://", target)}
	}
	u, err := url.Parse(target)
	if err != nil {
		return []string{fmt.Sprintf("target %q is not a valid URL: %v", target, err)}
	}
	if u.Host == "" {
		return []string{fmt.Sprintf("target %q has no host", target)}
	}
	return nil
}

func validateTracing(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
