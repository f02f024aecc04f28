package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/torosent/barrage/internal/metrics"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, s metrics.Summary) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if s.Cancelled {
		fmt.Fprintln(w, "Run was interrupted; results are partial.")
	}
	fmt.Fprintf(w, "Target:            %s\n", s.Target)
	fmt.Fprintf(w, "Requested:         %d\n", s.TotalRequests)
	fmt.Fprintf(w, "Dispatched:        %d\n", s.Dispatched)
	if s.Undelivered > 0 {
		fmt.Fprintf(w, "Undelivered:       %d\n", s.Undelivered)
	}
	fmt.Fprintf(w, "Workers:           %d\n", s.Workers)
	fmt.Fprintf(w, "Successful:        %d\n", s.Success)
	fmt.Fprintf(w, "Failed:            %d\n", s.Failed)
	fmt.Fprintf(w, "Duration:          %s\n", s.Duration)
	fmt.Fprintf(w, "Average RPS:       %d\n", s.AverageRPS)
	fmt.Fprintf(w, "Peak RPS:          %d\n", s.PeakRPS)
	fmt.Fprintf(w, "Success Rate:      %.2f%%\n", s.SuccessRate)
	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", s.Latency.Min)
	fmt.Fprintf(w, "  Max:             %s\n", s.Latency.Max)
	fmt.Fprintf(w, "  Mean:            %s\n", s.Latency.Mean)
	fmt.Fprintf(w, "  P50:             %s\n", s.Latency.P50)
	fmt.Fprintf(w, "  P90:             %s\n", s.Latency.P90)
	fmt.Fprintf(w, "  P95:             %s\n", s.Latency.P95)
	fmt.Fprintf(w, "  P99:             %s\n", s.Latency.P99)
	if !s.Cancelled {
		fmt.Fprintf(w, "\nRating:            %s\n", Rating(s.AverageRPS))
	}
}

// Rating names the performance tier for an average throughput.
func Rating(avgRPS int64) string {
	switch {
	case avgRPS > 15000:
		return "godlike"
	case avgRPS > 10000:
		return "legendary"
	case avgRPS > 5000:
		return "epic"
	case avgRPS > 2000:
		return "excellent"
	default:
		return "good"
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, s metrics.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, s metrics.Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}
