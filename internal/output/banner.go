package output

import (
	"fmt"
	"io"

	"github.com/torosent/barrage/internal/capacity"
	"github.com/torosent/barrage/internal/mission"
)

// PrintProfile outputs the host analysis used to size the worker pool.
func PrintProfile(w io.Writer, p capacity.Profile) {
	fmt.Fprintln(w, "--- System Analysis ---")
	fmt.Fprintf(w, "Total Memory:      %s\n", FormatBytes(p.TotalMemory))
	fmt.Fprintf(w, "Available Memory:  %s\n", FormatBytes(p.FreeMemory))
	fmt.Fprintf(w, "CPU Cores:         %d\n", p.CPUCores)
	fmt.Fprintf(w, "Optimal Workers:   %d\n", p.OptimalWorkers)
	fmt.Fprintf(w, "Max Safe Workers:  %d\n", p.MaxSafeWorkers)
}

// PrintMission outputs the resolved run configuration.
func PrintMission(w io.Writer, m mission.Config) {
	fmt.Fprintln(w, "\n--- Mission ---")
	fmt.Fprintf(w, "Run ID:            %s\n", m.RunID)
	fmt.Fprintf(w, "Target:            %s\n", m.TargetURL)
	fmt.Fprintf(w, "Total Requests:    %d\n", m.TotalRequests)
	fmt.Fprintf(w, "Delay:             %s\n", m.Delay)
	fmt.Fprintf(w, "Requested Workers: %s\n", requestedLabel(m.RequestedWorkers))
	fmt.Fprintf(w, "Workers:           %d\n", m.ActualWorkers)
	fmt.Fprintf(w, "Requests/Worker:   %d\n", m.RequestQuota())
	if m.Clamped {
		fmt.Fprintf(w, "Note:              requested %d workers, reduced to %d for stability\n", m.RequestedWorkers, m.ActualWorkers)
	}
	if m.Floored {
		fmt.Fprintln(w, "Note:              host reports no spare capacity, running a single worker")
	}
	if u := m.Undelivered(); u > 0 {
		fmt.Fprintf(w, "Undelivered:       %d (total is not divisible by workers)\n", u)
	}
	fmt.Fprintln(w)
}

func requestedLabel(n int) string {
	if n <= 0 {
		return "auto"
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes renders n using binary units.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
