package output

import (
	"fmt"
	"io"

	"github.com/torosent/barrage/internal/threshold"
)

// PrintThresholds lists each threshold result and returns the number that failed.
func PrintThresholds(w io.Writer, results []threshold.Result) int {
	if len(results) == 0 {
		return 0
	}
	failed := 0
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		if !r.Pass {
			failed++
		}
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
	if failed > 0 {
		fmt.Fprintf(w, "\n%d of %d thresholds failed\n", failed, len(results))
	}
	return failed
}
