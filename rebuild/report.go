package rebuild

import (
	"fmt"
	"io"
	"time"

	"github.com/restitch/restitch/internal"
)

// WriteReport renders the human-readable recovery summary: totals, chain
// lengths and the exact byte ranges that could not be located.
func WriteReport(w io.Writer, res *Result) error {
	pct := 0.0
	if res.TotalBytes > 0 {
		pct = float64(res.RecoveredBytes) * 100 / float64(res.TotalBytes)
	}
	_, err := fmt.Fprintf(w, "session:    %s\n", res.SessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "total:      %s\n", internal.FormatBytes(uint64(res.TotalBytes)))
	fmt.Fprintf(w, "recovered:  %s (%.2f%%)\n", internal.FormatBytes(uint64(res.RecoveredBytes)), pct)
	fmt.Fprintf(w, "reads:      %d sectors, %d unreadable\n", res.SectorsRead, res.UnreadableSectors)
	fmt.Fprintf(w, "elapsed:    %s\n", res.Elapsed.Round(time.Millisecond))
	if res.Interrupted {
		fmt.Fprintln(w, "status:     interrupted (partial result)")
	}
	fmt.Fprintf(w, "chains:     %d", len(res.Chains))
	for i, c := range res.Chains {
		if i == 0 {
			fmt.Fprint(w, " (lengths:")
		}
		fmt.Fprintf(w, " %d", c)
		if i == len(res.Chains)-1 {
			fmt.Fprint(w, ")")
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "gaps:       %d\n", len(res.GapRanges))
	for _, g := range res.GapRanges {
		fmt.Fprintf(w, "  0x%012x - 0x%012x (%s)\n", g.Start, g.End, internal.FormatBytes(uint64(g.End-g.Start)))
	}
	return nil
}
