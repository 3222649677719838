package ui

import (
	"fmt"
	"strings"
	"time"

	"topicsync/pkg/updater"
)

// PrintSummary prints the end-of-run report. It is printed even when quiet,
// since it is the only output of a quiet run.
func (c *Console) PrintSummary(s *updater.Summary) {
	if s == nil {
		return
	}

	fmt.Fprintln(c.w)
	fmt.Fprintln(c.w, c.paint(Cyan, strings.Repeat("─", 44)))
	fmt.Fprintf(c.w, "%-14s %s\n", "Run:", s.RunID)
	fmt.Fprintf(c.w, "%-14s %s\n", "Target:", s.Target)
	if s.ResumedFrom != "" {
		resumed := s.ResumedFrom
		if s.ResumeMissed {
			resumed += c.paint(Yellow, " (not found in input, started from the top)")
		}
		fmt.Fprintf(c.w, "%-14s %s\n", "Resumed from:", resumed)
	}
	fmt.Fprintf(c.w, "%-14s %d\n", "Rows:", s.Total)
	fmt.Fprintf(c.w, "%-14s %s\n", "Updated:", c.paint(Green, fmt.Sprint(s.Updated)))
	fmt.Fprintf(c.w, "%-14s %s\n", "Skipped:", c.paint(Dim, fmt.Sprint(s.Skipped)))
	fmt.Fprintf(c.w, "%-14s %s\n", "Invalid:", c.countColor(s.Invalid, Yellow))
	fmt.Fprintf(c.w, "%-14s %s\n", "Failed:", c.countColor(s.Failed, Red))

	checkpoint := s.Checkpoint
	if checkpoint == "" {
		checkpoint = "(none)"
	}
	if s.CheckpointHeld {
		checkpoint += c.paint(Yellow, " (held after first problem row)")
	}
	fmt.Fprintf(c.w, "%-14s %s\n", "Checkpoint:", checkpoint)
	fmt.Fprintf(c.w, "%-14s %s\n", "Duration:", s.Duration.Round(time.Millisecond))

	if s.Interrupted {
		fmt.Fprintln(c.w, c.paint(Yellow, "Interrupted. Run the same command again to resume."))
	} else if s.Problems() > 0 {
		fmt.Fprintln(c.w, c.paint(Yellow, fmt.Sprintf("%d rows need attention, see the log for details.", s.Problems())))
	}
	fmt.Fprintln(c.w, c.paint(Cyan, strings.Repeat("─", 44)))
}

func (c *Console) countColor(n int, color func(string) string) string {
	if n == 0 {
		return fmt.Sprint(n)
	}
	return c.paint(color, fmt.Sprint(n))
}
