package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"topicsync/pkg/updater"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker counts row outcomes as the driver reports them and renders
// a one-line progress status.
type StatusTracker struct {
	mu        sync.Mutex
	counts    map[updater.Outcome]int
	lastID    string
	StartTime time.Time
}

// NewStatusTracker creates a new status tracker
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		counts:    make(map[updater.Outcome]int),
		StartTime: time.Now(),
	}
}

// Record adds one row result
func (st *StatusTracker) Record(r updater.RowResult) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.counts[r.Outcome]++
	st.lastID = r.ID
}

// Count returns how many rows ended with outcome o
func (st *StatusTracker) Count(o updater.Outcome) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.counts[o]
}

// Processed returns the number of rows seen so far
func (st *StatusTracker) Processed() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	total := 0
	for _, n := range st.counts {
		total += n
	}
	return total
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// GetUpdateRate returns the average number of updated rows per minute
func (st *StatusTracker) GetUpdateRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(st.Count(updater.OutcomeUpdated)) / elapsed
}

// ProgressBar renders the share of processed rows that were updated
func (st *StatusTracker) ProgressBar(width int) string {
	processed := st.Processed()
	filled := 0
	if processed > 0 {
		filled = st.Count(updater.OutcomeUpdated) * width / processed
	}
	return strings.Repeat(ProgressBar, filled) + strings.Repeat(ProgressEmpty, width-filled)
}

// Line renders the current status without a trailing newline
func (st *StatusTracker) Line() string {
	st.mu.Lock()
	lastID := st.lastID
	st.mu.Unlock()

	return fmt.Sprintf("[%s] updated %d | skipped %d | invalid %d | failed %d | last %s",
		st.ProgressBar(20),
		st.Count(updater.OutcomeUpdated),
		st.Count(updater.OutcomeSkipped),
		st.Count(updater.OutcomeInvalid),
		st.Count(updater.OutcomeFailed),
		lastID)
}

// PrintProgress rewrites the status line on the console
func (st *StatusTracker) PrintProgress(c *Console) {
	if c.Quiet {
		return
	}
	fmt.Fprintf(c.w, "\r%s %s", c.paint(Green, "[SYNC]"), st.Line())
}
