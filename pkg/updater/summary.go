package updater

import (
	"fmt"
	"time"
)

// Outcome is what happened to a single row
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeInvalid
	OutcomeFailed
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeFailed:
		return "failed"
	case OutcomeUpdated:
		return "updated"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// RowResult is reported for every row read from the input
type RowResult struct {
	ID      string
	Line    int
	Outcome Outcome
	Err     error
}

// Summary counts row outcomes for one run
type Summary struct {
	RunID   string
	Target  string
	Total   int
	Updated int
	Skipped int
	Invalid int
	Failed  int

	// ResumedFrom is the checkpoint id found at start, if any
	ResumedFrom string
	// ResumeMissed is true when ResumedFrom was not present in the input
	ResumeMissed bool
	// Checkpoint is the id on disk when the run ended
	Checkpoint string
	// CheckpointHeld is true when the hold policy froze the checkpoint
	CheckpointHeld bool
	// Interrupted is true when the run stopped on context cancellation
	Interrupted bool

	StartedAt time.Time
	Duration  time.Duration
}

// finish stamps the elapsed time since StartedAt.
func (s *Summary) finish() {
	s.Duration = time.Since(s.StartedAt)
}

func (s *Summary) record(o Outcome) {
	s.Total++
	switch o {
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeInvalid:
		s.Invalid++
	case OutcomeFailed:
		s.Failed++
	case OutcomeUpdated:
		s.Updated++
	}
}

// Problems returns the number of rows that need attention
func (s *Summary) Problems() int {
	return s.Invalid + s.Failed
}

// Fields returns the counts as log fields
func (s *Summary) Fields() map[string]interface{} {
	return map[string]interface{}{
		"run_id":      s.RunID,
		"target":      s.Target,
		"total":       s.Total,
		"updated":     s.Updated,
		"skipped":     s.Skipped,
		"invalid":     s.Invalid,
		"failed":      s.Failed,
		"checkpoint":  s.Checkpoint,
		"duration_ms": s.Duration.Milliseconds(),
	}
}
