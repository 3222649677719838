package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"topicsync/pkg/checkpoint"
	"topicsync/pkg/config"
	"topicsync/pkg/csvinput"
	errs "topicsync/pkg/errors"
	"topicsync/pkg/listparse"
	"topicsync/pkg/logger"
	"topicsync/pkg/target"
)

// Options configures a Driver
type Options struct {
	InputPath string
	Columns   csvinput.Columns
	Target    target.Target
	// HoldOnFailure stops the checkpoint from moving after the first
	// invalid or failed row of the run.
	HoldOnFailure bool
	// RunID tags every log line; a random UUID is used when empty.
	RunID string
	// OnRow is called after every row, in file order.
	OnRow func(RowResult)
}

// Driver walks the input file in order and applies each row remotely,
// advancing the checkpoint after every confirmed write.
type Driver struct {
	remote RemoteUpdater
	store  CheckpointStore
	opts   Options
	logger logger.Logger
}

// New creates a Driver
func New(remote RemoteUpdater, store CheckpointStore, opts Options, log logger.Logger) (*Driver, error) {
	if remote == nil {
		return nil, errors.New("remote updater is required")
	}
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if opts.InputPath == "" {
		return nil, errors.New("input path is required")
	}
	if opts.Target.IsZero() {
		return nil, errors.New("update target is required")
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Driver{remote: remote, store: store, opts: opts, logger: log}, nil
}

// OptionsFromConfig builds driver options from a validated configuration
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	tgt, err := cfg.ResolveTarget()
	if err != nil {
		return Options{}, err
	}
	return Options{
		InputPath:     cfg.Input.Path,
		Columns:       csvinput.Columns{ID: cfg.Input.IDColumn, Value: cfg.Input.ValueColumn},
		Target:        tgt,
		HoldOnFailure: cfg.HoldCheckpointOnFailure(),
	}, nil
}

// runState is the mutable state of one Run
type runState struct {
	log         logger.Logger
	summary     *Summary
	skipThrough int
	held        bool
}

// Run processes the input once. Per-row problems are logged and counted;
// only an unreadable checkpoint, an unreadable input or a failed checkpoint
// save end the run with an error. On cancellation the summary so far is
// returned together with ctx.Err().
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	runID := d.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	summary := &Summary{
		RunID:     runID,
		Target:    d.opts.Target.String(),
		StartedAt: time.Now(),
	}
	defer summary.finish()

	log := d.logger.WithFields(map[string]interface{}{
		"run_id": runID,
		"target": summary.Target,
	})
	logger.LogComponentStart(log, "updater", map[string]interface{}{
		"input":      d.opts.InputPath,
		"checkpoint": d.store.Path(),
		"on_failure": d.policyName(),
	})

	state := &runState{log: log, summary: summary, skipThrough: -1}

	if err := d.resume(state); err != nil {
		return summary, err
	}

	reader, err := csvinput.Open(d.opts.InputPath, d.opts.Columns)
	if err != nil {
		log.WithError(err).Error("Cannot open input")
		return summary, fmt.Errorf("open input: %w", err)
	}
	defer reader.Close()

	for {
		if err := ctx.Err(); err != nil {
			return d.interrupted(state, err)
		}

		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.WithError(err).Error("Cannot read input")
			return summary, fmt.Errorf("read input: %w", err)
		}

		result, err := d.processRow(ctx, state, row)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return d.interrupted(state, ctxErr)
			}
			if result.Outcome == OutcomeUpdated {
				// The write went through before the run had to stop.
				d.report(summary, result)
			}
			return summary, err
		}
		d.report(summary, result)
	}

	summary.finish()
	log.InfoWithFields("Run complete", summary.Fields())
	return summary, nil
}

// resume loads the checkpoint and finds its position in the input.
func (d *Driver) resume(state *runState) error {
	log := state.log

	lastID, ok, err := d.store.Load()
	if err != nil {
		log.WithError(err).Error("Cannot read checkpoint, aborting before any row is processed")
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		log.Info("No checkpoint found, processing every row")
		return nil
	}

	state.summary.ResumedFrom = lastID
	state.summary.Checkpoint = lastID

	index, found, err := csvinput.Locate(d.opts.InputPath, d.opts.Columns, lastID)
	if err != nil {
		log.WithError(err).Error("Cannot read input")
		return fmt.Errorf("locate checkpoint in input: %w", err)
	}
	if !found {
		state.summary.ResumeMissed = true
		log.WarnWithFields("Checkpoint id not found in input, processing every row", map[string]interface{}{
			"checkpoint": lastID,
		})
		return nil
	}

	state.skipThrough = index
	log.InfoWithFields("Resuming after checkpoint", map[string]interface{}{
		"checkpoint": lastID,
		"skip_rows":  index + 1,
	})
	return nil
}

// processRow returns an error only when the run must stop.
func (d *Driver) processRow(ctx context.Context, state *runState, row csvinput.Row) (RowResult, error) {
	result := RowResult{ID: row.ID, Line: row.Line}
	log := state.log.WithFields(map[string]interface{}{
		"row_id": row.ID,
		"line":   row.Line,
	})

	if row.Index <= state.skipThrough {
		log.Debug("Skipping row at or before checkpoint")
		result.Outcome = OutcomeSkipped
		return result, nil
	}

	if row.ID == "" {
		result.Outcome = OutcomeInvalid
		result.Err = errors.New("row has no id")
		log.Warn("Skipping row without id")
		d.hold(state, row)
		return result, nil
	}

	if err := checkpoint.ValidID(row.ID); err != nil {
		result.Outcome = OutcomeInvalid
		result.Err = err
		log.WithError(err).Warn("Skipping row with an id that cannot be checkpointed")
		d.hold(state, row)
		return result, nil
	}

	values, err := listparse.Parse(row.RawValue)
	if err != nil {
		result.Outcome = OutcomeInvalid
		result.Err = err
		log.WithError(err).Warn("Skipping row with invalid list value")
		d.hold(state, row)
		return result, nil
	}

	if err := d.remote.Update(ctx, d.opts.Target, row.ID, values); err != nil {
		if ctx.Err() != nil {
			return result, err
		}
		result.Outcome = OutcomeFailed
		result.Err = err
		log.WithError(err).ErrorWithFields("Remote update failed", map[string]interface{}{
			"error_type": string(errs.TypeOf(err)),
		})
		d.hold(state, row)
		return result, nil
	}

	result.Outcome = OutcomeUpdated

	if state.held {
		log.InfoWithFields("Row updated, checkpoint held", map[string]interface{}{
			"values": len(values),
		})
		return result, nil
	}

	if err := d.store.Save(row.ID); err != nil {
		log.WithError(err).Error("Cannot save checkpoint, stopping")
		return result, fmt.Errorf("save checkpoint after row %q: %w", row.ID, err)
	}
	state.summary.Checkpoint = row.ID

	log.InfoWithFields("Row updated", map[string]interface{}{
		"values": len(values),
	})
	return result, nil
}

func (d *Driver) hold(state *runState, row csvinput.Row) {
	if !d.opts.HoldOnFailure || state.held {
		return
	}
	state.held = true
	state.summary.CheckpointHeld = true
	state.log.WarnWithFields("Holding checkpoint for the rest of the run", map[string]interface{}{
		"row_id":     row.ID,
		"checkpoint": state.summary.Checkpoint,
	})
}

func (d *Driver) report(summary *Summary, result RowResult) {
	summary.record(result.Outcome)
	if d.opts.OnRow != nil {
		d.opts.OnRow(result)
	}
}

func (d *Driver) interrupted(state *runState, err error) (*Summary, error) {
	state.summary.Interrupted = true
	state.summary.finish()
	state.log.WarnWithFields("Run interrupted", state.summary.Fields())
	return state.summary, err
}

func (d *Driver) policyName() string {
	if d.opts.HoldOnFailure {
		return config.OnFailureHold
	}
	return config.OnFailureAdvance
}
