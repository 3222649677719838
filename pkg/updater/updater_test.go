package updater

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"topicsync/pkg/checkpoint"
	"topicsync/pkg/config"
	"topicsync/pkg/csvinput"
	errs "topicsync/pkg/errors"
	"topicsync/pkg/logger"
	"topicsync/pkg/retry"
	"topicsync/pkg/supabase"
	"topicsync/pkg/supabase/supabasetest"
	"topicsync/pkg/target"
)

type call struct {
	Target target.Target
	ID     string
	Values []string
}

// fakeRemote records every write and fails ids listed in failures.
type fakeRemote struct {
	mu       sync.Mutex
	calls    []call
	failures map[string]error
	onCall   func(id string) error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{failures: make(map[string]error)}
}

func (f *fakeRemote) Update(ctx context.Context, tgt target.Target, id string, values []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{Target: tgt, ID: id, Values: values})
	hook := f.onCall
	failure := f.failures[id]
	f.mu.Unlock()

	if hook != nil {
		if err := hook(id); err != nil {
			return err
		}
	}
	return failure
}

func (f *fakeRemote) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ids = append(ids, c.ID)
	}
	return ids
}

type fixture struct {
	dir            string
	inputPath      string
	checkpointPath string
	remote         *fakeRemote
	store          *checkpoint.Store
	log            *logger.TestLogger
}

func newFixture(t *testing.T, csv string) *fixture {
	t.Helper()
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "input.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte(csv), 0644))
	checkpointPath := filepath.Join(dir, "checkpoint.txt")
	log := logger.NewTestLogger()
	return &fixture{
		dir:            dir,
		inputPath:      inputPath,
		checkpointPath: checkpointPath,
		remote:         newFakeRemote(),
		store:          checkpoint.NewStore(checkpointPath, log),
		log:            log,
	}
}

func (f *fixture) options(mutate func(*Options)) Options {
	opts := Options{
		InputPath: f.inputPath,
		Target:    target.MustParse("categories", "topics"),
		RunID:     "test-run",
	}
	if mutate != nil {
		mutate(&opts)
	}
	return opts
}

func (f *fixture) run(t *testing.T, mutate func(*Options)) (*Summary, error) {
	t.Helper()
	d, err := New(f.remote, f.store, f.options(mutate), f.log)
	require.NoError(t, err)
	return d.Run(context.Background())
}

func (f *fixture) checkpoint(t *testing.T) (string, bool) {
	t.Helper()
	id, ok, err := f.store.Load()
	require.NoError(t, err)
	return id, ok
}

func (f *fixture) writeCheckpoint(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(f.checkpointPath, []byte(content), 0644))
}

const twoRows = "id,topics_list\n1,\"[\"\"a\"\",\"\"b\"\"]\"\n2,\"[\"\"c\"\"]\"\n"

func TestRunFreshStartWritesEveryRow(t *testing.T) {
	f := newFixture(t, twoRows)

	summary, err := f.run(t, nil)
	require.NoError(t, err)

	require.Len(t, f.remote.calls, 2)
	assert.Equal(t, call{Target: target.MustParse("categories", "topics"), ID: "1", Values: []string{"a", "b"}}, f.remote.calls[0])
	assert.Equal(t, call{Target: target.MustParse("categories", "topics"), ID: "2", Values: []string{"c"}}, f.remote.calls[1])

	id, ok := f.checkpoint(t)
	assert.True(t, ok)
	assert.Equal(t, "2", id)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, "2", summary.Checkpoint)
	assert.Empty(t, summary.ResumedFrom)
	assert.Equal(t, "test-run", summary.RunID)
	assert.Equal(t, "categories.topics", summary.Target)
	assert.True(t, f.log.HasMessage("No checkpoint found"))
	assert.True(t, f.log.HasMessage("Run complete"))
}

func TestRunResumesAfterCheckpoint(t *testing.T) {
	f := newFixture(t, twoRows)
	f.writeCheckpoint(t, "1\n")

	summary, err := f.run(t, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, f.remote.ids())
	id, _ := f.checkpoint(t)
	assert.Equal(t, "2", id)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, "1", summary.ResumedFrom)

	skipped := f.log.FindMessages("Skipping row at or before checkpoint")
	require.Len(t, skipped, 1)
	assert.Equal(t, "1", skipped[0].Fields["row_id"])
}

func TestRunInvalidListIsSkippedWithoutWrite(t *testing.T) {
	f := newFixture(t, "id,topics_list\n1,not-a-list\n")

	summary, err := f.run(t, nil)
	require.NoError(t, err)

	assert.Empty(t, f.remote.calls)
	_, ok := f.checkpoint(t)
	assert.False(t, ok)
	_, statErr := os.Stat(f.checkpointPath)
	assert.True(t, os.IsNotExist(statErr))

	assert.Equal(t, 1, summary.Invalid)
	warnings := f.log.FindMessages("invalid list value")
	require.Len(t, warnings, 1)
	assert.Equal(t, "WARN", warnings[0].Level)
	assert.Equal(t, 2, warnings[0].Fields["line"])
	assert.Error(t, warnings[0].Error)
}

func TestRunFailedWriteIsRetriedNextRun(t *testing.T) {
	f := newFixture(t, twoRows)
	f.remote.failures["2"] = errs.FromStatus(http.StatusServiceUnavailable, "unavailable")

	var results []RowResult
	summary, err := f.run(t, func(o *Options) {
		o.OnRow = func(r RowResult) { results = append(results, r) }
	})
	require.NoError(t, err)

	id, _ := f.checkpoint(t)
	assert.Equal(t, "1", id)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Problems())

	require.Len(t, results, 2)
	assert.Equal(t, OutcomeUpdated, results[0].Outcome)
	assert.Equal(t, OutcomeFailed, results[1].Outcome)
	assert.Error(t, results[1].Err)

	failed := f.log.FindMessages("Remote update failed")
	require.Len(t, failed, 1)
	assert.Equal(t, "ERROR", failed[0].Level)
	assert.Equal(t, "server_error", failed[0].Fields["error_type"])

	// Second run once the remote recovers
	delete(f.remote.failures, "2")
	f.remote.calls = nil

	summary, err = f.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, f.remote.ids())
	id, _ = f.checkpoint(t)
	assert.Equal(t, "2", id)
	assert.Equal(t, 1, summary.Updated)
}

func TestRunCorruptCheckpointAbortsBeforeAnyRow(t *testing.T) {
	f := newFixture(t, twoRows)
	f.writeCheckpoint(t, "1\n2\n")

	var rows int
	summary, err := f.run(t, func(o *Options) {
		o.OnRow = func(RowResult) { rows++ }
	})
	require.Error(t, err)

	var readErr *checkpoint.ReadError
	assert.True(t, errors.As(err, &readErr))
	assert.ErrorIs(t, err, checkpoint.ErrCorrupt)
	assert.Empty(t, f.remote.calls)
	assert.Zero(t, rows)
	assert.Zero(t, summary.Total)

	data, readFileErr := os.ReadFile(f.checkpointPath)
	require.NoError(t, readFileErr)
	assert.Equal(t, "1\n2\n", string(data))
}

func TestRunUnreadableCheckpointAbortsBeforeOpeningInput(t *testing.T) {
	f := newFixture(t, twoRows)
	// A directory where the file should be cannot be read
	require.NoError(t, os.Mkdir(f.checkpointPath, 0755))

	_, err := f.run(t, nil)
	var readErr *checkpoint.ReadError
	require.True(t, errors.As(err, &readErr))
	assert.Empty(t, f.remote.calls)
}

func TestRunIsIdempotentOnceComplete(t *testing.T) {
	f := newFixture(t, twoRows)

	_, err := f.run(t, nil)
	require.NoError(t, err)
	f.remote.calls = nil

	summary, err := f.run(t, nil)
	require.NoError(t, err)
	assert.Empty(t, f.remote.calls)
	assert.Equal(t, 2, summary.Skipped)
	id, _ := f.checkpoint(t)
	assert.Equal(t, "2", id)
}

func TestRunFailureDoesNotStopLaterRows(t *testing.T) {
	csv := "id,topics_list\n1,[]\n2,['x']\n3,\"['y', 'z']\"\n"
	f := newFixture(t, csv)
	f.remote.failures["2"] = errs.FromStatus(http.StatusBadRequest, "bad")

	summary, err := f.run(t, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, f.remote.ids())
	assert.Equal(t, []string{}, f.remote.calls[0].Values)
	assert.Equal(t, []string{"y", "z"}, f.remote.calls[2].Values)
	id, _ := f.checkpoint(t)
	assert.Equal(t, "3", id)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.CheckpointHeld)
}

func TestRunHoldPolicyFreezesCheckpoint(t *testing.T) {
	csv := "id,topics_list\n1,[]\n2,broken\n3,['y']\n"
	f := newFixture(t, csv)

	summary, err := f.run(t, func(o *Options) { o.HoldOnFailure = true })
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "3"}, f.remote.ids())
	id, _ := f.checkpoint(t)
	assert.Equal(t, "1", id)
	assert.True(t, summary.CheckpointHeld)
	assert.Equal(t, "1", summary.Checkpoint)
	assert.Equal(t, 2, summary.Updated)
	assert.Equal(t, 1, summary.Invalid)
	assert.True(t, f.log.HasMessage("Holding checkpoint"))
	assert.True(t, f.log.HasMessage("Row updated, checkpoint held"))
}

func TestRunRowWithoutIDIsInvalid(t *testing.T) {
	f := newFixture(t, "id,topics_list\n  ,[]\n2,[]\n")

	summary, err := f.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, f.remote.ids())
	assert.Equal(t, 1, summary.Invalid)
	assert.True(t, f.log.HasMessage("Skipping row without id"))
}

func TestRunCheckpointMissingFromInputProcessesEverything(t *testing.T) {
	f := newFixture(t, twoRows)
	f.writeCheckpoint(t, "99\n")

	summary, err := f.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, f.remote.ids())
	assert.True(t, summary.ResumeMissed)
	assert.True(t, f.log.HasMessage("Checkpoint id not found in input"))
}

func TestRunSkipsByPositionNotByID(t *testing.T) {
	// Duplicate ids after the checkpoint row are still written
	csv := "id,topics_list\n1,[]\n2,[]\n1,['again']\n"
	f := newFixture(t, csv)
	f.writeCheckpoint(t, "2")

	_, err := f.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, f.remote.ids())
	assert.Equal(t, []string{"again"}, f.remote.calls[0].Values)
}

func TestRunCancellation(t *testing.T) {
	csv := "id,topics_list\n1,[]\n2,[]\n3,[]\n"
	f := newFixture(t, csv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.remote.onCall = func(id string) error {
		if id == "2" {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	d, err := New(f.remote, f.store, f.options(nil), f.log)
	require.NoError(t, err)

	summary, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Interrupted)
	assert.Equal(t, []string{"1", "2"}, f.remote.ids())
	assert.Equal(t, 1, summary.Updated)
	assert.Zero(t, summary.Failed)

	id, _ := f.checkpoint(t)
	assert.Equal(t, "1", id)
	assert.True(t, f.log.HasMessage("Run interrupted"))
}

func TestRunAlreadyCancelled(t *testing.T) {
	f := newFixture(t, twoRows)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := New(f.remote, f.store, f.options(nil), f.log)
	require.NoError(t, err)

	summary, err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Interrupted)
	assert.Empty(t, f.remote.calls)
}

func TestRunInputErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		f := newFixture(t, twoRows)
		f.inputPath = filepath.Join(f.dir, "nope.csv")
		_, err := f.run(t, nil)
		require.Error(t, err)
		assert.Empty(t, f.remote.calls)
	})

	t.Run("missing column", func(t *testing.T) {
		f := newFixture(t, "id,other\n1,[]\n")
		_, err := f.run(t, nil)
		assert.ErrorIs(t, err, csvinput.ErrMissingColumn)
	})

	t.Run("custom columns", func(t *testing.T) {
		f := newFixture(t, "book_id,ai\nb1,['x']\n")
		_, err := f.run(t, func(o *Options) {
			o.Columns = csvinput.Columns{ID: "book_id", Value: "ai"}
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"b1"}, f.remote.ids())
	})

	t.Run("unterminated quote is one invalid row", func(t *testing.T) {
		f := newFixture(t, "id,topics_list\n1,[]\n2,\"[unterminated\n")
		summary, err := f.run(t, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"1"}, f.remote.ids())
		assert.Equal(t, 1, summary.Updated)
		assert.Equal(t, 1, summary.Invalid)
	})
}

func TestRunBareQuotedValueDoesNotStopRun(t *testing.T) {
	f := newFixture(t, "id,topics_list\n1,[]\n2,[\"c\"]\n3,[]\n")
	require.NoError(t, f.store.Save("1"))

	summary, err := f.run(t, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, f.remote.ids())
	assert.Equal(t, []string{"c"}, f.remote.calls[0].Values)
	assert.Equal(t, 2, summary.Updated)

	id, _ := f.checkpoint(t)
	assert.Equal(t, "3", id)
}

func TestRunIDThatCannotBeCheckpointedIsInvalid(t *testing.T) {
	f := newFixture(t, "id,topics_list\n\"a\nb\",[]\n2,[]\n")

	var results []RowResult
	summary, err := f.run(t, func(o *Options) {
		o.OnRow = func(r RowResult) { results = append(results, r) }
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, f.remote.ids())
	assert.Equal(t, 1, summary.Invalid)
	assert.Equal(t, 1, summary.Updated)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, checkpoint.ErrInvalidID)
	assert.True(t, f.log.HasMessage("cannot be checkpointed"))

	id, _ := f.checkpoint(t)
	assert.Equal(t, "2", id)

	// The next run is not stuck on the bad row
	f.remote.calls = nil
	summary, err = f.run(t, nil)
	require.NoError(t, err)
	assert.Empty(t, f.remote.calls)
	assert.Equal(t, 2, summary.Skipped)
}

func TestRunLogsDuration(t *testing.T) {
	f := newFixture(t, twoRows)

	summary, err := f.run(t, func(o *Options) {
		o.OnRow = func(RowResult) { time.Sleep(5 * time.Millisecond) }
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, summary.Duration, 10*time.Millisecond)

	done := f.log.FindMessages("Run complete")
	require.Len(t, done, 1)
	logged, ok := done[0].Fields["duration_ms"].(int64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, logged, int64(10))
}

func TestRunCheckpointWriteFailureIsFatal(t *testing.T) {
	f := newFixture(t, twoRows)
	f.store = checkpoint.NewStore(filepath.Join(f.dir, "missing-dir", "ckpt.txt"), f.log)

	var results []RowResult
	summary, err := f.run(t, func(o *Options) {
		o.OnRow = func(r RowResult) { results = append(results, r) }
	})
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeUpdated, results[0].Outcome)
	assert.Equal(t, 1, summary.Total)

	var writeErr *checkpoint.WriteError
	assert.True(t, errors.As(err, &writeErr))
	assert.Equal(t, []string{"1"}, f.remote.ids())
	assert.Equal(t, 1, summary.Updated)
	assert.True(t, f.log.HasMessage("Cannot save checkpoint"))
}

func TestNewValidatesArguments(t *testing.T) {
	f := newFixture(t, twoRows)
	opts := f.options(nil)

	_, err := New(nil, f.store, opts, nil)
	assert.Error(t, err)
	_, err = New(f.remote, nil, opts, nil)
	assert.Error(t, err)

	noInput := opts
	noInput.InputPath = ""
	_, err = New(f.remote, f.store, noInput, nil)
	assert.Error(t, err)

	noTarget := opts
	noTarget.Target = target.Target{}
	_, err = New(f.remote, f.store, noTarget, nil)
	assert.Error(t, err)

	d, err := New(f.remote, f.store, opts, nil)
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestRunGeneratesRunID(t *testing.T) {
	f := newFixture(t, twoRows)
	summary, err := f.run(t, func(o *Options) { o.RunID = "" })
	require.NoError(t, err)
	assert.Len(t, summary.RunID, 36)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Input.Path = "in.csv"
	cfg.Input.IDColumn = "book_id"
	cfg.Target.Table = "books_metadata"
	cfg.Target.Column = "ai_categories"
	cfg.Checkpoint.OnFailure = config.OnFailureHold

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "in.csv", opts.InputPath)
	assert.Equal(t, "book_id", opts.Columns.ID)
	assert.Equal(t, "topics_list", opts.Columns.Value)
	assert.Equal(t, "books_metadata.ai_categories", opts.Target.String())
	assert.True(t, opts.HoldOnFailure)

	cfg.Target.Column = "topics"
	_, err = OptionsFromConfig(cfg)
	assert.ErrorIs(t, err, target.ErrInvalidColumn)
}

func TestSummaryFieldsAndOutcomeNames(t *testing.T) {
	s := &Summary{RunID: "r", Target: "categories.topics", Duration: 1500 * time.Millisecond}
	for _, o := range []Outcome{OutcomeUpdated, OutcomeUpdated, OutcomeSkipped, OutcomeInvalid, OutcomeFailed} {
		s.record(o)
	}
	fields := s.Fields()
	assert.Equal(t, 5, fields["total"])
	assert.Equal(t, 2, fields["updated"])
	assert.Equal(t, int64(1500), fields["duration_ms"])
	assert.Equal(t, 2, s.Problems())

	names := make([]string, 0, 4)
	for _, o := range []Outcome{OutcomeSkipped, OutcomeInvalid, OutcomeFailed, OutcomeUpdated} {
		names = append(names, o.String())
	}
	assert.Equal(t, "skipped invalid failed updated", strings.Join(names, " "))
}

func TestRunAgainstPostgrest(t *testing.T) {
	srv := supabasetest.NewServer("key")
	defer srv.Close()
	srv.Seed("books_metadata", "b1", "b2", "b4")
	srv.FailRow("b2", http.StatusBadGateway, 1)

	client, err := supabase.NewClient(supabase.Options{
		URL:         srv.URL(),
		APIKey:      "key",
		Timeout:     2 * time.Second,
		MaxAttempts: 2,
		Backoff:     &retry.ConstantBackoff{Delay: time.Millisecond},
	})
	require.NoError(t, err)
	defer client.Close()

	csv := "id,topics_list\nb1,\"['fantasy', 'epic']\"\nb2,[\"sci-fi\"]\nb3,[]\nb4,[]\n"
	f := newFixture(t, csv)

	d, err := New(client, f.store, f.options(func(o *Options) {
		o.Target = target.MustParse("books_metadata", "ai_categories")
	}), f.log)
	require.NoError(t, err)

	summary, err := d.Run(context.Background())
	require.NoError(t, err)

	values, ok := srv.Values("books_metadata", "b1", "ai_categories")
	require.True(t, ok)
	assert.Equal(t, []string{"fantasy", "epic"}, values)
	values, _ = srv.Values("books_metadata", "b2", "ai_categories")
	assert.Equal(t, []string{"sci-fi"}, values)

	// b3 does not exist remotely
	assert.Equal(t, 3, summary.Updated)
	assert.Equal(t, 1, summary.Failed)
	id, _ := f.checkpoint(t)
	assert.Equal(t, "b4", id)
	assert.Equal(t, 5, srv.PatchCount())
}
