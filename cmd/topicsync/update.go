package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"topicsync/pkg/checkpoint"
	"topicsync/pkg/logger"
	"topicsync/pkg/supabase"
	"topicsync/pkg/ui"
	"topicsync/pkg/updater"
)

// updateOptions holds the update command flags
type updateOptions struct {
	supabaseURL   string
	supabaseKey   string
	project       string
	idColumn      string
	valueColumn   string
	timeout       time.Duration
	maxAttempts   int
	rateLimit     int
	holdOnFailure bool
	progress      bool
}

func newUpdateCmd(opts *globalOptions) *cobra.Command {
	update := &updateOptions{}

	cmd := &cobra.Command{
		Use:   "update <csv_file> <checkpoint_file> <table> <column>",
		Short: "Write list values from a CSV file into a table column",
		Long: `Read the CSV file in order and set <column> to the row's list value for the
row of <table> whose id matches. After every confirmed write the row's id is
saved to <checkpoint_file>; the next run skips every row up to and including
that id.

Rows with an unparsable list are skipped with a warning. Rows whose write
fails are logged and skipped; by default the checkpoint still moves past them
on the next success. Use --hold-on-failure to keep the checkpoint at the last
row before the first problem so a re-run retries it.

The value column must hold a list literal such as ["a", "b"] or ['a', 'b'].`,
		Example: `  topicsync update topics.csv progress.txt categories ai_topics
  topicsync update books.csv books.ckpt books_metadata ai_categories --rate-limit 120 --max-attempts 3`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, opts, update, args)
		},
	}

	addUpdateFlags(cmd, update)
	return cmd
}

func addUpdateFlags(cmd *cobra.Command, update *updateOptions) {
	cmd.Flags().StringVar(&update.supabaseURL, "supabase-url", "", "Supabase project URL (default $SUPABASE_URL)")
	cmd.Flags().StringVar(&update.supabaseKey, "supabase-key", "", "Supabase API key (default $SUPABASE_KEY)")
	cmd.Flags().StringVarP(&update.project, "project", "p", "", "use a project stored with 'topicsync auth login'")
	cmd.Flags().StringVar(&update.idColumn, "id-column", "", "CSV column holding the row id (default \"id\")")
	cmd.Flags().StringVar(&update.valueColumn, "value-column", "", "CSV column holding the list value (default \"topics_list\")")
	cmd.Flags().DurationVar(&update.timeout, "timeout", 0, "timeout for each remote write (default 30s)")
	cmd.Flags().IntVar(&update.maxAttempts, "max-attempts", 0, "attempts per row for transient failures (default 1)")
	cmd.Flags().IntVar(&update.rateLimit, "rate-limit", 0, "maximum writes per minute, 0 for no limit")
	cmd.Flags().BoolVar(&update.holdOnFailure, "hold-on-failure", false, "stop moving the checkpoint after the first invalid or failed row")
	cmd.Flags().BoolVar(&update.progress, "progress", false, "show a live progress line")
}

// flagMap returns only the flags the user set
func (u *updateOptions) flagMap(cmd *cobra.Command, args []string) map[string]interface{} {
	flags := map[string]interface{}{
		"input":      args[0],
		"checkpoint": args[1],
		"table":      args[2],
		"column":     args[3],
	}

	changed := cmd.Flags().Changed
	if changed("supabase-url") {
		flags["supabase-url"] = u.supabaseURL
	}
	if changed("supabase-key") {
		flags["supabase-key"] = u.supabaseKey
	}
	if changed("project") {
		flags["project"] = u.project
	}
	if changed("id-column") {
		flags["id-column"] = u.idColumn
	}
	if changed("value-column") {
		flags["value-column"] = u.valueColumn
	}
	if changed("timeout") {
		flags["timeout"] = u.timeout
	}
	if changed("max-attempts") {
		flags["max-attempts"] = u.maxAttempts
	}
	if changed("rate-limit") {
		flags["rate-limit"] = u.rateLimit
	}
	if changed("hold-on-failure") {
		flags["hold-on-failure"] = u.holdOnFailure
	}
	return flags
}

func runUpdate(cmd *cobra.Command, opts *globalOptions, update *updateOptions, args []string) error {
	cfg, err := opts.loadConfig(update.flagMap(cmd, args))
	if err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return err
	}

	if err := opts.fillCredentials(cfg, log); err != nil {
		return err
	}
	if err := cfg.ValidateRun(); err != nil {
		return err
	}

	console := opts.console(cfg)
	console.PrintBanner()
	console.PrintInfo("Input", cfg.Input.Path)
	console.PrintInfo("Checkpoint", cfg.Checkpoint.Path)
	console.PrintInfo("Target", cfg.Target.Table+"."+cfg.Target.Column)

	client, err := supabase.NewClient(supabase.Options{
		URL:               cfg.Remote.URL,
		APIKey:            cfg.Remote.APIKey,
		Timeout:           cfg.Remote.Timeout,
		MaxAttempts:       cfg.Remote.MaxAttempts,
		RequestsPerMinute: cfg.Remote.RequestsPerMinute,
		Logger:            log,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	driverOpts, err := updater.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	tracker := ui.NewStatusTracker()
	driverOpts.OnRow = func(r updater.RowResult) {
		tracker.Record(r)
		if update.progress {
			tracker.PrintProgress(console)
		}
	}

	driver, err := updater.New(client, checkpoint.NewStore(cfg.Checkpoint.Path, log), driverOpts, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	summary, err := driver.Run(ctx)
	if update.progress && !opts.quiet {
		fmt.Fprintln(console.Writer())
	}
	console.PrintSummary(summary)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errInterrupted
	default:
		return err
	}
}
