package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"topicsync/pkg/checkpoint"
	"topicsync/pkg/logger"
)

func newCheckpointCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset a checkpoint file",
	}

	showCmd := &cobra.Command{
		Use:   "show <checkpoint_file>",
		Short: "Print the id of the last completed row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.checkpointStore(args[0])
			if err != nil {
				return err
			}

			info, err := store.Info()
			if err != nil {
				return err
			}

			console := opts.console(nil)
			if info == nil {
				console.PrintWarning(fmt.Sprintf("No checkpoint at %s, the next run starts from the first row", store.Path()))
				return nil
			}
			// The bare id goes to stdout even when quiet, so scripts can read it
			if opts.quiet {
				fmt.Fprintln(console.Writer(), info.ID)
				return nil
			}
			console.PrintInfo("Last completed id", info.ID)
			console.PrintInfo("Updated", fmt.Sprintf("%s (%s ago)", info.UpdatedAt.Format(time.RFC3339), info.Age().Round(time.Second)))
			return nil
		},
	}

	var noBackup bool
	clearCmd := &cobra.Command{
		Use:   "clear <checkpoint_file>",
		Short: "Delete the checkpoint so the next run starts from the first row",
		Long: `Delete the checkpoint file. A copy is kept as <checkpoint_file>.backup
unless --no-backup is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.checkpointStore(args[0])
			if err != nil {
				return err
			}

			console := opts.console(nil)
			if !store.Exists() {
				console.PrintWarning("No checkpoint to clear")
				return nil
			}
			if !noBackup {
				if err := store.Backup(); err != nil {
					return err
				}
				console.PrintInfo("Backup", store.BackupPath())
			}
			if err := store.Clear(); err != nil {
				return err
			}
			console.PrintSuccess("Checkpoint cleared")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&noBackup, "no-backup", false, "do not keep a .backup copy")

	setCmd := &cobra.Command{
		Use:   "set <checkpoint_file> <id>",
		Short: "Point the checkpoint at a specific row id",
		Long: `Overwrite the checkpoint with <id>. The next run skips every row up to and
including the first row with that id.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.checkpointStore(args[0])
			if err != nil {
				return err
			}
			if err := store.Backup(); err != nil {
				return err
			}
			if err := store.Save(args[1]); err != nil {
				return err
			}
			opts.console(nil).PrintSuccess(fmt.Sprintf("Checkpoint set to %s", args[1]))
			return nil
		},
	}

	cmd.AddCommand(showCmd, clearCmd, setCmd)
	return cmd
}

func (o *globalOptions) checkpointStore(path string) (*checkpoint.Store, error) {
	cfg, err := o.loadConfig(nil)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, err
	}
	return checkpoint.NewStore(path, log), nil
}
