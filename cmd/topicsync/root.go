package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"topicsync/pkg/auth"
	"topicsync/pkg/config"
	"topicsync/pkg/logger"
	"topicsync/pkg/target"
	"topicsync/pkg/ui"
)

var (
	// Version information, set with -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// errInterrupted is returned when a run stops on a signal
var errInterrupted = errors.New("interrupted")

// cliIO bundles the process streams and the credential manager factory
type cliIO struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	stdinFd    int
	newManager func() (*auth.Manager, error)
}

func newIO() *cliIO {
	return &cliIO{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		stdinFd:    int(os.Stdin.Fd()),
		newManager: auth.NewManager,
	}
}

// globalOptions holds the persistent flags
type globalOptions struct {
	io         *cliIO
	configFile string
	logLevel   string
	logFile    string
	logFormat  string
	noColor    bool
	quiet      bool
}

// execute runs the command line and returns the process exit code
func execute(ctx context.Context, args []string, cio *cliIO) int {
	logger.Version = version

	root := newRootCmd(cio)
	root.SetArgs(args)
	root.SetIn(cio.stdin)
	root.SetOut(cio.stdout)
	root.SetErr(cio.stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errInterrupted) {
			fmt.Fprintln(cio.stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

func newRootCmd(cio *cliIO) *cobra.Command {
	opts := &globalOptions{io: cio}
	update := &updateOptions{}

	rootCmd := &cobra.Command{
		Use:   "topicsync <csv_file> <checkpoint_file> <table> <column>",
		Short: "Resumable bulk update of Supabase list columns from a CSV file",
		Long: `topicsync writes list values from a CSV file into a column of a Supabase
table, one row at a time, recording the id of the last completed row in a
checkpoint file. Re-running the same command resumes after that row.

Supported targets:
` + supportedTargets() + `
Running topicsync with four arguments is the same as "topicsync update".`,
		Example: `  # Update categories.topics from topics.csv
  topicsync topics.csv progress.txt categories topics

  # Same, through a stored project
  topicsync update topics.csv progress.txt categories topics --project books`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return nil
			}
			return cobra.ExactArgs(4)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			return runUpdate(cmd, opts, update, args)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file (default is ./.topicsync.yaml or ~/.config/topicsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	rootCmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "console or json")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "suppress all output except errors and the final summary")

	// The bare positional form takes the same flags as update
	addUpdateFlags(rootCmd, update)

	rootCmd.SetVersionTemplate(`topicsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(
		newUpdateCmd(opts),
		newCheckpointCmd(opts),
		newAuthCmd(opts),
		newConfigCmd(opts),
	)
	return rootCmd
}

// loadConfig merges the persistent flags with the command's own flags
func (o *globalOptions) loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if o.logLevel != "" {
		flags["log-level"] = o.logLevel
	} else if o.quiet {
		flags["log-level"] = "error"
	}
	if o.logFile != "" {
		flags["log-file"] = o.logFile
	}
	if o.logFormat != "" {
		flags["log-format"] = o.logFormat
	}
	if o.noColor {
		flags["no-color"] = true
	}
	return config.Load(o.configFile, flags)
}

func (o *globalOptions) console(cfg *config.Config) *ui.Console {
	noColor := o.noColor
	if cfg != nil {
		noColor = noColor || cfg.Logging.NoColor
	}
	return ui.NewConsole(o.io.stdout, noColor, o.quiet)
}

// fillCredentials completes the remote URL and key from a stored project.
// An explicitly named project must exist; otherwise the lookup is best effort.
func (o *globalOptions) fillCredentials(cfg *config.Config, log logger.Logger) error {
	if cfg.Remote.URL != "" && cfg.Remote.APIKey != "" {
		return nil
	}

	manager, err := o.io.newManager()
	if err != nil {
		if cfg.Remote.Project != "" {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		log.WithError(err).Debug("Credential store unavailable")
		return nil
	}

	var project *auth.Project
	if cfg.Remote.Project != "" {
		project, err = manager.Retrieve(cfg.Remote.Project)
		if err != nil {
			return err
		}
	} else {
		project, err = manager.RetrieveDefault()
		if err != nil {
			log.WithError(err).Debug("No stored project to fall back on")
			return nil
		}
	}

	if cfg.Remote.URL == "" {
		cfg.Remote.URL = project.URL
	}
	if cfg.Remote.APIKey == "" {
		cfg.Remote.APIKey = project.APIKey
	}
	log.WithField("project", project.Name).Debug("Using stored project credentials")
	return nil
}

// supportedTargets lists every table.column pair, one per indented line.
func supportedTargets() string {
	var b strings.Builder
	for _, table := range target.TableNames() {
		for _, column := range target.ColumnNames(target.Table(table)) {
			fmt.Fprintf(&b, "  %s.%s\n", table, column)
		}
	}
	return b.String()
}
