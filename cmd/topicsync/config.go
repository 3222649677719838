package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"topicsync/pkg/logger"
	"topicsync/pkg/supabase"
	"topicsync/pkg/target"
)

const exampleConfig = `# topicsync configuration
#
# Precedence: command line flags > environment > .env > this file > defaults.
# Environment variables: SUPABASE_URL, SUPABASE_KEY and TOPICSYNC_* (for
# example TOPICSYNC_MAX_ATTEMPTS, TOPICSYNC_LOG_LEVEL).

remote:
  # Project URL, without /rest/v1
  url: ""
  # Prefer SUPABASE_KEY or 'topicsync auth login' over storing the key here
  api_key: ""
  # Name of a project stored with 'topicsync auth login'
  project: ""
  # Timeout for each write
  timeout: 30s
  # Attempts per row for network, rate-limit and 5xx failures (1-10)
  max_attempts: 1
  # Maximum writes per minute, 0 for no limit
  requests_per_minute: 0

input:
  path: ""
  id_column: id
  value_column: topics_list

checkpoint:
  path: ""
  # advance: a failed row does not stop the checkpoint moving on later successes
  # hold: the checkpoint stays before the first invalid or failed row
  on_failure: advance

target:
  # categories or books_metadata; column is topics, ai_topics or ai_categories
  table: ""
  column: ""

logging:
  # debug, info, warn, error or disabled
  level: info
  # Optional JSON log file, appended to
  file: ""
  # console or json
  format: console
  no_color: false
`

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage topicsync configuration.

Configuration is loaded from, highest priority first:
  - Command line flags
  - Environment variables
  - .env in the working directory, then ~/.topicsync.env
  - Configuration file
  - Default values`,
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write an example configuration file",
		Long: `Write an example configuration file with every option documented. The
default path is --config, or .topicsync.yaml in the working directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = ".topicsync.yaml"
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create config directory: %w", err)
				}
			}
			if err := os.WriteFile(path, []byte(exampleConfig), 0600); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			opts.console(nil).PrintSuccess(fmt.Sprintf("Configuration written to %s", path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(nil)
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg.Masked())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = opts.io.stdout.Write(out)
			return err
		},
	}

	var remote bool
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration, optionally against the remote project",
		Long: `Load and validate the configuration. With --remote, also resolve stored
credentials and read one row of the target table (categories when no target
is configured) to check the URL and key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(nil)
			if err != nil {
				return err
			}
			console := opts.console(cfg)
			console.PrintSuccess("Configuration is valid")

			if !remote {
				return nil
			}

			log, err := logger.New(&cfg.Logging)
			if err != nil {
				return err
			}
			if err := opts.fillCredentials(cfg, log); err != nil {
				return err
			}
			client, err := supabase.NewClient(supabase.Options{
				URL:     cfg.Remote.URL,
				APIKey:  cfg.Remote.APIKey,
				Timeout: cfg.Remote.Timeout,
				Logger:  log,
			})
			if err != nil {
				return err
			}
			defer client.Close()

			table := target.TableCategories
			if cfg.Target.Table != "" {
				tgt, err := cfg.ResolveTarget()
				if err != nil {
					return err
				}
				table = tgt.Table()
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := client.Ping(ctx, table); err != nil {
				return fmt.Errorf("remote check failed: %w", err)
			}
			console.PrintSuccess(fmt.Sprintf("Reached %s at %s", table, cfg.Remote.URL))
			return nil
		},
	}
	validateCmd.Flags().BoolVar(&remote, "remote", false, "also check connectivity and credentials")

	cmd.AddCommand(initCmd, showCmd, validateCmd)
	return cmd
}
