package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"topicsync/pkg/auth"
	"topicsync/pkg/logger"
	"topicsync/pkg/supabase"
	"topicsync/pkg/target"
)

func newAuthCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored Supabase projects",
		Long: `Store Supabase project URLs and API keys so runs can use --project instead
of passing the key on the command line.

Projects are stored in:
  - the system keychain, when available
  - an AES-GCM encrypted file in the config directory otherwise
SUPABASE_URL and SUPABASE_KEY are listed as the read-only project "env".`,
	}

	cmd.AddCommand(newLoginCmd(opts), newLogoutCmd(opts), newListCmd(opts))
	return cmd
}

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var (
		url    string
		key    string
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "login [name]",
		Short: "Store a Supabase project",
		Long: `Store a Supabase project URL and API key under a name ("default" when
omitted). Missing values are prompted for; the key is read without echo.

The key needs UPDATE rights on the target tables, usually the service_role
key from Project Settings > API.`,
		Example: `  topicsync auth login books
  topicsync auth login books --url https://abc.supabase.co --verify`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := auth.DefaultProjectName
			if len(args) == 1 {
				name = args[0]
			}

			reader := bufio.NewReader(opts.io.stdin)
			var err error
			if url == "" {
				url, err = prompt(opts.io.stdout, reader, "Supabase URL: ")
				if err != nil {
					return fmt.Errorf("failed to read URL: %w", err)
				}
			}
			if key == "" {
				key, err = readSecret(opts.io, reader, "API key (hidden): ")
				if err != nil {
					return fmt.Errorf("failed to read API key: %w", err)
				}
			}

			normalized, err := supabase.NormalizeURL(url)
			if err != nil {
				return err
			}
			project := &auth.Project{Name: name, URL: normalized, APIKey: strings.TrimSpace(key)}

			console := opts.console(nil)
			if verify {
				if err := verifyProject(cmd.Context(), project); err != nil {
					return fmt.Errorf("verification failed: %w", err)
				}
				console.PrintSuccess("Connection verified")
			}

			manager, err := opts.io.newManager()
			if err != nil {
				return fmt.Errorf("failed to initialize credential manager: %w", err)
			}
			if err := manager.Store(project); err != nil {
				return err
			}

			console.PrintSuccess(fmt.Sprintf("Project saved: %s", project.Name))
			console.PrintInfo("Use it with", "--project "+project.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Supabase project URL")
	cmd.Flags().StringVar(&key, "key", "", "API key (prefer the prompt, flags end up in shell history)")
	cmd.Flags().BoolVar(&verify, "verify", false, "check the URL and key against the categories table before saving")
	return cmd
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout <name>",
		Short: "Remove a stored project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := opts.io.newManager()
			if err != nil {
				return fmt.Errorf("failed to initialize credential manager: %w", err)
			}
			if err := manager.Delete(args[0]); err != nil {
				return err
			}
			opts.console(nil).PrintSuccess(fmt.Sprintf("Project removed: %s", args[0]))
			return nil
		},
	}
}

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := opts.io.newManager()
			if err != nil {
				return fmt.Errorf("failed to initialize credential manager: %w", err)
			}
			projects, err := manager.List()
			if err != nil {
				return err
			}

			out := opts.io.stdout
			if len(projects) == 0 {
				fmt.Fprintln(out, "No stored projects. Run 'topicsync auth login' to add one.")
				return nil
			}
			for _, p := range projects {
				s := auth.SanitizeProject(p)
				modified := "-"
				if !s.LastModified.IsZero() {
					modified = s.LastModified.Format(time.RFC3339)
				}
				fmt.Fprintf(out, "%-16s %-40s %-14s %s\n", s.Name, s.URL, s.APIKey, modified)
			}
			return nil
		},
	}
}

func verifyProject(ctx context.Context, project *auth.Project) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := supabase.NewClient(supabase.Options{
		URL:     project.URL,
		APIKey:  project.APIKey,
		Timeout: 15 * time.Second,
		Logger:  logger.NewNopLogger(),
	})
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Ping(ctx, target.TableCategories)
}

func prompt(out io.Writer, reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads without echo from a terminal, or a plain line otherwise
func readSecret(cio *cliIO, reader *bufio.Reader, label string) (string, error) {
	if cio.stdinFd >= 0 && term.IsTerminal(cio.stdinFd) {
		fmt.Fprint(cio.stdout, label)
		b, err := term.ReadPassword(cio.stdinFd)
		fmt.Fprintln(cio.stdout)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return prompt(cio.stdout, reader, label)
}
