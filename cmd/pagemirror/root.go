package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagemirror/internal/log"
)

// NewRootCmd creates the root command for pagemirror.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pagemirror",
		Short: "Mirror rendered web pages for offline viewing",
		Long: `pagemirror renders web pages in a browser, downloads every asset they load
(stylesheets, scripts, images, fonts, media and XHR/fetch responses), rewrites
references to local relative paths and serves the result offline.

Assets shared between pages are downloaded once per run.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-file", "", "Also write logs to a rotating file at this path")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	cmd.AddCommand(NewScrapeCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger builds the logger from the global flags and installs it as
// the slog default. The returned Closer closes the log file, if any.
// Global flags are optional so subcommands also run on their own.
func setupLogger(cmd *cobra.Command) (*slog.Logger, io.Closer, error) {
	logger, closer, err := log.New(cmd.ErrOrStderr(), log.Options{
		Verbose: globalFlag(cmd, "verbose") == "true",
		JSON:    globalFlag(cmd, "log-json") == "true",
		File:    globalFlag(cmd, "log-file"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	slog.SetDefault(logger)
	return logger, closer, nil
}

// globalFlag returns the value of a persistent root flag, or "" when the
// command runs without the root.
func globalFlag(cmd *cobra.Command, name string) string {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Value.String()
	}
	if f := cmd.Root().PersistentFlags().Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}
