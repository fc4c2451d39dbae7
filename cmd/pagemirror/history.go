package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/pagemirror/internal/config"
	"github.com/nao1215/pagemirror/internal/database"
	"github.com/nao1215/pagemirror/internal/report"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// It reads runs recorded by scrape from the manifest database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded mirror runs",
		Long: `History lists the runs recorded in the manifest database, newest first.

Given a run ID, it prints the full report of that run again, including the
assets that failed to download.

Examples:
  # List the latest runs
  pagemirror history

  # List runs of one website
  pagemirror history --website https://site.test

  # Show one run as Markdown
  pagemirror history -f markdown 2b7e1516-28ae-4d2a-a6d2-abf715880958`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("website", "w", "",
		"Only list runs of this website")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 lists all)")
	cmd.Flags().StringP("report-format", "f", string(report.FormatText),
		"Format of a single run: text, markdown or json")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the manifest database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}

	// Reading history must not create an empty database.
	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false, EnableWAL: true})
	if err != nil {
		return fmt.Errorf("failed to open database (run 'pagemirror scrape' first): %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		formatName, err := cmd.Flags().GetString("report-format")
		if err != nil {
			return err
		}
		format, err := report.ParseFormat(formatName)
		if err != nil {
			return err
		}
		return showRun(ctx, db, args[0], format, out)
	}

	website, err := cmd.Flags().GetString("website")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	return listRuns(ctx, db, website, limit, out)
}

// listRuns prints a table of recorded runs.
func listRuns(ctx context.Context, db *database.ManifestDB, website string, limit int, out io.Writer) error {
	runs, err := db.ListRuns(ctx, website, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		if website != "" {
			fmt.Fprintf(out, "No runs recorded for %s\n", website)
		} else {
			fmt.Fprintln(out, "No runs recorded")
		}
		return nil
	}

	fmt.Fprintf(out, "Recorded runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-36s  %-19s  %-7s  %-6s  %-13s  %s\n",
		"ID", "Started", "Pages", "Assets", "Failed assets", "Website")
	fmt.Fprintf(out, "  %s\n", strings.Repeat("-", 100))
	for _, r := range runs {
		pages := fmt.Sprintf("%d/%d", r.Pages-r.FailedPages, r.Pages)
		if !r.Finished() {
			pages += "*"
		}
		fmt.Fprintf(out, "  %-36s  %-19s  %-7s  %-6d  %-13d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			pages,
			r.TotalAssets,
			r.FailedAssets,
			r.Website,
		)
	}
	fmt.Fprintln(out, "\n  Pages are saved/total; * marks a run that did not finish.")
	return nil
}

// showRun renders one stored run with the report writers.
func showRun(ctx context.Context, db *database.ManifestDB, runID string, format report.Format, out io.Writer) error {
	summary, err := db.LoadSummary(ctx, runID)
	if err != nil {
		return err
	}

	w, err := report.NewWriter(format, out, getVersion())
	if err != nil {
		return err
	}
	_, err = w.Write(summary)
	return err
}
