package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/pagemirror/internal/model"
)

// SimpleWriter outputs plain-text summaries for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every failed asset under its page.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose lists failed assets individually.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.RunSummary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writePages(&sb, summary)
	w.writeTotals(&sb, summary)

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, summary *model.RunSummary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                        PAGEMIRROR SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Website:    %s\n", summary.Website)
	fmt.Fprintf(sb, "Output:     %s\n", summary.OutputDir)
	if summary.RunID != "" {
		fmt.Fprintf(sb, "Run:        %s\n", summary.RunID)
	}
	if !summary.StartedAt.IsZero() {
		fmt.Fprintf(sb, "Started:    %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST"))
		if !summary.FinishedAt.IsZero() {
			fmt.Fprintf(sb, "Duration:   %s\n", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writePages(sb *strings.Builder, summary *model.RunSummary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString("PAGES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if len(summary.Pages) == 0 {
		sb.WriteString("  No pages scraped\n\n")
		return
	}

	for _, p := range summary.Pages {
		if !p.Saved() {
			fmt.Fprintf(sb, "  [FAIL] %s\n", p.Path)
			if p.Error != "" {
				fmt.Fprintf(sb, "         %s\n", p.Error)
			}
			continue
		}

		fmt.Fprintf(sb, "  [ OK ] %s\n", p.Path)
		fmt.Fprintf(sb, "         found %d, new %d, downloaded %d, failed %d",
			p.Found, p.New, p.Downloaded, p.Failed)
		if p.AlreadyPresent > 0 {
			fmt.Fprintf(sb, ", on disk %d", p.AlreadyPresent)
		}
		if p.Skipped > 0 {
			fmt.Fprintf(sb, ", skipped %d", p.Skipped)
		}
		fmt.Fprintf(sb, " (%s)\n", p.Elapsed.Round(time.Millisecond))

		if w.verbose {
			for _, f := range p.Failures {
				fmt.Fprintf(sb, "           - %s: %s\n", f.URL, f.Error)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeTotals(sb *strings.Builder, summary *model.RunSummary) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "Pages saved:    %d/%d\n", summary.SavedPages(), len(summary.Pages))
	fmt.Fprintf(sb, "Assets failed:  %d\n", summary.FailedAssets())
	fmt.Fprintf(sb, "Total assets:   %d\n", summary.TotalAssets)
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
