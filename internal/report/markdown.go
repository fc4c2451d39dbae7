package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/pagemirror/internal/model"
)

// MarkdownWriter outputs summaries as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeOutcome(md, summary)
	w.writePages(md, summary)
	w.writeFailures(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, summary *model.RunSummary) {
	md.H1("Mirror Report")
	md.PlainText("")

	rows := [][]string{
		{"Website", "`" + summary.Website + "`"},
		{"Output", "`" + summary.OutputDir + "`"},
	}
	if summary.RunID != "" {
		rows = append(rows, []string{"Run", "`" + summary.RunID + "`"})
	}
	if !summary.StartedAt.IsZero() {
		rows = append(rows, []string{"Started", summary.StartedAt.Format("2006-01-02 15:04:05 MST")})
		if !summary.FinishedAt.IsZero() {
			rows = append(rows, []string{"Duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String()})
		}
	}
	rows = append(rows,
		[]string{"Pages saved", strconv.Itoa(summary.SavedPages()) + "/" + strconv.Itoa(len(summary.Pages))},
		[]string{"Unique assets", strconv.Itoa(summary.TotalAssets)},
	)

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeOutcome(md *markdown.Markdown, summary *model.RunSummary) {
	var present int
	for _, p := range summary.Pages {
		present += p.AlreadyPresent
	}
	failed := summary.FailedAssets()

	if summary.TotalAssets+present+failed > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Asset Outcomes"),
			piechart.WithShowData(true),
		)
		if summary.TotalAssets > 0 {
			chart.LabelAndIntValue("Downloaded", uint64(summary.TotalAssets)) //nolint:gosec // non-negative count
		}
		if present > 0 {
			chart.LabelAndIntValue("Already present", uint64(present)) //nolint:gosec // non-negative count
		}
		if failed > 0 {
			chart.LabelAndIntValue("Failed", uint64(failed)) //nolint:gosec // non-negative count
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case len(summary.Pages) > 0 && summary.SavedPages() == 0:
		md.Cautionf("No page was saved. %d page(s) failed.", summary.FailedPages())
	case summary.FailedPages() > 0:
		md.Warningf("%d page(s) failed and were not saved.", summary.FailedPages())
	case failed > 0:
		md.Importantf("%d asset(s) could not be downloaded. Their references still point online.", failed)
	default:
		md.Tip("Every page and asset was mirrored.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, summary *model.RunSummary) {
	md.H2("Pages")
	md.PlainText("")

	if len(summary.Pages) == 0 {
		md.PlainText("No pages scraped.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(summary.Pages))
	for i, p := range summary.Pages {
		status := "✅ saved"
		if !p.Saved() {
			status = "❌ " + string(p.State)
		}
		rows[i] = []string{
			"`" + p.Path + "`",
			status,
			strconv.Itoa(p.Found),
			strconv.Itoa(p.New),
			strconv.Itoa(p.Downloaded),
			strconv.Itoa(p.AlreadyPresent),
			strconv.Itoa(p.Failed),
			p.Elapsed.Round(time.Millisecond).String(),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"Page", "Status", "Found", "New", "Downloaded", "On disk", "Failed", "Elapsed"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, summary *model.RunSummary) {
	var failedPages []string
	for _, p := range summary.Pages {
		if !p.Saved() && p.Error != "" {
			failedPages = append(failedPages, "`"+p.Path+"`: "+p.Error)
		}
	}
	if len(failedPages) > 0 {
		md.H2("Page Errors")
		md.PlainText("")
		md.BulletList(failedPages...)
		md.PlainText("")
	}

	if summary.FailedAssets() == 0 {
		return
	}

	md.H2("Failed Assets")
	md.PlainText("")
	for _, p := range summary.Pages {
		if len(p.Failures) == 0 {
			continue
		}
		rows := make([][]string, len(p.Failures))
		for i, f := range p.Failures {
			code := "-"
			if f.StatusCode > 0 {
				code = strconv.Itoa(f.StatusCode)
			}
			rows[i] = []string{
				truncateString(string(f.URL), 80),
				string(f.Source),
				code,
				truncateString(f.Error, 60),
			}
		}
		md.PlainText("### " + p.Path)
		md.PlainText("")
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Source", "Status", "Error"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by pagemirror*")
}
