package database

import (
	"errors"
	"testing"
	"time"

	"github.com/nao1215/pagemirror/internal/model"
)

func TestLoadSummary(t *testing.T) {
	t.Parallel()

	t.Run("rebuilds pages and failures", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := t.Context()

		run, err := db.BeginRun(ctx, "https://site.test", "page")
		if err != nil {
			t.Fatal(err)
		}

		pages := []*model.ScrapeResult{
			{
				Path:       "en_us/ids",
				URL:        "https://site.test/en_us/ids",
				LocalPath:  "page/site.test/en_us/ids/index.html",
				State:      model.PageStateSaved,
				Found:      2,
				New:        2,
				Downloaded: 1,
				Failed:     1,
				Elapsed:    1500 * time.Millisecond,
			},
			{
				Path:  "en_us/broken",
				URL:   "https://site.test/en_us/broken",
				State: model.PageStateFailed,
				Error: "navigation failed",
			},
		}
		for _, p := range pages {
			if err := run.RecordPage(ctx, p); err != nil {
				t.Fatal(err)
			}
		}
		outcomes := []model.AssetOutcome{
			{URL: "https://site.test/site.css", Source: model.SourceLink, Status: model.AssetFetched, LocalPath: "page/site.test/site.css"},
			{URL: "https://site.test/missing.png", Source: model.SourceImg, Status: model.AssetFailed, StatusCode: 404, Error: "HTTP 404"},
		}
		if err := run.RecordAssets(ctx, "en_us/ids", outcomes); err != nil {
			t.Fatal(err)
		}
		if err := run.Finish(ctx, 1); err != nil {
			t.Fatal(err)
		}

		summary, err := db.LoadSummary(ctx, run.ID())
		if err != nil {
			t.Fatalf("LoadSummary() error = %v", err)
		}

		if summary.RunID != run.ID() || summary.Website != "https://site.test" || summary.TotalAssets != 1 {
			t.Errorf("summary = %+v", summary)
		}
		if len(summary.Pages) != 2 {
			t.Fatalf("len(Pages) = %d, want 2", len(summary.Pages))
		}
		if summary.Pages[0].Path != "en_us/ids" || summary.Pages[1].Path != "en_us/broken" {
			t.Errorf("page order = %q, %q", summary.Pages[0].Path, summary.Pages[1].Path)
		}
		if summary.SavedPages() != 1 || summary.FailedPages() != 1 {
			t.Errorf("saved/failed = %d/%d", summary.SavedPages(), summary.FailedPages())
		}

		failures := summary.Pages[0].Failures
		if len(failures) != 1 || failures[0].URL != "https://site.test/missing.png" || failures[0].StatusCode != 404 {
			t.Errorf("failures = %+v", failures)
		}
		if summary.Pages[0].Elapsed != 1500*time.Millisecond {
			t.Errorf("Elapsed = %v", summary.Pages[0].Elapsed)
		}
		if summary.FinishedAt.IsZero() {
			t.Error("FinishedAt not loaded")
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		if _, err := db.LoadSummary(t.Context(), "nope"); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("error = %v, want ErrRunNotFound", err)
		}
	})
}
