package database

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/pagemirror/internal/model"
	"github.com/nao1215/pagemirror/internal/scraper"
)

var _ scraper.Recorder = (*Run)(nil)

func setupTestDB(t *testing.T) *ManifestDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("Path() = %q", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "missing")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("unexpected error: %v", err)
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := t.TempDir()
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatal(err)
		}
		if _, err := db1.BeginRun(t.Context(), "https://site.test", "page"); err != nil {
			t.Fatal(err)
		}
		_ = db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db2.Close()

		runs, err := db2.ListRuns(t.Context(), "", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 {
			t.Errorf("len(runs) = %d, want 1", len(runs))
		}
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("records pages and assets", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := t.Context()

		run, err := db.BeginRun(ctx, "https://site.test", "page")
		if err != nil {
			t.Fatal(err)
		}
		if run.ID() == "" {
			t.Fatal("empty run ID")
		}

		saved := &model.ScrapeResult{
			Path:       "en_us/ids",
			URL:        "https://site.test/en_us/ids",
			LocalPath:  "page/site.test/en_us/ids/index.html",
			State:      model.PageStateSaved,
			Found:      3,
			New:        3,
			Downloaded: 2,
			Failed:     1,
			Elapsed:    1500 * time.Millisecond,
		}
		failed := &model.ScrapeResult{
			Path:  "broken",
			URL:   "https://site.test/broken",
			State: model.PageStateFailed,
			Error: "navigation failed",
		}
		for _, p := range []*model.ScrapeResult{saved, failed} {
			if err := run.RecordPage(ctx, p); err != nil {
				t.Fatalf("RecordPage(%s) error = %v", p.Path, err)
			}
		}

		outcomes := []model.AssetOutcome{
			{URL: "https://site.test/site.css", Source: model.SourceLink, Status: model.AssetFetched, LocalPath: "page/site.test/site.css", ContentType: "text/css", Bytes: 15, StatusCode: 200},
			{URL: "https://site.test/app.js", Source: model.SourceScript, Status: model.AssetFetched, Bytes: 14, StatusCode: 200},
			{URL: "https://site.test/missing.png", Source: model.SourceImg, Status: model.AssetFailed, StatusCode: 404, Error: "fetch https://site.test/missing.png: 404 Not Found"},
		}
		if err := run.RecordAssets(ctx, saved.Path, outcomes); err != nil {
			t.Fatalf("RecordAssets() error = %v", err)
		}
		if err := run.Finish(ctx, 2); err != nil {
			t.Fatalf("Finish() error = %v", err)
		}

		got, err := db.GetRun(ctx, run.ID())
		if err != nil {
			t.Fatalf("GetRun() error = %v", err)
		}
		if got.Website != "https://site.test" || got.OutputDir != "page" {
			t.Errorf("run = %+v", got)
		}
		if got.TotalAssets != 2 || got.Pages != 2 || got.FailedPages != 1 || got.FailedAssets != 1 {
			t.Errorf("run counts = total %d pages %d failed pages %d failed assets %d",
				got.TotalAssets, got.Pages, got.FailedPages, got.FailedAssets)
		}
		if !got.Finished() || got.FinishedAt.Before(got.StartedAt) {
			t.Errorf("run times = %v .. %v", got.StartedAt, got.FinishedAt)
		}

		pages, err := db.ListPages(ctx, run.ID())
		if err != nil {
			t.Fatal(err)
		}
		if len(pages) != 2 || pages[0].Path != "en_us/ids" || pages[1].State != model.PageStateFailed {
			t.Fatalf("pages = %+v", pages)
		}
		if pages[0].Elapsed != 1500*time.Millisecond || pages[0].Downloaded != 2 {
			t.Errorf("page[0] = %+v", pages[0])
		}

		byPage, err := db.failuresByPage(ctx, run.ID())
		if err != nil {
			t.Fatal(err)
		}
		failures := byPage[saved.Path]
		if len(byPage) != 1 || len(failures) != 1 || failures[0].StatusCode != 404 || failures[0].Source != model.SourceImg {
			t.Errorf("failures = %+v", failures)
		}
	})

	t.Run("re-recording an asset updates it", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := t.Context()
		run, err := db.BeginRun(ctx, "https://site.test", "page")
		if err != nil {
			t.Fatal(err)
		}

		u := model.NormalizedURL("https://site.test/a.css")
		if err := run.RecordAssets(ctx, "p", []model.AssetOutcome{{URL: u, Status: model.AssetFailed, Error: "boom"}}); err != nil {
			t.Fatal(err)
		}
		if err := run.RecordAssets(ctx, "p", []model.AssetOutcome{{URL: u, Status: model.AssetFetched}}); err != nil {
			t.Fatal(err)
		}

		failures, err := db.failuresByPage(ctx, run.ID())
		if err != nil {
			t.Fatal(err)
		}
		if len(failures) != 0 {
			t.Errorf("failures = %+v, want none", failures)
		}
	})

	t.Run("unfinished run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		run, err := db.BeginRun(t.Context(), "https://site.test", "page")
		if err != nil {
			t.Fatal(err)
		}
		got, err := db.GetRun(t.Context(), run.ID())
		if err != nil {
			t.Fatal(err)
		}
		if got.Finished() {
			t.Error("run reported finished before Finish()")
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		if _, err := db.GetRun(t.Context(), "nope"); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("GetRun() error = %v, want ErrRunNotFound", err)
		}
	})
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := t.Context()

	var ids []string
	for _, site := range []string{"https://a.test", "https://b.test", "https://a.test"} {
		run, err := db.BeginRun(ctx, site, "page")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, run.ID())
		time.Sleep(2 * time.Millisecond)
	}

	t.Run("newest first", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(t.Context(), "", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 3 || runs[0].ID != ids[2] || runs[2].ID != ids[0] {
			t.Errorf("runs = %+v", runs)
		}
	})

	t.Run("by website with limit", func(t *testing.T) {
		t.Parallel()

		runs, err := db.ListRuns(t.Context(), "https://a.test", 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].ID != ids[2] {
			t.Errorf("runs = %+v", runs)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		zero bool
	}{
		{"2025-01-02T03:04:05.000000000Z", false},
		{"2025-01-02 03:04:05", false},
		{"2025-01-02T03:04:05Z", false},
		{"", true},
		{"yesterday", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := parseTimestamp(tt.in); got.IsZero() != tt.zero {
				t.Errorf("parseTimestamp(%q) = %v", tt.in, got)
			}
		})
	}
}
