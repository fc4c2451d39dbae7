package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/nao1215/pagemirror/internal/database"
	"github.com/nao1215/pagemirror/internal/model"
)

// seedHistory records one finished run and returns the database directory
// and the run ID.
func seedHistory(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := t.Context()
	run, err := db.BeginRun(ctx, "https://site.test", "page")
	if err != nil {
		t.Fatal(err)
	}
	page := &model.ScrapeResult{
		Path:       "en_us/ids",
		URL:        "https://site.test/en_us/ids",
		State:      model.PageStateSaved,
		Found:      2,
		New:        2,
		Downloaded: 1,
		Failed:     1,
	}
	if err := run.RecordPage(ctx, page); err != nil {
		t.Fatal(err)
	}
	outcomes := []model.AssetOutcome{
		{URL: "https://site.test/site.css", Status: model.AssetFetched},
		{URL: "https://site.test/missing.png", Status: model.AssetFailed, StatusCode: 404, Error: "HTTP 404"},
	}
	if err := run.RecordAssets(ctx, page.Path, outcomes); err != nil {
		t.Fatal(err)
	}
	if err := run.Finish(ctx, 1); err != nil {
		t.Fatal(err)
	}
	return dir, run.ID()
}

func executeHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("lists runs", func(t *testing.T) {
		t.Parallel()

		dir, id := seedHistory(t)
		out, err := executeHistory(t, "--db-dir", dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"Recorded runs (1)", id, "1/1", "https://site.test"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected output to contain %q, got:\n%s", want, out)
			}
		}
	})

	t.Run("filters by website", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedHistory(t)
		out, err := executeHistory(t, "--db-dir", dir, "--website", "https://other.test")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No runs recorded for https://other.test") {
			t.Errorf("unexpected output: %q", out)
		}
	})

	t.Run("shows one run as json", func(t *testing.T) {
		t.Parallel()

		dir, id := seedHistory(t)
		out, err := executeHistory(t, "--db-dir", dir, "-f", "json", id)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got struct {
			Summary struct {
				RunID string `json:"run_id"`
				Pages []struct {
					Failures []struct {
						URL string `json:"url"`
					} `json:"failures"`
				} `json:"pages"`
			} `json:"summary"`
		}
		if err := json.Unmarshal([]byte(out), &got); err != nil {
			t.Fatalf("output is not JSON: %v\n%s", err, out)
		}
		if got.Summary.RunID != id {
			t.Errorf("run_id = %q, want %q", got.Summary.RunID, id)
		}
		if len(got.Summary.Pages) != 1 || len(got.Summary.Pages[0].Failures) != 1 {
			t.Fatalf("unexpected pages: %+v", got.Summary.Pages)
		}
		if got.Summary.Pages[0].Failures[0].URL != "https://site.test/missing.png" {
			t.Errorf("failure = %q", got.Summary.Pages[0].Failures[0].URL)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()

		dir, _ := seedHistory(t)
		_, err := executeHistory(t, "--db-dir", dir, "nope")
		if err == nil || !strings.Contains(err.Error(), "run not found") {
			t.Errorf("expected run not found, got %v", err)
		}
	})

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		_, err := executeHistory(t, "--db-dir", t.TempDir())
		if err == nil || !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected database not found, got %v", err)
		}
	})
}
