package database

import (
	"context"
	"fmt"

	"github.com/nao1215/pagemirror/internal/model"
)

// LoadSummary rebuilds the summary of a stored run so it can be rendered by
// the report writers again. Page failures are attached to the page that
// first dispatched the asset.
func (m *ManifestDB) LoadSummary(ctx context.Context, runID string) (*model.RunSummary, error) {
	run, err := m.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	pages, err := m.ListPages(ctx, runID)
	if err != nil {
		return nil, err
	}

	failures, err := m.failuresByPage(ctx, runID)
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{
		RunID:       run.ID,
		Website:     run.Website,
		OutputDir:   run.OutputDir,
		Pages:       make([]*model.ScrapeResult, 0, len(pages)),
		TotalAssets: run.TotalAssets,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
	for _, p := range pages {
		summary.Pages = append(summary.Pages, &model.ScrapeResult{
			Path:           p.Path,
			URL:            model.NormalizedURL(p.URL),
			LocalPath:      p.LocalPath,
			State:          p.State,
			Found:          p.Found,
			New:            p.New,
			Downloaded:     p.Downloaded,
			AlreadyPresent: p.AlreadyPresent,
			Failed:         p.Failed,
			Skipped:        p.Skipped,
			Failures:       failures[p.Path],
			Error:          p.Error,
			Elapsed:        p.Elapsed,
		})
	}
	return summary, nil
}

func (m *ManifestDB) failuresByPage(ctx context.Context, runID string) (map[string][]model.AssetOutcome, error) {
	query := `
	SELECT page_path, url, COALESCE(source, ''), COALESCE(local_path, ''), status_code, COALESCE(error, '')
	FROM assets
	WHERE run_id = ? AND status = ?
	ORDER BY id
	`

	rows, err := m.db.QueryContext(ctx, query, runID, string(model.AssetFailed))
	if err != nil {
		return nil, fmt.Errorf("failed to list failed assets: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]model.AssetOutcome)
	for rows.Next() {
		var page, u, source string
		o := model.AssetOutcome{Status: model.AssetFailed}
		if err := rows.Scan(&page, &u, &source, &o.LocalPath, &o.StatusCode, &o.Error); err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		o.URL = model.NormalizedURL(u)
		o.Source = model.Source(source)
		out[page] = append(out[page], o)
	}
	return out, rows.Err()
}
