package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/pagemirror/internal/model"
)

// FileName is the name of the manifest database inside its directory.
const FileName = "pagemirror.db"

// ErrRunNotFound is returned when a run ID is not in the manifest.
var ErrRunNotFound = errors.New("run not found")

// ManifestDB stores mirror runs, their pages and their asset outcomes.
type ManifestDB struct {
	db     *sql.DB
	dbPath string
}

// Options configures ManifestDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the manifest in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ManifestDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &ManifestDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := mdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Path returns the database file path.
func (m *ManifestDB) Path() string {
	return m.dbPath
}

// Close closes the database connection.
func (m *ManifestDB) Close() error {
	return m.db.Close()
}

func (m *ManifestDB) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		website TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		total_assets INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_website ON runs(website);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	CREATE TABLE IF NOT EXISTS pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		path TEXT NOT NULL,
		url TEXT NOT NULL,
		local_path TEXT,
		state TEXT NOT NULL,
		found INTEGER DEFAULT 0,
		new_assets INTEGER DEFAULT 0,
		downloaded INTEGER DEFAULT 0,
		already_present INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		error TEXT,
		elapsed_ms INTEGER DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON pages(run_id);

	-- One row per dispatched asset; already-present assets found on disk are included.
	CREATE TABLE IF NOT EXISTS assets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		page_path TEXT NOT NULL,
		url TEXT NOT NULL,
		source TEXT,
		status TEXT NOT NULL,
		local_path TEXT,
		content_type TEXT,
		bytes INTEGER DEFAULT 0,
		status_code INTEGER DEFAULT 0,
		error TEXT,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_assets_run ON assets(run_id);
	CREATE INDEX IF NOT EXISTS idx_assets_status ON assets(status);
	`

	_, err := m.db.ExecContext(context.Background(), schema)
	return err
}

// Run records one mirror run. It satisfies scraper.Recorder.
type Run struct {
	db *ManifestDB
	id string
}

// ID returns the run ID.
func (r *Run) ID() string {
	return r.id
}

// BeginRun inserts a new run and returns its recorder.
func (m *ManifestDB) BeginRun(ctx context.Context, website, outputDir string) (*Run, error) {
	id := uuid.NewString()
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO runs (id, website, output_dir, started_at) VALUES (?, ?, ?, ?)`,
		id, website, outputDir, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to begin run: %w", err)
	}
	return &Run{db: m, id: id}, nil
}

// RecordPage stores the result of one page.
func (r *Run) RecordPage(ctx context.Context, page *model.ScrapeResult) error {
	query := `
	INSERT INTO pages (run_id, path, url, local_path, state, found, new_assets, downloaded,
		already_present, failed, skipped, error, elapsed_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.db.ExecContext(ctx, query,
		r.id,
		page.Path,
		string(page.URL),
		page.LocalPath,
		string(page.State),
		page.Found,
		page.New,
		page.Downloaded,
		page.AlreadyPresent,
		page.Failed,
		page.Skipped,
		page.Error,
		page.Elapsed.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record page %s: %w", page.Path, err)
	}
	return nil
}

// RecordAssets stores the asset outcomes of one page in a single transaction.
func (r *Run) RecordAssets(ctx context.Context, pagePath string, outcomes []model.AssetOutcome) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO assets (run_id, page_path, url, source, status, local_path, content_type, bytes, status_code, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		status = excluded.status,
		local_path = excluded.local_path,
		content_type = excluded.content_type,
		bytes = excluded.bytes,
		status_code = excluded.status_code,
		error = excluded.error
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare asset insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range outcomes {
		_, err := stmt.ExecContext(ctx,
			r.id,
			pagePath,
			string(o.URL),
			string(o.Source),
			string(o.Status),
			o.LocalPath,
			o.ContentType,
			o.Bytes,
			o.StatusCode,
			o.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to record asset %s: %w", o.URL, err)
		}
	}

	return tx.Commit()
}

// Finish closes the run with the total number of downloaded assets.
func (r *Run) Finish(ctx context.Context, totalAssets int) error {
	_, err := r.db.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, total_assets = ? WHERE id = ?`,
		time.Now().UTC().Format(timeLayout), totalAssets, r.id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// RunRecord is a stored run with its page and failure counts.
type RunRecord struct {
	ID           string
	Website      string
	OutputDir    string
	StartedAt    time.Time
	FinishedAt   time.Time
	TotalAssets  int
	Pages        int
	FailedPages  int
	FailedAssets int
}

// Finished reports whether the run was closed with Finish.
func (r RunRecord) Finished() bool {
	return !r.FinishedAt.IsZero()
}

const runColumns = `
	SELECT r.id, r.website, r.output_dir, r.started_at, COALESCE(r.finished_at, ''), r.total_assets,
		(SELECT COUNT(*) FROM pages p WHERE p.run_id = r.id),
		(SELECT COUNT(*) FROM pages p WHERE p.run_id = r.id AND p.state = 'failed'),
		(SELECT COUNT(*) FROM assets a WHERE a.run_id = r.id AND a.status = 'failed')
	FROM runs r
	`

// ListRuns returns runs, newest first. An empty website lists every site;
// limit <= 0 means no limit.
func (m *ManifestDB) ListRuns(ctx context.Context, website string, limit int) ([]RunRecord, error) {
	query := runColumns + " WHERE 1=1"
	args := make([]any, 0, 2)

	if website != "" {
		query += " AND r.website = ?"
		args = append(args, website)
	}
	query += " ORDER BY r.started_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns one run by ID, or ErrRunNotFound.
func (m *ManifestDB) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := m.db.QueryRowContext(ctx, runColumns+" WHERE r.id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var run RunRecord
	var started, finished string
	err := s.Scan(
		&run.ID,
		&run.Website,
		&run.OutputDir,
		&started,
		&finished,
		&run.TotalAssets,
		&run.Pages,
		&run.FailedPages,
		&run.FailedAssets,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return run, err
	}
	if err != nil {
		return run, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTimestamp(started)
	run.FinishedAt = parseTimestamp(finished)
	return run, nil
}

// PageRecord is a stored page result.
type PageRecord struct {
	Path           string
	URL            string
	LocalPath      string
	State          model.PageState
	Found          int
	New            int
	Downloaded     int
	AlreadyPresent int
	Failed         int
	Skipped        int
	Error          string
	Elapsed        time.Duration
}

// ListPages returns the pages of a run in the order they were scraped.
func (m *ManifestDB) ListPages(ctx context.Context, runID string) ([]PageRecord, error) {
	query := `
	SELECT path, url, COALESCE(local_path, ''), state, found, new_assets, downloaded,
		already_present, failed, skipped, COALESCE(error, ''), elapsed_ms
	FROM pages
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := m.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []PageRecord
	for rows.Next() {
		var p PageRecord
		var state string
		var elapsedMS int64
		if err := rows.Scan(&p.Path, &p.URL, &p.LocalPath, &state, &p.Found, &p.New, &p.Downloaded,
			&p.AlreadyPresent, &p.Failed, &p.Skipped, &p.Error, &elapsedMS); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.State = model.PageState(state)
		p.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// timeLayout has fixed-width fractions so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// timestampFormats contains the timestamp formats that SQLite may return.
// More specific formats come first.
var timestampFormats = []string{
	timeLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999",
}

// parseTimestamp parses s with the first matching format, or returns the
// zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
