package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-optimizer/internal/logging"
	"media-optimizer/internal/metrics"
)

// Default timeout for ledger operations
const defaultTimeout = 5 * time.Second

// FileName is the ledger's file name inside the cache directory.
const FileName = "ledger.db"

// Ledger records cache traffic and build history in SQLite.
type Ledger struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the ledger at dbPath. The parent directory must exist.
func Open(ctx context.Context, dbPath string) (*Ledger, error) {
	logging.Debug("Ledger path: %s", dbPath)

	// WAL lets concurrent builds sharing a cache directory read while one writes.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close ledger after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	l := &Ledger{db: db, dbPath: dbPath}
	if err := l.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close ledger after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}

	return l, nil
}

func (l *Ledger) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		size INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		last_used_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		hits INTEGER NOT NULL DEFAULT 0,
		misses INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_last_used ON cache_entries(last_used_at);

	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		output_dir TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER,
		pages INTEGER NOT NULL DEFAULT 0,
		refs INTEGER NOT NULL DEFAULT 0,
		derivatives INTEGER NOT NULL DEFAULT 0,
		hits INTEGER NOT NULL DEFAULT 0,
		misses INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'running',
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_builds_started ON builds(started_at);
	`

	start := time.Now()
	_, err := l.db.ExecContext(ctx, schema)
	recordQuery("initialize_schema", start, err)
	return err
}

// Close closes the ledger connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the ledger file path.
func (l *Ledger) Path() string {
	return l.dbPath
}

// RecordHit implements cache.Recorder.
func (l *Ledger) RecordHit(ctx context.Context, key string) error {
	start := time.Now()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, hits, last_used_at) VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET hits = hits + 1, last_used_at = excluded.last_used_at
	`, key, time.Now().Unix())
	recordQuery("record_hit", start, err)
	return err
}

// RecordMiss implements cache.Recorder.
func (l *Ledger) RecordMiss(ctx context.Context, key string) error {
	start := time.Now()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, misses, last_used_at) VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET misses = misses + 1, last_used_at = excluded.last_used_at
	`, key, time.Now().Unix())
	recordQuery("record_miss", start, err)
	return err
}

// RecordPopulate implements cache.Recorder.
func (l *Ledger) RecordPopulate(ctx context.Context, key string, size int64) error {
	start := time.Now()
	now := time.Now().Unix()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, size, created_at, last_used_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET size = excluded.size, created_at = excluded.created_at,
			last_used_at = excluded.last_used_at
	`, key, size, now, now)
	recordQuery("record_populate", start, err)
	return err
}

// BeginBuild records the start of a build and returns its id.
func (l *Ledger) BeginBuild(ctx context.Context, outputDir string) (string, error) {
	id := uuid.NewString()
	start := time.Now()
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO builds (id, output_dir, started_at) VALUES (?, ?, ?)
	`, id, outputDir, start.Unix())
	recordQuery("begin_build", start, err)
	if err != nil {
		return "", fmt.Errorf("begin build: %w", err)
	}
	return id, nil
}

// BuildResult is written when a build finishes.
type BuildResult struct {
	Pages       int
	References  int
	Derivatives int
	Hits        int
	Misses      int
	Err         error
}

// FinishBuild records the outcome of a build started with BeginBuild.
func (l *Ledger) FinishBuild(ctx context.Context, id string, r BuildResult) error {
	status := "success"
	var errText sql.NullString
	if r.Err != nil {
		status = "error"
		errText = sql.NullString{String: r.Err.Error(), Valid: true}
	}

	start := time.Now()
	_, err := l.db.ExecContext(ctx, `
		UPDATE builds SET finished_at = ?, pages = ?, refs = ?, derivatives = ?,
			hits = ?, misses = ?, status = ?, error = ?
		WHERE id = ?
	`, start.Unix(), r.Pages, r.References, r.Derivatives, r.Hits, r.Misses, status, errText, id)
	recordQuery("finish_build", start, err)
	return err
}

// Stats summarises the ledger.
type Stats struct {
	Entries    int
	TotalBytes int64
	Hits       int64
	Misses     int64
	Builds     int
	LastBuild  *time.Time
}

// HitRatio returns hits / (hits + misses), or 0 when there was no traffic.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Stats returns aggregate counters.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	var s Stats
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN size > 0 THEN 1 ELSE 0 END), 0), COALESCE(SUM(size), 0),
			COALESCE(SUM(hits), 0), COALESCE(SUM(misses), 0)
		FROM cache_entries
	`).Scan(&s.Entries, &s.TotalBytes, &s.Hits, &s.Misses)
	if err == nil {
		var last sql.NullInt64
		err = l.db.QueryRowContext(ctx, `
			SELECT COUNT(*), MAX(started_at) FROM builds
		`).Scan(&s.Builds, &last)
		if last.Valid {
			ts := time.Unix(last.Int64, 0)
			s.LastBuild = &ts
		}
	}
	recordQuery("stats", start, err)
	if err != nil {
		return Stats{}, fmt.Errorf("ledger stats: %w", err)
	}
	return s, nil
}

// Build is one row of build history.
type Build struct {
	ID          string
	OutputDir   string
	StartedAt   time.Time
	Duration    time.Duration
	Pages       int
	References  int
	Derivatives int
	Hits        int
	Misses      int
	Status      string
	Error       string
}

// RecentBuilds returns up to limit builds, newest first.
func (l *Ledger) RecentBuilds(ctx context.Context, limit int) ([]Build, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, output_dir, started_at, finished_at, pages, refs, derivatives, hits, misses, status, error
		FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		recordQuery("recent_builds", start, err)
		return nil, fmt.Errorf("recent builds: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logging.Warn("failed to close rows: %v", err)
		}
	}()

	var builds []Build
	for rows.Next() {
		var (
			b        Build
			started  int64
			finished sql.NullInt64
			errText  sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.OutputDir, &started, &finished, &b.Pages, &b.References,
			&b.Derivatives, &b.Hits, &b.Misses, &b.Status, &errText); err != nil {
			recordQuery("recent_builds", start, err)
			return nil, err
		}
		b.StartedAt = time.Unix(started, 0)
		if finished.Valid {
			b.Duration = time.Unix(finished.Int64, 0).Sub(b.StartedAt)
		}
		b.Error = errText.String
		builds = append(builds, b)
	}
	err = rows.Err()
	recordQuery("recent_builds", start, err)
	return builds, err
}

// Clear forgets all cache entries. Build history is kept.
func (l *Ledger) Clear(ctx context.Context) error {
	start := time.Now()
	_, err := l.db.ExecContext(ctx, "DELETE FROM cache_entries")
	recordQuery("clear", start, err)
	return err
}

// recordQuery records ledger query metrics
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LedgerQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.LedgerQueryDuration.WithLabelValues(operation).Observe(duration)
}
