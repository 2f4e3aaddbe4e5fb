package jobstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"framepipe/internal/config"
)

// JobKey identifies the logical job whose progress is tracked.
type JobKey string

// Job summarizes the stored progress for one key.
type Job struct {
	Key       JobKey
	Total     int
	Processed int
	LastRunID string
	// LastRunFrames counts the frames completed by the LastRunID run.
	LastRunFrames int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Remaining returns the number of frames not yet marked processed.
func (j Job) Remaining() int {
	if j.Total <= j.Processed {
		return 0
	}
	return j.Total - j.Processed
}

// Store manages frame completion records backed by SQLite.
type Store struct {
	db   *sql.DB
	path string

	// mu serializes writers so membership insert and job bookkeeping
	// never interleave across workers.
	mu sync.Mutex
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the progress database under the configured
// state directory.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.DatabasePath())
}

// OpenPath opens the progress database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Begin records the start of a run for key with the expected frame total.
// Existing completion records are kept.
func (s *Store) Begin(ctx context.Context, key JobKey, total int, runID string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if total < 0 {
		return fmt.Errorf("begin job %s: negative total %d", key, total)
	}
	now := timestamp()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execWithRetry(ctx,
		`INSERT INTO jobs (job_key, total_frames, last_run_id, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(job_key) DO UPDATE SET
             total_frames = excluded.total_frames,
             last_run_id = excluded.last_run_id,
             updated_at = excluded.updated_at`,
		string(key), total, nullableString(runID), now, now,
	)
}

// IsProcessed reports whether frameID has been marked processed for key.
func (s *Store) IsProcessed(ctx context.Context, key JobKey, frameID string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM processed_frames WHERE job_key = ? AND frame_id = ?`,
		string(key), frameID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check processed frame: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed records frameID as completed for key by runID. Marking an
// already processed frame is a no-op and keeps the original run.
func (s *Store) MarkProcessed(ctx context.Context, key JobKey, frameID, runID string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if strings.TrimSpace(frameID) == "" {
		return errors.New("frame id is required")
	}
	now := timestamp()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.execWithRetry(ctx,
		`INSERT INTO processed_frames (job_key, frame_id, run_id, processed_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(job_key, frame_id) DO NOTHING`,
		string(key), frameID, nullableString(runID), now,
	); err != nil {
		return fmt.Errorf("mark frame processed: %w", err)
	}
	return nil
}

// ProcessedCount returns how many distinct frames are marked for key.
func (s *Store) ProcessedCount(ctx context.Context, key JobKey) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM processed_frames WHERE job_key = ?`, string(key),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count processed frames: %w", err)
	}
	return count, nil
}

// TotalCount returns the frame total recorded by Begin, or zero for an
// unknown key.
func (s *Store) TotalCount(ctx context.Context, key JobKey) (int, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT total_frames FROM jobs WHERE job_key = ?`, string(key),
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read job total: %w", err)
	}
	return total, nil
}

// Processed returns the set of frame identifiers marked for key.
func (s *Store) Processed(ctx context.Context, key JobKey) (map[string]struct{}, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT frame_id FROM processed_frames WHERE job_key = ?`, string(key))
	if err != nil {
		return nil, fmt.Errorf("list processed frames: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan processed frame: %w", err)
		}
		done[id] = struct{}{}
	}
	return done, rows.Err()
}

// Reset discards every record for key so the next run starts empty.
func (s *Store) Reset(ctx context.Context, key JobKey) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM processed_frames WHERE job_key = ?`, string(key)); err != nil {
		return fmt.Errorf("reset processed frames: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_key = ?`, string(key)); err != nil {
		return fmt.Errorf("reset job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// Job returns the stored summary for key, or nil when the key is unknown.
func (s *Store) Job(ctx context.Context, key JobKey) (*Job, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, jobSelect+` WHERE j.job_key = ?`, string(key))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Jobs lists every tracked job ordered by most recent activity.
func (s *Store) Jobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelect+` ORDER BY j.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
