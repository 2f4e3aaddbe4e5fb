package jobstate

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

const jobSelect = `SELECT j.job_key, j.total_frames, j.last_run_id, j.created_at, j.updated_at,
       (SELECT COUNT(1) FROM processed_frames p WHERE p.job_key = j.job_key),
       (SELECT COUNT(1) FROM processed_frames p WHERE p.job_key = j.job_key AND p.run_id = j.last_run_id)
  FROM jobs j`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		key       string
		total     int
		runID     sql.NullString
		createdAt string
		updatedAt string
		processed int
		lastRun   int
	)
	if err := row.Scan(&key, &total, &runID, &createdAt, &updatedAt, &processed, &lastRun); err != nil {
		return nil, err
	}
	return &Job{
		Key:           JobKey(key),
		Total:         total,
		Processed:     processed,
		LastRunID:     runID.String,
		LastRunFrames: lastRun,
		CreatedAt:     parseTimestamp(createdAt),
		UpdatedAt:     parseTimestamp(updatedAt),
	}, nil
}

func validateKey(key JobKey) error {
	if strings.TrimSpace(string(key)) == "" {
		return errors.New("job key is required")
	}
	return nil
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}
