package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// JobRepository persists scheduler_jobs rows and implements the lease CAS
// that is the scheduler's sole cross-process coordination primitive.
type JobRepository struct {
	base
}

// NewJobRepository constructs a JobRepository.
func NewJobRepository(db *sql.DB, log zerolog.Logger) *JobRepository {
	return &JobRepository{base: newBase(db, log, "jobs")}
}

// UpsertJobDefinition idempotently inserts the job row. If the row already
// exists, only schedule fields (kind, interval, daily HH:MM, timezone,
// lease) are updated; next_run_at and the failure counter are left
// untouched so re-registering a job never resets its cadence.
func (r *JobRepository) UpsertJobDefinition(name string, kind ScheduleKind, intervalMs int64, dailyHHMM, timezone string, leaseMs int64, initialNextRunAt time.Time, now time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO scheduler_jobs
			(name, schedule_kind, interval_ms, daily_hhmm, timezone, lease_ms,
			 status, next_run_at, failure_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'idle', ?, 0, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			schedule_kind = excluded.schedule_kind,
			interval_ms   = excluded.interval_ms,
			daily_hhmm    = excluded.daily_hhmm,
			timezone      = excluded.timezone,
			lease_ms      = excluded.lease_ms,
			updated_at    = excluded.updated_at
	`,
		name, string(kind), intervalMs, dailyHHMM, timezone, leaseMs,
		formatTime(initialNextRunAt), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert job %s: %w", name, err)
	}
	return nil
}

// TryAcquireLease is the compare-and-set: succeeds iff next_run_at <= now
// and the lock is unowned or expired. On success the row is marked running
// and the lock extended to now+leaseMs.
func (r *JobRepository) TryAcquireLease(name string, now time.Time, leaseMs int64, owner string) (bool, error) {
	expires := now.Add(time.Duration(leaseMs) * time.Millisecond)
	res, err := r.db.Exec(`
		UPDATE scheduler_jobs
		SET status = 'running', lock_owner = ?, lock_expires_at = ?, updated_at = ?
		WHERE name = ?
		  AND next_run_at <= ?
		  AND (lock_expires_at IS NULL OR lock_expires_at <= ?)
	`, owner, formatTime(expires), formatTime(now), name, formatTime(now), formatTime(now))
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected for %s: %w", name, err)
	}
	return n == 1, nil
}

// MarkSuccess transitions a job to success and advances next_run_at.
// nextRunAt must be strictly greater than the row's prior value; that is
// the scheduler's responsibility to compute, not the store's to enforce.
func (r *JobRepository) MarkSuccess(name string, nextRunAt, now time.Time) error {
	_, err := r.db.Exec(`
		UPDATE scheduler_jobs
		SET status = 'success', next_run_at = ?, last_run_at = ?,
		    lock_owner = NULL, lock_expires_at = NULL, last_error = NULL, updated_at = ?
		WHERE name = ?
	`, formatTime(nextRunAt), formatTime(now), formatTime(now), name)
	if err != nil {
		return fmt.Errorf("failed to mark job %s success: %w", name, err)
	}
	return nil
}

// MarkFailed transitions a job to failed, increments the failure counter,
// records the error, and still advances next_run_at so a persistently
// failing handler cannot wedge the schedule.
func (r *JobRepository) MarkFailed(name string, nextRunAt, now time.Time, errMsg string) error {
	_, err := r.db.Exec(`
		UPDATE scheduler_jobs
		SET status = 'failed', next_run_at = ?, last_run_at = ?,
		    failure_count = failure_count + 1,
		    lock_owner = NULL, lock_expires_at = NULL, last_error = ?, updated_at = ?
		WHERE name = ?
	`, formatTime(nextRunAt), formatTime(now), errMsg, formatTime(now), name)
	if err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", name, err)
	}
	return nil
}

// RecoverStaleLeases demotes any row with status=running and an expired
// lock to failed, incrementing its counter and clearing the lock, without
// touching next_run_at so the next tick may fire it. Called once at
// scheduler startup.
func (r *JobRepository) RecoverStaleLeases(now time.Time, reason string) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE scheduler_jobs
		SET status = 'failed', failure_count = failure_count + 1,
		    lock_owner = NULL, lock_expires_at = NULL, last_error = ?, updated_at = ?
		WHERE status = 'running' AND lock_expires_at <= ?
	`, reason, formatTime(now), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale leases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read recovered row count: %w", err)
	}
	return n, nil
}

// Get reads a single job row by name.
func (r *JobRepository) Get(name string) (*JobRow, error) {
	row := r.db.QueryRow(`
		SELECT name, schedule_kind, interval_ms, daily_hhmm, timezone, lease_ms,
		       status, next_run_at, last_run_at, failure_count, lock_owner,
		       lock_expires_at, last_error, created_at, updated_at
		FROM scheduler_jobs WHERE name = ?
	`, name)
	job, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", name, err)
	}
	return job, nil
}

// List returns every registered job row.
func (r *JobRepository) List() ([]JobRow, error) {
	rows, err := r.db.Query(`
		SELECT name, schedule_kind, interval_ms, daily_hhmm, timezone, lease_ms,
		       status, next_run_at, last_run_at, failure_count, lock_owner,
		       lock_expires_at, last_error, created_at, updated_at
		FROM scheduler_jobs ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []JobRow
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(s rowScanner) (*JobRow, error) {
	var (
		j                                    JobRow
		intervalMs                           sql.NullInt64
		dailyHHMM, timezone                  sql.NullString
		nextRunAt                            string
		lastRunAt, lockExpiresAt             sql.NullString
		lockOwner, lastError                 sql.NullString
		createdAt, updatedAt                 string
		kind, status                         string
	)
	if err := s.Scan(&j.Name, &kind, &intervalMs, &dailyHHMM, &timezone, &j.LeaseMs,
		&status, &nextRunAt, &lastRunAt, &j.FailureCount, &lockOwner,
		&lockExpiresAt, &lastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	j.ScheduleKind = ScheduleKind(kind)
	j.Status = JobStatus(status)
	j.IntervalMs = intervalMs.Int64
	j.DailyHHMM = dailyHHMM.String
	j.Timezone = timezone.String
	j.LockOwner = lockOwner.String
	j.LastError = lastError.String

	t, err := parseTime(nextRunAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse next_run_at: %w", err)
	}
	j.NextRunAt = t

	if ct, err := parseTime(createdAt); err == nil {
		j.CreatedAt = ct
	}
	if ut, err := parseTime(updatedAt); err == nil {
		j.UpdatedAt = ut
	}
	if lastRunAt.Valid {
		if t, err := parseTime(lastRunAt.String); err == nil {
			j.LastRunAt = &t
		}
	}
	if lockExpiresAt.Valid {
		if t, err := parseTime(lockExpiresAt.String); err == nil {
			j.LockExpiresAt = &t
		}
	}

	return &j, nil
}
