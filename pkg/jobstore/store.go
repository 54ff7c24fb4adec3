// Package jobstore implements the durable job queue: enqueue, lease-based
// claim, completion, failure with exponential backoff, and dead-letter
// quarantine. All operations are atomic with respect to concurrent workers.
package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/models"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no claimable job exists for the type.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrLeaseLost indicates the caller no longer owns the job's lease.
	ErrLeaseLost = errors.New("job lease lost")

	// ErrNotFound indicates the job does not exist.
	ErrNotFound = errors.New("job not found")
)

// NotifyChannel returns the wake-up channel name for a job type.
func NotifyChannel(jobType string) string {
	return "new_job_" + jobType
}

// Store is the single owner of job and dead-letter rows.
type Store struct {
	pool *pgxpool.Pool
	cfg  *config.QueueConfig
}

// NewStore creates a job store.
func NewStore(pool *pgxpool.Pool, cfg *config.QueueConfig) *Store {
	return &Store{pool: pool, cfg: cfg}
}

// EnqueueOptions tune a single enqueue.
type EnqueueOptions struct {
	Priority    int           // 0..10, default 5
	Delay       time.Duration // scheduled_for = now + delay
	MaxAttempts int           // default from config
}

const jobColumns = `id, type, payload, priority, state, scheduled_for, attempts,
	max_attempts, lease_owner, lease_expires_at, last_error, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.Type, &j.Payload, &j.Priority, &j.State,
		&j.ScheduledFor, &j.Attempts, &j.MaxAttempts, &j.LeaseOwner,
		&j.LeaseExpiresAt, &j.LastError, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// Enqueue inserts a pending job and emits a NOTIFY on new_job_<type> in the
// same transaction, so wake-ups are never delivered for invisible rows.
func (s *Store) Enqueue(ctx context.Context, jobType string, payload []byte, opts EnqueueOptions) (string, error) {
	if jobType == "" {
		return "", fmt.Errorf("job type is required")
	}
	if opts.Priority < 0 || opts.Priority > 10 {
		return "", fmt.Errorf("priority %d out of range [0,10]", opts.Priority)
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.cfg.DefaultMaxAttempts
	}

	id := uuid.New().String()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (id, type, payload, priority, state, scheduled_for, max_attempts)
		VALUES ($1, $2, $3, $4, 'pending', now() + $5, $6)`,
		id, jobType, payload, opts.Priority, opts.Delay, maxAttempts)
	if err != nil {
		return "", fmt.Errorf("failed to insert job: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel(jobType), id); err != nil {
		return "", fmt.Errorf("failed to notify: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit enqueue: %w", err)
	}

	slog.Debug("Job enqueued", "job_id", id, "type", jobType, "priority", opts.Priority)
	return id, nil
}

// Claim atomically claims the highest-priority, oldest claimable job of the
// given type for workerID, using FOR UPDATE SKIP LOCKED so concurrent
// claimers never block each other. Returns ErrNoJobsAvailable when the queue
// is empty.
func (s *Store) Claim(ctx context.Context, jobType, workerID string, lease time.Duration) (*models.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		SELECT id FROM jobs
		WHERE type = $1 AND state = 'pending' AND scheduled_for <= now()
		ORDER BY priority DESC, scheduled_for ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, jobType).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, fmt.Errorf("failed to query claimable job: %w", err)
	}

	job, err := scanJob(tx.QueryRow(ctx, `
		UPDATE jobs
		SET state = 'processing',
		    lease_owner = $2,
		    lease_expires_at = now() + $3,
		    attempts = attempts + 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+jobColumns, id, workerID, lease))
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	return job, nil
}

// RenewLease extends the lease iff workerID still owns it.
func (s *Store) RenewLease(ctx context.Context, jobID, workerID string, lease time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET lease_expires_at = now() + $3, updated_at = now()
		WHERE id = $1 AND lease_owner = $2 AND state = 'processing'`,
		jobID, workerID, lease)
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Complete transitions processing → completed. Repeating the call on an
// already-completed job is a no-op.
func (s *Store) Complete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET state = 'completed', lease_owner = NULL, lease_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1 AND state = 'processing'`, jobID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail records a handler failure. Transient and semantic failures below the
// attempt budget are re-scheduled with exponential backoff; exhausted or
// integrity/validation failures are dead-lettered. Idempotent on terminal
// states.
func (s *Store) Fail(ctx context.Context, jobID string, failure error) error {
	kind := faults.KindOf(failure)
	reason := fmt.Sprintf("[%s] %s", kind, failure.Error())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	job, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	// Terminal states absorb repeated Fail calls.
	if job.State == models.JobStateCompleted || job.State == models.JobStateFailed {
		return tx.Commit(ctx)
	}

	retry := faults.Retryable(kind) && job.Attempts < job.MaxAttempts
	if retry {
		delay := Backoff(s.cfg.BackoffBase, s.cfg.BackoffMax, job.Attempts)
		_, err = tx.Exec(ctx, `
			UPDATE jobs
			SET state = 'pending',
			    scheduled_for = now() + $2,
			    lease_owner = NULL, lease_expires_at = NULL,
			    last_error = $3, updated_at = now()
			WHERE id = $1`, jobID, delay, reason)
		if err != nil {
			return fmt.Errorf("failed to reschedule job: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit reschedule: %w", err)
		}
		slog.Warn("Job failed, rescheduled with backoff",
			"job_id", jobID, "attempts", job.Attempts, "delay", delay, "error", reason)
		return nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE jobs
		SET state = 'failed', lease_owner = NULL, lease_expires_at = NULL,
		    last_error = $2, updated_at = now()
		WHERE id = $1`, jobID, reason)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO dead_letters (id, job_type, payload, failure_reason, attempts_made)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), job.Type, job.Payload, reason, job.Attempts)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dead letter: %w", err)
	}
	slog.Error("Job dead-lettered",
		"job_id", jobID, "type", job.Type, "attempts", job.Attempts, "error", reason)
	return nil
}

// Backoff computes the retry delay for the given completed attempt count:
// base * 2^(attempts-1), capped at max.
func Backoff(base, max time.Duration, attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Get loads a job by id.
func (s *Store) Get(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	return job, nil
}

// PendingCount returns the queue depth for a job type.
func (s *Store) PendingCount(ctx context.Context, jobType string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE type = $1 AND state = 'pending'`, jobType).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return n, nil
}

// PurgeCompletedBefore deletes completed jobs last touched before the
// cutoff. Returns the number of rows removed.
func (s *Store) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE state = 'completed' AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge completed jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ReclaimOwn fails over any processing jobs still leased to workerID.
// Called once at startup, before the runtimes begin claiming, so a crashed
// process does not leave its own jobs waiting for the reaper.
func (s *Store) ReclaimOwn(ctx context.Context, workerID string) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE state = 'processing' AND lease_owner = $1`, workerID)
	if err != nil {
		return fmt.Errorf("failed to query startup orphans: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("failed to collect startup orphans: %w", err)
	}

	if len(ids) == 0 {
		return nil
	}
	slog.Warn("Found startup orphan jobs from previous run",
		"worker_id", workerID, "count", len(ids))

	for _, id := range ids {
		if err := s.Fail(ctx, id, faults.Transient(
			fmt.Errorf("worker %s restarted while job was in progress", workerID))); err != nil {
			slog.Error("Failed to reclaim startup orphan", "job_id", id, "error", err)
		}
	}
	return nil
}
