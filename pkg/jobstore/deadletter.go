package jobstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/aetherfm/station/pkg/models"
)

const deadLetterColumns = `id, job_type, payload, failure_reason, attempts_made, reviewed_at, created_at`

// ListDeadLetters returns quarantined jobs, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	letters, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.DeadLetter])
	if err != nil {
		return nil, fmt.Errorf("failed to collect dead letters: %w", err)
	}
	return letters, nil
}

// RequeueDeadLetter re-enqueues a quarantined payload as a fresh job and
// stamps the dead letter reviewed. Operator action only.
func (s *Store) RequeueDeadLetter(ctx context.Context, deadLetterID string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var dl models.DeadLetter
	err = tx.QueryRow(ctx,
		`SELECT `+deadLetterColumns+` FROM dead_letters WHERE id = $1 FOR UPDATE`, deadLetterID).
		Scan(&dl.ID, &dl.JobType, &dl.Payload, &dl.FailureReason, &dl.AttemptsMade,
			&dl.ReviewedAt, &dl.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to load dead letter: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE dead_letters SET reviewed_at = now() WHERE id = $1`, deadLetterID); err != nil {
		return "", fmt.Errorf("failed to mark dead letter reviewed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit dead letter review: %w", err)
	}

	jobID, err := s.Enqueue(ctx, dl.JobType, dl.Payload, EnqueueOptions{Priority: 5})
	if err != nil {
		return "", fmt.Errorf("failed to re-enqueue dead letter: %w", err)
	}

	slog.Info("Dead letter requeued",
		"dead_letter_id", deadLetterID, "job_id", jobID, "type", dl.JobType)
	return jobID, nil
}
