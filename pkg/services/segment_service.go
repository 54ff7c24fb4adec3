package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/models"
)

const segmentColumns = `id, program_id, slot_type, state, lang, script_md, asset_id,
	duration_sec, scheduled_start_ts, aired_at, retry_count, max_retries,
	last_error, citations, cache_key, idempotency_key, priority, created_at, updated_at`

// SegmentService manages broadcast segments and enforces the segment state
// machine. Every transition goes through a row lock so concurrent writers
// serialize on the segment.
type SegmentService struct {
	pool *pgxpool.Pool
}

// NewSegmentService creates a new SegmentService
func NewSegmentService(pool *pgxpool.Pool) *SegmentService {
	return &SegmentService{pool: pool}
}

// CreateSegmentRequest is the input for segment creation.
type CreateSegmentRequest struct {
	ProgramID        *string         `json:"program_id,omitempty"`
	SlotType         models.SlotType `json:"slot_type"`
	Lang             string          `json:"lang,omitempty"`
	ScheduledStartTS *time.Time      `json:"scheduled_start_ts,omitempty"`
	Priority         int             `json:"priority,omitempty"`
	IdempotencyKey   *string         `json:"idempotency_key,omitempty"`
}

// CreateSegment inserts a new queued segment. With an idempotency key, a
// repeated call returns the previously created segment instead of a new row.
func (s *SegmentService) CreateSegment(ctx context.Context, req CreateSegmentRequest) (*models.Segment, error) {
	if err := models.SlotTypeValidator(req.SlotType); err != nil {
		return nil, NewValidationError("slot_type", err.Error())
	}
	if req.Lang == "" {
		req.Lang = "en"
	}
	if req.Priority == 0 {
		req.Priority = 5
	}

	id := uuid.NewString()
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO segments (id, program_id, slot_type, state, lang, scheduled_start_ts, priority, idempotency_key)
		VALUES ($1, $2, $3, 'queued', $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`,
		id, req.ProgramID, req.SlotType, req.Lang, req.ScheduledStartTS, req.Priority, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment: %w", err)
	}

	if tag.RowsAffected() == 0 && req.IdempotencyKey != nil {
		return s.getByIdempotencyKey(ctx, *req.IdempotencyKey)
	}
	return s.GetSegment(ctx, id)
}

// GetSegment retrieves a segment by ID.
func (s *SegmentService) GetSegment(ctx context.Context, id string) (*models.Segment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = $1`, id)
	return scanSegment(row)
}

func (s *SegmentService) getByIdempotencyKey(ctx context.Context, key string) (*models.Segment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE idempotency_key = $1`, key)
	return scanSegment(row)
}

// Transition moves a segment to the next state, enforcing the transition
// table under a row lock. Illegal transitions are integrity faults.
func (s *SegmentService) Transition(ctx context.Context, id string, to models.SegmentState) (*models.Segment, error) {
	return s.transition(ctx, id, to, func(q string, args ...any) (string, []any) { return q, args })
}

// transition locks the row, checks legality, and applies the update plus any
// extra column assignments produced by mutate.
func (s *SegmentService) transition(ctx context.Context, id string, to models.SegmentState,
	mutate func(q string, args ...any) (string, []any)) (*models.Segment, error) {

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	var from models.SegmentState
	err = tx.QueryRow(ctx, `SELECT state FROM segments WHERE id = $1 FOR UPDATE`, id).Scan(&from)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock segment: %w", err)
	}

	if from == to {
		// Idempotent re-application (e.g. now-playing delivered twice).
		row := tx.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = $1`, id)
		seg, err := scanSegment(row)
		if err != nil {
			return nil, err
		}
		return seg, tx.Commit(ctx)
	}

	if !models.CanTransition(from, to) {
		return nil, faults.Integrityf("illegal segment transition %s -> %s for %s", from, to, id)
	}

	q, args := mutate(`UPDATE segments SET state = $2, updated_at = now() WHERE id = $1`, id, to)
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return nil, fmt.Errorf("failed to transition segment: %w", err)
	}

	row := tx.QueryRow(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id = $1`, id)
	seg, err := scanSegment(row)
	if err != nil {
		return nil, err
	}
	return seg, tx.Commit(ctx)
}

// SetScript persists the generated script and its citations.
func (s *SegmentService) SetScript(ctx context.Context, id, scriptMD string, citations []models.Citation) error {
	data, err := json.Marshal(citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}
	if citations == nil {
		data = []byte("[]")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE segments SET script_md = $2, citations = $3, updated_at = now() WHERE id = $1`,
		id, scriptMD, data)
	if err != nil {
		return fmt.Errorf("failed to set script: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BindAsset links the segment to an asset and records the audio duration.
func (s *SegmentService) BindAsset(ctx context.Context, id, assetID string, durationSec *float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE segments SET asset_id = $2, duration_sec = COALESCE($3, duration_sec), updated_at = now()
		WHERE id = $1`,
		id, assetID, durationSec)
	if err != nil {
		return fmt.Errorf("failed to bind asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure stores the failure message and bumps the retry counter. The
// segment stays in its current intermediate state; the job queue owns the
// retry schedule.
func (s *SegmentService) RecordFailure(ctx context.Context, id string, failure error) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE segments SET last_error = $2, retry_count = retry_count + 1, updated_at = now()
		WHERE id = $1`,
		id, failure.Error())
	if err != nil {
		return fmt.Errorf("failed to record segment failure: %w", err)
	}
	return nil
}

// MarkFailed transitions the segment to failed with the message recorded.
func (s *SegmentService) MarkFailed(ctx context.Context, id string, failure error) (*models.Segment, error) {
	return s.transition(ctx, id, models.SegmentStateFailed, func(q string, args ...any) (string, []any) {
		return `UPDATE segments SET state = $2, last_error = $3, updated_at = now() WHERE id = $1`,
			append(args, failure.Error())
	})
}

// Requeue moves a failed segment back to queued for a manual retry and
// clears the error.
func (s *SegmentService) Requeue(ctx context.Context, id string) (*models.Segment, error) {
	return s.transition(ctx, id, models.SegmentStateQueued, func(q string, args ...any) (string, []any) {
		return `UPDATE segments SET state = $2, last_error = NULL, updated_at = now() WHERE id = $1`, args
	})
}

// NextReady returns up to limit ready segments with audio, in playout order:
// earliest scheduled start first, then highest priority.
func (s *SegmentService) NextReady(ctx context.Context, limit int) ([]*models.Segment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+segmentColumns+` FROM segments
		WHERE state = 'ready' AND asset_id IS NOT NULL
		ORDER BY scheduled_start_ts ASC NULLS LAST, priority DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ready segments: %w", err)
	}
	defer rows.Close()

	var segments []*models.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// MarkAiring transitions ready -> airing. Idempotent if already airing.
func (s *SegmentService) MarkAiring(ctx context.Context, id string) (*models.Segment, error) {
	return s.Transition(ctx, id, models.SegmentStateAiring)
}

// MarkAired transitions airing -> aired and stamps the air time.
func (s *SegmentService) MarkAired(ctx context.Context, id string, airedAt time.Time) (*models.Segment, error) {
	return s.transition(ctx, id, models.SegmentStateAired, func(q string, args ...any) (string, []any) {
		return `UPDATE segments SET state = $2, aired_at = $3, updated_at = now() WHERE id = $1`,
			append(args, airedAt)
	})
}

// ArchiveAiredBefore bulk-archives segments that aired before the cutoff.
// Returns the number of segments archived.
func (s *SegmentService) ArchiveAiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE segments SET state = 'archived', updated_at = now()
		WHERE state = 'aired' AND aired_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to archive aired segments: %w", err)
	}
	return tag.RowsAffected(), nil
}

// scanSegment reads one segment row.
func scanSegment(row pgx.Row) (*models.Segment, error) {
	var seg models.Segment
	var citations []byte
	err := row.Scan(&seg.ID, &seg.ProgramID, &seg.SlotType, &seg.State, &seg.Lang,
		&seg.ScriptMD, &seg.AssetID, &seg.DurationSec, &seg.ScheduledStartTS,
		&seg.AiredAt, &seg.RetryCount, &seg.MaxRetries, &seg.LastError,
		&citations, &seg.CacheKey, &seg.IdempotencyKey, &seg.Priority,
		&seg.CreatedAt, &seg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan segment: %w", err)
	}
	if err := json.Unmarshal(citations, &seg.Citations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal citations: %w", err)
	}
	return &seg, nil
}
