package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetherfm/station/pkg/models"
)

// ToneService records tone-validator scores and serves daily aggregates.
type ToneService struct {
	pool *pgxpool.Pool
}

// NewToneService creates a new ToneService
func NewToneService(pool *pgxpool.Pool) *ToneService {
	return &ToneService{pool: pool}
}

// RecordScore stores one tone score for a segment.
func (s *ToneService) RecordScore(ctx context.Context, segmentID string, score int, flags []string) (*models.ToneScore, error) {
	if score < 0 || score > 100 {
		return nil, NewValidationError("score", "must be between 0 and 100")
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tone flags: %w", err)
	}
	if flags == nil {
		flagsJSON = []byte("[]")
	}

	ts := models.ToneScore{ID: uuid.NewString(), SegmentID: segmentID, Score: score, Flags: flags}
	err = s.pool.QueryRow(ctx, `
		INSERT INTO tone_scores (id, segment_id, score, flags) VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		ts.ID, ts.SegmentID, ts.Score, flagsJSON).Scan(&ts.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record tone score: %w", err)
	}
	return &ts, nil
}

// ToneAggregate summarizes one day of tone scores.
type ToneAggregate struct {
	Date         string         `json:"date"`
	SegmentCount int            `json:"segment_count"`
	AverageScore float64        `json:"average_score"`
	MinScore     int            `json:"min_score"`
	FlagCounts   map[string]int `json:"flag_counts"`
}

// AggregateDay computes the aggregate for the UTC day starting at dayStart.
func (s *ToneService) AggregateDay(ctx context.Context, dayStart time.Time) (*ToneAggregate, error) {
	dayEnd := dayStart.Add(24 * time.Hour)

	agg := &ToneAggregate{
		Date:       dayStart.Format("2006-01-02"),
		FlagCounts: make(map[string]int),
	}

	err := s.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(avg(score), 0), COALESCE(min(score), 0)
		FROM tone_scores
		WHERE created_at >= $1 AND created_at < $2`,
		dayStart, dayEnd).Scan(&agg.SegmentCount, &agg.AverageScore, &agg.MinScore)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tone scores: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT flag, count(*)
		FROM tone_scores, jsonb_array_elements_text(flags) AS flag
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY flag`,
		dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tone flags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var flag string
		var n int
		if err := rows.Scan(&flag, &n); err != nil {
			return nil, fmt.Errorf("failed to scan flag count: %w", err)
		}
		agg.FlagCounts[flag] = n
	}
	return agg, rows.Err()
}
