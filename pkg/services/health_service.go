package services

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetherfm/station/pkg/models"
)

// HealthService persists worker heartbeats. It implements the worker
// runtime's Heartbeats interface.
type HealthService struct {
	pool *pgxpool.Pool
}

// NewHealthService creates a new HealthService
func NewHealthService(pool *pgxpool.Pool) *HealthService {
	return &HealthService{pool: pool}
}

// Beat upserts the worker's health row.
func (s *HealthService) Beat(ctx context.Context, hc models.HealthCheck) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO health_checks (worker_type, instance_id, status, last_heartbeat, jobs_in_flight, uptime_sec)
		VALUES ($1, $2, $3, now(), $4, $5)
		ON CONFLICT (worker_type, instance_id) DO UPDATE
		SET status = $3, last_heartbeat = now(), jobs_in_flight = $4, uptime_sec = $5`,
		hc.WorkerType, hc.InstanceID, hc.Status, hc.JobsInFlight, hc.UptimeSec)
	if err != nil {
		return fmt.Errorf("failed to upsert heartbeat: %w", err)
	}
	return nil
}

// ListWorkers returns every worker's latest health row.
func (s *HealthService) ListWorkers(ctx context.Context) ([]models.HealthCheck, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT worker_type, instance_id, status, last_heartbeat, jobs_in_flight, uptime_sec
		FROM health_checks
		ORDER BY worker_type, instance_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var checks []models.HealthCheck
	for rows.Next() {
		var hc models.HealthCheck
		if err := rows.Scan(&hc.WorkerType, &hc.InstanceID, &hc.Status,
			&hc.LastHeartbeat, &hc.JobsInFlight, &hc.UptimeSec); err != nil {
			return nil, fmt.Errorf("failed to scan health check: %w", err)
		}
		checks = append(checks, hc)
	}
	return checks, rows.Err()
}
