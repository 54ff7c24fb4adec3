package models

import "time"

// HealthCheck is the per-worker-instance heartbeat row.
// An instance is healthy iff now - last_heartbeat < 2 * heartbeat_interval.
type HealthCheck struct {
	WorkerType    string    `json:"worker_type"`
	InstanceID    string    `json:"instance_id"`
	Status        string    `json:"status"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	JobsInFlight  int       `json:"jobs_in_flight"`
	UptimeSec     int64     `json:"uptime_sec"`
}

// Healthy reports liveness relative to the given heartbeat interval.
func (h *HealthCheck) Healthy(now time.Time, heartbeatInterval time.Duration) bool {
	return now.Sub(h.LastHeartbeat) < 2*heartbeatInterval
}

// ToneScore is the persisted tone-validation result for one generated script.
type ToneScore struct {
	ID        string    `json:"id"`
	SegmentID string    `json:"segment_id"`
	Score     int       `json:"score"` // 0..100
	Flags     []string  `json:"flags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
