package config

import "time"

// QueueConfig contains job store and worker runtime configuration.
// These values control how jobs are claimed, leased, retried, and reaped.
type QueueConfig struct {
	// MaxConcurrentJobs is the number of jobs a single worker runtime
	// processes concurrently.
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// PollInterval is the fallback claim interval when no NOTIFY wake-up
	// arrives.
	PollInterval time.Duration `yaml:"poll_interval"`

	// LeaseSeconds is the length of a job lease. A per-job background task
	// renews the lease every LeaseSeconds/2 until the handler returns.
	LeaseSeconds int `yaml:"lease_seconds"`

	// HeartbeatInterval is how often a runtime upserts its health row.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// ReaperInterval is how often the reaper scans for stale leases.
	ReaperInterval time.Duration `yaml:"reaper_interval"`

	// BackoffBase and BackoffMax bound the exponential retry delay:
	// delay = base * 2^(attempts-1), capped at max.
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`

	// DefaultMaxAttempts is the enqueue default when the caller does not
	// specify a retry budget.
	DefaultMaxAttempts int `yaml:"default_max_attempts"`

	// DrainTimeout is the max time to wait for in-flight handlers during
	// graceful shutdown. Jobs still running at the deadline are abandoned
	// for the reaper to reclaim.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxConcurrentJobs:  4,
		PollInterval:       5 * time.Second,
		LeaseSeconds:       300,
		HeartbeatInterval:  30 * time.Second,
		ReaperInterval:     60 * time.Second,
		BackoffBase:        30 * time.Second,
		BackoffMax:         30 * time.Minute,
		DefaultMaxAttempts: 3,
		DrainTimeout:       30 * time.Second,
	}
}

// Lease returns the lease length as a duration.
func (c *QueueConfig) Lease() time.Duration {
	return time.Duration(c.LeaseSeconds) * time.Second
}
