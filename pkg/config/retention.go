package config

import "time"

// RetentionConfig bounds how long terminal rows stay around.
type RetentionConfig struct {
	// AiredRetention is how long an aired segment stays before it is
	// archived.
	AiredRetention time.Duration `yaml:"aired_retention"`

	// JobRetention is how long completed jobs stay queryable before they
	// are purged.
	JobRetention time.Duration `yaml:"job_retention"`

	// CleanupInterval is how often the retention loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention policy.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		AiredRetention:  7 * 24 * time.Hour,
		JobRetention:    72 * time.Hour,
		CleanupInterval: time.Hour,
	}
}
