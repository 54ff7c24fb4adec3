package models

import (
	"fmt"
	"time"
)

// ValidationStatus is the loudness validation state of an audio asset.
type ValidationStatus string

// Validation statuses. Assets are immutable once status leaves pending.
const (
	ValidationPending ValidationStatus = "pending"
	ValidationPassed  ValidationStatus = "passed"
	ValidationFailed  ValidationStatus = "failed"
)

// ValidationStatusValidator validates a validation status value.
func ValidationStatusValidator(s ValidationStatus) error {
	switch s {
	case ValidationPending, ValidationPassed, ValidationFailed:
		return nil
	}
	return fmt.Errorf("invalid validation status: %q", s)
}

// Asset is a content-addressed audio artifact in the blob store.
// Two assets with the same content hash and validation_status=passed are
// interchangeable; the mastering orchestrator rebinds to the earlier one.
type Asset struct {
	ID               string           `json:"id"`
	ContentHash      string           `json:"content_hash"` // sha256 hex
	StoragePath      string           `json:"storage_path"`
	LUFSIntegrated   *float64         `json:"lufs_integrated,omitempty"`
	PeakDB           *float64         `json:"peak_db,omitempty"`
	DurationSec      *float64         `json:"duration_sec,omitempty"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidationErrors []string         `json:"validation_errors,omitempty"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
