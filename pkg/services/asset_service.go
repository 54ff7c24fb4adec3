package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetherfm/station/pkg/models"
)

const assetColumns = `id, content_hash, storage_path, lufs_integrated, peak_db,
	duration_sec, validation_status, validation_errors, metadata, created_at, updated_at`

// AssetService manages audio assets and the content-hash dedupe lookup.
type AssetService struct {
	pool *pgxpool.Pool
}

// NewAssetService creates a new AssetService
func NewAssetService(pool *pgxpool.Pool) *AssetService {
	return &AssetService{pool: pool}
}

// CreateAsset inserts a pending asset for a freshly rendered raw file.
func (s *AssetService) CreateAsset(ctx context.Context, contentHash, storagePath string) (*models.Asset, error) {
	if contentHash == "" {
		return nil, NewValidationError("content_hash", "must not be empty")
	}

	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO assets (id, content_hash, storage_path, validation_status)
		VALUES ($1, $2, $3, 'pending')`,
		id, contentHash, storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset: %w", err)
	}
	return s.GetAsset(ctx, id)
}

// GetAsset retrieves an asset by ID.
func (s *AssetService) GetAsset(ctx context.Context, id string) (*models.Asset, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id)
	return scanAsset(row)
}

// FindPassedByHash returns the canonical passed asset for a content hash, or
// ErrNotFound. Excludes the asset being finalized so it never dedupes against
// itself.
func (s *AssetService) FindPassedByHash(ctx context.Context, contentHash, excludeID string) (*models.Asset, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+assetColumns+` FROM assets
		WHERE content_hash = $1 AND validation_status = 'passed' AND id <> $2
		ORDER BY created_at ASC
		LIMIT 1`, contentHash, excludeID)
	return scanAsset(row)
}

// SetValidation records the measured metrics, the final storage path, and the
// validation outcome.
func (s *AssetService) SetValidation(ctx context.Context, id string, status models.ValidationStatus,
	storagePath string, lufs, peakDB, durationSec float64, validationErrors []string) error {

	errsJSON, err := json.Marshal(validationErrors)
	if err != nil {
		return fmt.Errorf("failed to marshal validation errors: %w", err)
	}
	if validationErrors == nil {
		errsJSON = []byte("[]")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE assets
		SET validation_status = $2, storage_path = $3, lufs_integrated = $4,
		    peak_db = $5, duration_sec = $6, validation_errors = $7, updated_at = now()
		WHERE id = $1`,
		id, status, storagePath, lufs, peakDB, durationSec, errsJSON)
	if err != nil {
		return fmt.Errorf("failed to set asset validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDuplicate stamps the asset as a duplicate of the canonical one.
func (s *AssetService) MarkDuplicate(ctx context.Context, id, canonicalID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE assets
		SET metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('duplicate_of', $2::text),
		    updated_at = now()
		WHERE id = $1`,
		id, canonicalID)
	if err != nil {
		return fmt.Errorf("failed to mark asset duplicate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanAsset reads one asset row.
func scanAsset(row pgx.Row) (*models.Asset, error) {
	var a models.Asset
	var validationErrors, metadata []byte
	err := row.Scan(&a.ID, &a.ContentHash, &a.StoragePath, &a.LUFSIntegrated,
		&a.PeakDB, &a.DurationSec, &a.ValidationStatus, &validationErrors,
		&metadata, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan asset: %w", err)
	}
	if validationErrors != nil {
		if err := json.Unmarshal(validationErrors, &a.ValidationErrors); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation errors: %w", err)
		}
	}
	if metadata != nil {
		if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal asset metadata: %w", err)
		}
	}
	return &a, nil
}
