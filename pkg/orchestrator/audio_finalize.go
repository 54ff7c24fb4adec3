package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/aetherfm/station/pkg/audio"
	"github.com/aetherfm/station/pkg/blob"
	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/services"
)

// AudioFinalizeHandler processes audio_finalize jobs: dedupe by content
// hash, loudness-normalize the raw render, validate the result, and promote
// the segment to ready.
type AudioFinalizeHandler struct {
	segments *services.SegmentService
	assets   *services.AssetService
	blobs    BlobStore
	cfg      *config.MasteringConfig
}

// NewAudioFinalizeHandler creates the audio_finalize handler.
func NewAudioFinalizeHandler(segments *services.SegmentService, assets *services.AssetService,
	blobs BlobStore, cfg *config.MasteringConfig) *AudioFinalizeHandler {

	return &AudioFinalizeHandler{segments: segments, assets: assets, blobs: blobs, cfg: cfg}
}

// Handle runs one finalize job.
func (h *AudioFinalizeHandler) Handle(ctx context.Context, job *models.Job) error {
	var payload models.AudioFinalizePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid audio_finalize payload: %w", err)
	}
	log := slog.With("segment_id", payload.SegmentID, "asset_id", payload.AssetID)

	asset, err := h.assets.GetAsset(ctx, payload.AssetID)
	if err != nil {
		return fmt.Errorf("failed to load asset: %w", err)
	}

	// Dedupe: an earlier passed asset with the same hash is canonical.
	canonical, err := h.assets.FindPassedByHash(ctx, asset.ContentHash, asset.ID)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return err
	}
	if canonical != nil {
		return h.dedupe(ctx, payload.SegmentID, asset, canonical, log)
	}

	metrics, finalPath, err := h.master(ctx, asset, payload.ContentType)
	if err != nil {
		return err
	}

	target := h.cfg.TargetLUFS(payload.ContentType)
	var validationErrors []string
	if diff := math.Abs(metrics.LUFSIntegrated - target); diff > h.cfg.LUFSTolerance {
		validationErrors = append(validationErrors,
			fmt.Sprintf("integrated loudness %.2f LUFS is %.2f from target %.2f", metrics.LUFSIntegrated, diff, target))
	}
	if metrics.PeakDB > h.cfg.PeakCeiling {
		validationErrors = append(validationErrors,
			fmt.Sprintf("true peak %.2f dBTP exceeds ceiling %.2f", metrics.PeakDB, h.cfg.PeakCeiling))
	}

	status := models.ValidationPassed
	if len(validationErrors) > 0 {
		status = models.ValidationFailed
	}
	if err := h.assets.SetValidation(ctx, asset.ID, status, finalPath,
		metrics.LUFSIntegrated, metrics.PeakDB, metrics.DurationSec, validationErrors); err != nil {
		return err
	}

	if status == models.ValidationFailed {
		qualityErr := faults.Semanticf(faults.CodeAudioQualityFail,
			"asset %s failed loudness validation: %v", asset.ID, validationErrors)
		failCtx := context.WithoutCancel(ctx)
		if _, err := h.segments.MarkFailed(failCtx, payload.SegmentID, qualityErr); err != nil {
			log.Error("Failed to mark segment failed", "error", err)
		}
		return qualityErr
	}

	// Raw render is no longer needed once the master exists.
	if err := h.blobs.Remove(ctx, asset.StoragePath); err != nil {
		log.Warn("Failed to remove raw audio", "path", asset.StoragePath, "error", err)
	}

	if err := h.segments.BindAsset(ctx, payload.SegmentID, asset.ID, &metrics.DurationSec); err != nil {
		return err
	}
	if _, err := h.segments.Transition(ctx, payload.SegmentID, models.SegmentStateReady); err != nil {
		return err
	}

	log.Info("Segment mastered",
		"lufs", metrics.LUFSIntegrated, "peak_db", metrics.PeakDB, "duration_sec", metrics.DurationSec)
	return nil
}

// dedupe rebinds the segment to the canonical asset and marks this one a
// duplicate. The duplicate's raw render is removed.
func (h *AudioFinalizeHandler) dedupe(ctx context.Context, segmentID string,
	dup, canonical *models.Asset, log *slog.Logger) error {

	if err := h.assets.MarkDuplicate(ctx, dup.ID, canonical.ID); err != nil {
		return err
	}
	if err := h.segments.BindAsset(ctx, segmentID, canonical.ID, canonical.DurationSec); err != nil {
		return err
	}
	if _, err := h.segments.Transition(ctx, segmentID, models.SegmentStateReady); err != nil {
		return err
	}
	if err := h.blobs.Remove(ctx, dup.StoragePath); err != nil {
		log.Warn("Failed to remove duplicate raw audio", "path", dup.StoragePath, "error", err)
	}

	log.Info("Asset deduplicated", "canonical_asset_id", canonical.ID)
	return nil
}

// master downloads the raw render, normalizes it, and uploads the result to
// the asset's final path.
func (h *AudioFinalizeHandler) master(ctx context.Context, asset *models.Asset, contentType string) (*audio.Metrics, string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	raw, err := h.blobs.Download(ctx, asset.StoragePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download raw audio: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "station-master-")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	rawPath := filepath.Join(tmpDir, "raw.wav")
	if err := os.WriteFile(rawPath, raw, 0644); err != nil {
		return nil, "", fmt.Errorf("failed to write scratch file: %w", err)
	}

	normalizedPath := filepath.Join(tmpDir, "normalized.wav")
	metrics, err := audio.Normalize(ctx, rawPath, normalizedPath,
		h.cfg.TargetLUFS(contentType), h.cfg.PeakCeiling)
	if err != nil {
		return nil, "", faults.Transient(fmt.Errorf("normalization failed: %w", err))
	}

	normalized, err := os.ReadFile(normalizedPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read normalized audio: %w", err)
	}

	finalPath := blob.FinalPath(asset.ID)
	if err := h.blobs.Upload(ctx, finalPath, normalized, "audio/wav"); err != nil {
		return nil, "", fmt.Errorf("failed to upload final audio: %w", err)
	}
	return metrics, finalPath, nil
}
