// Package orchestrator holds the job handlers: each one drives a pipeline
// stage end to end under the worker runtime's lease and retry machinery.
// Handlers are idempotent; a redelivered job resumes or safely repeats.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aetherfm/station/pkg/chunker"
	"github.com/aetherfm/station/pkg/embedding"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/services"
)

// KBIndexHandler processes kb_index jobs: chunk the source body, embed the
// chunks, and atomically replace the source's indexed generation.
type KBIndexHandler struct {
	kb       *services.KBService
	chunker  *chunker.Chunker
	embedder *embedding.Service
}

// NewKBIndexHandler creates the kb_index handler.
func NewKBIndexHandler(kb *services.KBService, ch *chunker.Chunker, embedder *embedding.Service) *KBIndexHandler {
	return &KBIndexHandler{kb: kb, chunker: ch, embedder: embedder}
}

// Handle runs one indexing job.
func (h *KBIndexHandler) Handle(ctx context.Context, job *models.Job) error {
	var payload models.KBIndexPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid kb_index payload: %w", err)
	}
	log := slog.With("source_id", payload.SourceID, "source_type", payload.SourceType)

	if err := h.kb.StartIndexing(ctx, payload.SourceID, payload.SourceType); err != nil {
		return err
	}

	if err := h.index(ctx, payload, log); err != nil {
		// Status writes survive handler-context cancellation.
		statusCtx := context.WithoutCancel(ctx)
		if failErr := h.kb.FailIndexing(statusCtx, payload.SourceID, payload.SourceType, err); failErr != nil {
			log.Error("Failed to record index failure", "error", failErr)
		}
		return err
	}
	return nil
}

func (h *KBIndexHandler) index(ctx context.Context, payload models.KBIndexPayload, log *slog.Logger) error {
	body, err := h.kb.SourceBody(ctx, payload.SourceID, payload.SourceType)
	if err != nil {
		return fmt.Errorf("failed to load source: %w", err)
	}

	chunks := h.chunker.Split(body)
	if len(chunks) == 0 {
		log.Warn("Source produced no chunks")
		if err := h.kb.ReplaceChunks(ctx, payload.SourceID, payload.SourceType, nil, nil); err != nil {
			return err
		}
		return h.kb.CompleteIndexing(ctx, payload.SourceID, payload.SourceType, 0, 0)
	}

	hashes := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		hashes[i] = c.ContentHash
		texts[i] = c.Text
	}

	results, err := h.embedder.EmbedBatch(ctx, hashes, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}

	kbChunks := make([]models.KBChunk, len(chunks))
	vectors := make([][]float32, len(chunks))
	cached := 0
	for i, c := range chunks {
		kbChunks[i] = models.KBChunk{
			SourceID:    payload.SourceID,
			SourceType:  payload.SourceType,
			ChunkText:   c.Text,
			ChunkIndex:  c.Index,
			TokenCount:  c.TokenCount,
			ContentHash: c.ContentHash,
			Lang:        c.Lang,
		}
		vectors[i] = results[i].Vector
		if results[i].Cached {
			cached++
		}
	}

	if err := h.kb.ReplaceChunks(ctx, payload.SourceID, payload.SourceType, kbChunks, vectors); err != nil {
		return fmt.Errorf("failed to store chunks: %w", err)
	}

	log.Info("Source indexed", "chunks", len(kbChunks), "cached_embeddings", cached)
	return h.kb.CompleteIndexing(ctx, payload.SourceID, payload.SourceType, len(kbChunks), len(kbChunks))
}
