package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/aetherfm/station/pkg/models"
)

// KBService manages knowledge-base sources, their chunks and embeddings, and
// the per-source index status.
type KBService struct {
	pool *pgxpool.Pool
}

// NewKBService creates a new KBService
func NewKBService(pool *pgxpool.Pool) *KBService {
	return &KBService{pool: pool}
}

// CreateDoc inserts a universe document.
func (s *KBService) CreateDoc(ctx context.Context, title, body, lang string) (*models.UniverseDoc, error) {
	if body == "" {
		return nil, NewValidationError("body", "must not be empty")
	}
	if lang == "" {
		lang = "en"
	}

	doc := models.UniverseDoc{ID: uuid.NewString(), Title: title, Body: body, Lang: lang}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO universe_docs (id, title, body, lang) VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		doc.ID, doc.Title, doc.Body, doc.Lang).Scan(&doc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create universe doc: %w", err)
	}
	return &doc, nil
}

// CreateEvent inserts a dated event.
func (s *KBService) CreateEvent(ctx context.Context, title, body, lang string, eventDate time.Time) (*models.Event, error) {
	if body == "" {
		return nil, NewValidationError("body", "must not be empty")
	}
	if eventDate.IsZero() {
		return nil, NewValidationError("event_date", "must be set")
	}
	if lang == "" {
		lang = "en"
	}

	ev := models.Event{ID: uuid.NewString(), Title: title, Body: body, Lang: lang, EventDate: eventDate}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO events (id, title, body, lang, event_date) VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		ev.ID, ev.Title, ev.Body, ev.Lang, ev.EventDate).Scan(&ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return &ev, nil
}

// SourceBody returns the indexable Markdown body of a source.
func (s *KBService) SourceBody(ctx context.Context, sourceID, sourceType string) (string, error) {
	var table string
	switch sourceType {
	case models.SourceUniverseDoc:
		table = "universe_docs"
	case models.SourceEvent:
		table = "events"
	default:
		return "", NewValidationError("source_type", fmt.Sprintf("unknown source type %q", sourceType))
	}

	var body string
	err := s.pool.QueryRow(ctx, `SELECT body FROM `+table+` WHERE id = $1`, sourceID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load source body: %w", err)
	}
	return body, nil
}

// ReplaceChunks atomically swaps a source's chunks and embeddings for a new
// set. Re-indexing a source is idempotent: the previous generation vanishes
// in the same transaction.
func (s *KBService) ReplaceChunks(ctx context.Context, sourceID, sourceType string,
	chunks []models.KBChunk, vectors [][]float32) error {

	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin chunk replace: %w", err)
	}
	defer tx.Rollback(ctx)

	// Embeddings cascade with their chunks.
	_, err = tx.Exec(ctx, `DELETE FROM kb_chunks WHERE source_id = $1 AND source_type = $2`,
		sourceID, sourceType)
	if err != nil {
		return fmt.Errorf("failed to delete previous chunks: %w", err)
	}

	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO kb_chunks (id, source_id, source_type, chunk_text, chunk_index, token_count, content_hash, lang)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			ch.ID, sourceID, sourceType, ch.ChunkText, ch.ChunkIndex, ch.TokenCount, ch.ContentHash, ch.Lang)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", ch.ChunkIndex, err)
		}
		_, err = tx.Exec(ctx, `INSERT INTO kb_embeddings (chunk_id, embedding) VALUES ($1, $2)`,
			ch.ID, pgvector.NewVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("failed to insert embedding %d: %w", ch.ChunkIndex, err)
		}
	}

	return tx.Commit(ctx)
}

// StartIndexing upserts the index status row into processing.
func (s *KBService) StartIndexing(ctx context.Context, sourceID, sourceType string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kb_index_status (source_id, source_type, state, started_at)
		VALUES ($1, $2, 'processing', now())
		ON CONFLICT (source_id, source_type) DO UPDATE
		SET state = 'processing', started_at = now(), completed_at = NULL, error = NULL`,
		sourceID, sourceType)
	if err != nil {
		return fmt.Errorf("failed to start index status: %w", err)
	}
	return nil
}

// CompleteIndexing records a successful run with its chunk counts.
func (s *KBService) CompleteIndexing(ctx context.Context, sourceID, sourceType string, chunks, embeddings int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE kb_index_status
		SET state = 'complete', chunks_created = $3, embeddings_created = $4, completed_at = now(), error = NULL
		WHERE source_id = $1 AND source_type = $2`,
		sourceID, sourceType, chunks, embeddings)
	if err != nil {
		return fmt.Errorf("failed to complete index status: %w", err)
	}
	return nil
}

// FailIndexing records a failed run.
func (s *KBService) FailIndexing(ctx context.Context, sourceID, sourceType string, failure error) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE kb_index_status
		SET state = 'failed', completed_at = now(), error = $3
		WHERE source_id = $1 AND source_type = $2`,
		sourceID, sourceType, failure.Error())
	if err != nil {
		return fmt.Errorf("failed to record index failure: %w", err)
	}
	return nil
}

// GetIndexStatus retrieves the index status of a source.
func (s *KBService) GetIndexStatus(ctx context.Context, sourceID, sourceType string) (*models.KBIndexStatus, error) {
	var st models.KBIndexStatus
	err := s.pool.QueryRow(ctx, `
		SELECT source_id, source_type, state, chunks_created, embeddings_created, started_at, completed_at, error
		FROM kb_index_status WHERE source_id = $1 AND source_type = $2`,
		sourceID, sourceType).
		Scan(&st.SourceID, &st.SourceType, &st.State, &st.ChunksCreated,
			&st.EmbeddingsCreated, &st.StartedAt, &st.CompletedAt, &st.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get index status: %w", err)
	}
	return &st, nil
}

// EventDate returns the event_date of an event source, or nil for docs.
func (s *KBService) EventDate(ctx context.Context, sourceID, sourceType string) (*time.Time, error) {
	if sourceType != models.SourceEvent {
		return nil, nil
	}
	var d time.Time
	err := s.pool.QueryRow(ctx, `SELECT event_date FROM events WHERE id = $1`, sourceID).Scan(&d)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event date: %w", err)
	}
	return &d, nil
}
