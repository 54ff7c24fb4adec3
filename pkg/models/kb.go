package models

import (
	"fmt"
	"time"
)

// EmbeddingDim is the fixed dimension of knowledge-base vectors.
const EmbeddingDim = 1024

// Source types for knowledge-base content.
const (
	SourceUniverseDoc = "universe_doc"
	SourceEvent       = "event"
)

// SourceTypeValidator validates a KB source type value.
func SourceTypeValidator(s string) error {
	switch s {
	case SourceUniverseDoc, SourceEvent:
		return nil
	}
	return fmt.Errorf("invalid source type: %q", s)
}

// KBChunk is a token-bounded text window cut from a source document.
// Chunks of one source form a contiguous sequence ordered by ChunkIndex, with
// the configured token overlap shared between neighbours.
type KBChunk struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	SourceType  string    `json:"source_type"`
	ChunkText   string    `json:"chunk_text"`
	ChunkIndex  int       `json:"chunk_index"`
	TokenCount  int       `json:"token_count"`
	ContentHash string    `json:"content_hash"` // sha256 hex of ChunkText
	Lang        string    `json:"lang"`
	CreatedAt   time.Time `json:"created_at"`
}

// IndexState is the lifecycle state of a source's indexing run.
type IndexState string

// Index states.
const (
	IndexStatePending    IndexState = "pending"
	IndexStateProcessing IndexState = "processing"
	IndexStateComplete   IndexState = "complete"
	IndexStateFailed     IndexState = "failed"
)

// KBIndexStatus tracks the chunking/embedding progress of one source.
type KBIndexStatus struct {
	SourceID          string     `json:"source_id"`
	SourceType        string     `json:"source_type"`
	State             IndexState `json:"state"`
	ChunksCreated     int        `json:"chunks_created"`
	EmbeddingsCreated int        `json:"embeddings_created"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	Error             *string    `json:"error,omitempty"`
}

// UniverseDoc is an upstream knowledge-base document.
type UniverseDoc struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Lang      string    `json:"lang"`
	CreatedAt time.Time `json:"created_at"`
}

// Event is an upstream dated happening in the station's fictional universe.
// EventDate is in-universe time and drives the retrieval recency boost.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Lang      string    `json:"lang"`
	EventDate time.Time `json:"event_date"`
	CreatedAt time.Time `json:"created_at"`
}

// RAGChunk is a retrieval result with its per-leg and fused scores.
type RAGChunk struct {
	ChunkID      string     `json:"chunk_id"`
	SourceID     string     `json:"source_id"`
	SourceType   string     `json:"source_type"`
	ChunkText    string     `json:"chunk_text"`
	VectorScore  float64    `json:"vector_score"`
	LexicalScore float64    `json:"lexical_score"`
	RecencyScore float64    `json:"recency_score"`
	FinalScore   float64    `json:"final_score"`
	EventDate    *time.Time `json:"event_date,omitempty"`
}
