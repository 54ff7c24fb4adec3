// Package retrieval implements hybrid knowledge-base search: a vector leg
// over the embedding index, a lexical leg over full-text search, weighted
// score fusion, and an optional recency boost for event sources.
package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/models"
)

// Query is one retrieval request.
type Query struct {
	Text          string     `json:"text"`
	TopK          int        `json:"top_k,omitempty"`
	SourceTypes   []string   `json:"source_types,omitempty"`
	RecencyBoost  bool       `json:"recency_boost,omitempty"`
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Result is the ranked answer to a Query.
type Result struct {
	Chunks       []models.RAGChunk `json:"chunks"`
	QueryTimeMS  int64             `json:"query_time_ms"`
	TotalResults int               `json:"total_results"`
}

// QueryEmbedder embeds query text. Satisfied by *embedding.Service.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, key, text string) ([]float32, error)
}

// recencyHorizon is the event age at which the recency boost decays to zero.
const recencyHorizon = 30 * 24 * time.Hour

// Service runs the hybrid pipeline.
type Service struct {
	pool     *pgxpool.Pool
	embedder QueryEmbedder
	cfg      *config.RetrievalConfig
}

// NewService creates the retrieval service.
func NewService(pool *pgxpool.Pool, embedder QueryEmbedder, cfg *config.RetrievalConfig) *Service {
	return &Service{pool: pool, embedder: embedder, cfg: cfg}
}

// Retrieve runs both legs, fuses scores, and returns the top results. The
// whole pipeline runs under the configured wall-clock budget; exceeding it
// fails with RAG_TIMEOUT.
func (s *Service) Retrieve(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, faults.Validation(errors.New("query text must not be empty"))
	}
	topK := q.TopK
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Budget)
	defer cancel()

	// Query embeddings share the content-hash cache: the same question asked
	// twice reuses the cached vector instead of evicting a chunk entry.
	sum := sha256.Sum256([]byte(q.Text))
	queryKey := "query-" + hex.EncodeToString(sum[:])
	queryVec, err := s.embedder.EmbedOne(ctx, queryKey, q.Text)
	if err != nil {
		return nil, s.budgetErr(ctx, start, fmt.Errorf("failed to embed query: %w", err))
	}

	vecHits, err := s.vectorSearch(ctx, queryVec, q.SourceTypes, 2*topK)
	if err != nil {
		return nil, s.budgetErr(ctx, start, fmt.Errorf("vector search failed: %w", err))
	}

	keywords := ExtractKeywords(q.Text, s.cfg.MaxKeywords)
	lexHits, err := s.lexicalSearch(ctx, keywords, q.SourceTypes, 2*topK)
	if err != nil {
		return nil, s.budgetErr(ctx, start, fmt.Errorf("lexical search failed: %w", err))
	}

	chunks := s.fuse(vecHits, lexHits, q)
	total := len(chunks)
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}

	return &Result{
		Chunks:       chunks,
		QueryTimeMS:  time.Since(start).Milliseconds(),
		TotalResults: total,
	}, nil
}

// budgetErr maps deadline expiry onto the RAG_TIMEOUT failure; other errors
// pass through.
func (s *Service) budgetErr(ctx context.Context, start time.Time, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return faults.Semanticf(faults.CodeRAGTimeout,
			"retrieval exceeded %s budget after %s", s.cfg.Budget, time.Since(start).Round(time.Millisecond))
	}
	return err
}

// vectorSearch returns chunks whose embedding cosine similarity clears the
// threshold, best first.
func (s *Service) vectorSearch(ctx context.Context, queryVec []float32, sourceTypes []string, limit int) ([]models.RAGChunk, error) {
	sql := `
		SELECT c.id, c.source_id, c.source_type, c.chunk_text,
		       1 - (e.embedding <=> $1) AS score,
		       ev.event_date
		FROM kb_embeddings e
		JOIN kb_chunks c ON c.id = e.chunk_id
		LEFT JOIN events ev ON c.source_type = 'event' AND ev.id = c.source_id
		WHERE 1 - (e.embedding <=> $1) >= $2`
	args := []any{pgvector.NewVector(queryVec), s.cfg.VectorThreshold}
	if len(sourceTypes) > 0 {
		sql += ` AND c.source_type = ANY($4)`
		args = append(args, limit, sourceTypes)
	} else {
		args = append(args, limit)
	}
	sql += ` ORDER BY e.embedding <=> $1 LIMIT $3`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.RAGChunk
	for rows.Next() {
		var h models.RAGChunk
		if err := rows.Scan(&h.ChunkID, &h.SourceID, &h.SourceType, &h.ChunkText, &h.VectorScore, &h.EventDate); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// lexicalSearch finds chunks matching all keywords via full-text search, then
// scores each candidate as matched_keywords / total_keywords.
func (s *Service) lexicalSearch(ctx context.Context, keywords []string, sourceTypes []string, limit int) ([]models.RAGChunk, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	tsquery := strings.Join(keywords, " & ")

	sql := `
		SELECT c.id, c.source_id, c.source_type, c.chunk_text, ev.event_date
		FROM kb_chunks c
		LEFT JOIN events ev ON c.source_type = 'event' AND ev.id = c.source_id
		WHERE to_tsvector('simple', c.chunk_text) @@ to_tsquery('simple', $1)`
	args := []any{tsquery}
	if len(sourceTypes) > 0 {
		sql += ` AND c.source_type = ANY($3)`
		args = append(args, limit, sourceTypes)
	} else {
		args = append(args, limit)
	}
	sql += ` LIMIT $2`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []models.RAGChunk
	for rows.Next() {
		var h models.RAGChunk
		if err := rows.Scan(&h.ChunkID, &h.SourceID, &h.SourceType, &h.ChunkText, &h.EventDate); err != nil {
			return nil, err
		}
		h.LexicalScore = lexicalScore(h.ChunkText, keywords)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// lexicalScore is the fraction of keywords present in the chunk text.
func lexicalScore(chunkText string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(chunkText)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

// fuse unions both legs by chunk ID, computes weighted final scores, applies
// the recency multiplier for event sources, and sorts best first.
func (s *Service) fuse(vecHits, lexHits []models.RAGChunk, q Query) []models.RAGChunk {
	byID := make(map[string]*models.RAGChunk, len(vecHits)+len(lexHits))
	order := make([]string, 0, len(vecHits)+len(lexHits))

	for i := range vecHits {
		h := vecHits[i]
		byID[h.ChunkID] = &h
		order = append(order, h.ChunkID)
	}
	for i := range lexHits {
		h := lexHits[i]
		if existing, ok := byID[h.ChunkID]; ok {
			existing.LexicalScore = h.LexicalScore
			continue
		}
		byID[h.ChunkID] = &h
		order = append(order, h.ChunkID)
	}

	merged := make([]models.RAGChunk, 0, len(order))
	for _, id := range order {
		h := byID[id]
		h.FinalScore = s.cfg.VectorWeight*h.VectorScore + s.cfg.LexicalWeight*h.LexicalScore
		if q.RecencyBoost && h.SourceType == models.SourceEvent && h.EventDate != nil && q.ReferenceTime != nil {
			h.RecencyScore = s.recencyScore(*h.EventDate, *q.ReferenceTime)
			h.FinalScore *= 1 + h.RecencyScore
		}
		merged = append(merged, *h)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].FinalScore > merged[j].FinalScore
	})
	return merged
}

// recencyScore decays linearly from the max boost at zero age to zero at the
// horizon. Age is the absolute distance between the event date and the
// in-universe reference time.
func (s *Service) recencyScore(eventDate, referenceTime time.Time) float64 {
	age := eventDate.Sub(referenceTime)
	if age < 0 {
		age = -age
	}
	if age >= recencyHorizon {
		return 0
	}
	return s.cfg.MaxRecencyBoost * (1 - float64(age)/float64(recencyHorizon))
}
