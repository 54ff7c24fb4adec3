package embedding

import (
	"context"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aetherfm/station/pkg/config"
)

// Embedder is the sidecar call surface. Satisfied by *Client; tests substitute
// a stub.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Result pairs a vector with whether it was served from cache.
type Result struct {
	Vector []float32
	Cached bool
}

// Service batches embedding requests over an LRU cache keyed by content hash.
type Service struct {
	client Embedder
	cache  *lru.Cache[string, []float32]

	batchSize       int
	interBatchDelay time.Duration
}

// NewService creates the caching service. The cache size comes from config;
// entries are full vectors, so the default 10k entries is ~40 MB at dimension
// 1024.
func NewService(client Embedder, cfg *config.EmbeddingConfig) (*Service, error) {
	cache, err := lru.New[string, []float32](cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		client:          client,
		cache:           cache,
		batchSize:       cfg.BatchSize,
		interBatchDelay: cfg.InterBatchDelay,
	}, nil
}

// EmbedBatch embeds texts keyed by their content hashes, returning one result
// per input in input order. Cache hits are served without a sidecar call;
// misses are embedded in batches with a pacing delay between batches.
// hashes and texts must be the same length.
func (s *Service) EmbedBatch(ctx context.Context, hashes, texts []string) ([]Result, error) {
	results := make([]Result, len(texts))

	// Serve hits and collect misses, deduplicating repeated hashes within the
	// request so each distinct text is embedded once.
	var missHashes []string
	var missTexts []string
	missIdx := make(map[string][]int)
	for i, h := range hashes {
		if vec, ok := s.cache.Get(h); ok {
			results[i] = Result{Vector: vec, Cached: true}
			continue
		}
		if _, seen := missIdx[h]; !seen {
			missHashes = append(missHashes, h)
			missTexts = append(missTexts, texts[i])
		}
		missIdx[h] = append(missIdx[h], i)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	slog.Debug("Embedding cache misses",
		"total", len(texts), "misses", len(missTexts))

	for start := 0; start < len(missTexts); start += s.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.interBatchDelay):
			}
		}

		end := min(start+s.batchSize, len(missTexts))
		vectors, err := s.client.Embed(ctx, missTexts[start:end])
		if err != nil {
			return nil, err
		}

		for j, vec := range vectors {
			h := missHashes[start+j]
			s.cache.Add(h, vec)
			for _, i := range missIdx[h] {
				results[i] = Result{Vector: vec, Cached: false}
			}
		}
	}

	return results, nil
}

// EmbedOne embeds a single text under the given cache key.
func (s *Service) EmbedOne(ctx context.Context, key, text string) ([]float32, error) {
	results, err := s.EmbedBatch(ctx, []string{key}, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0].Vector, nil
}

// CacheLen returns the number of cached vectors.
func (s *Service) CacheLen() int {
	return s.cache.Len()
}
