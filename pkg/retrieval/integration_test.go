package retrieval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/retrieval"
	"github.com/aetherfm/station/pkg/services"
	testdb "github.com/aetherfm/station/test/database"
)

// fixedEmbedder returns the same query vector for every call, so tests
// control vector similarity purely through the stored chunk embeddings.
type fixedEmbedder struct {
	vec  []float32
	err  error
	keys []string
}

func (f *fixedEmbedder) EmbedOne(ctx context.Context, key, text string) ([]float32, error) {
	f.keys = append(f.keys, key)
	return f.vec, f.err
}

func axisVector(axis int) []float32 {
	v := make([]float32, 1024)
	v[axis] = 1
	return v
}

func seedChunks(t *testing.T, kb *services.KBService, sourceID, sourceType string,
	texts []string, vectors [][]float32) {
	t.Helper()
	chunks := make([]models.KBChunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.KBChunk{
			ChunkText:   text,
			ChunkIndex:  i,
			TokenCount:  300,
			ContentHash: sourceType + "-" + sourceID + "-" + texts[i][:8],
			Lang:        "en",
		}
	}
	require.NoError(t, kb.ReplaceChunks(context.Background(), sourceID, sourceType, chunks, vectors))
}

func TestRetrieveHybrid(t *testing.T) {
	client := testdb.NewTestClient(t)
	kb := services.NewKBService(client.Pool())
	ctx := context.Background()

	doc, err := kb.CreateDoc(ctx, "The Neon Tower", "A landmark of the colony skyline.", "en")
	require.NoError(t, err)

	// Chunk 0 matches the query vector exactly; chunk 1 is orthogonal and
	// only reachable through the lexical leg.
	seedChunks(t, kb, doc.ID, models.SourceUniverseDoc,
		[]string{
			"The neon tower dominates the colony skyline at night.",
			"Hydroponic farming feeds the colony from the lower decks.",
		},
		[][]float32{axisVector(0), axisVector(1)})

	svc := retrieval.NewService(client.Pool(), &fixedEmbedder{vec: axisVector(0)}, config.DefaultRetrievalConfig())

	t.Run("vector leg ranks the matching chunk first", func(t *testing.T) {
		res, err := svc.Retrieve(ctx, retrieval.Query{Text: "neon tower skyline"})
		require.NoError(t, err)
		require.NotEmpty(t, res.Chunks)
		assert.Contains(t, res.Chunks[0].ChunkText, "neon tower")
		assert.Greater(t, res.Chunks[0].VectorScore, 0.9)
		assert.Greater(t, res.Chunks[0].LexicalScore, 0.0)
	})

	t.Run("lexical leg finds orthogonal chunks", func(t *testing.T) {
		res, err := svc.Retrieve(ctx, retrieval.Query{Text: "hydroponic farming decks"})
		require.NoError(t, err)
		found := false
		for _, ch := range res.Chunks {
			if ch.LexicalScore == 1.0 {
				assert.Contains(t, ch.ChunkText, "Hydroponic")
				found = true
			}
		}
		assert.True(t, found, "lexical-only chunk should surface")
	})

	t.Run("top_k caps results but not total", func(t *testing.T) {
		res, err := svc.Retrieve(ctx, retrieval.Query{Text: "colony", TopK: 1})
		require.NoError(t, err)
		assert.Len(t, res.Chunks, 1)
		assert.GreaterOrEqual(t, res.TotalResults, 2)
	})

	t.Run("empty query is a validation fault", func(t *testing.T) {
		_, err := svc.Retrieve(ctx, retrieval.Query{Text: "   "})
		require.Error(t, err)
		assert.Equal(t, faults.KindValidation, faults.KindOf(err))
	})
}

func TestRetrieveSourceTypeFilter(t *testing.T) {
	client := testdb.NewTestClient(t)
	kb := services.NewKBService(client.Pool())
	ctx := context.Background()

	doc, err := kb.CreateDoc(ctx, "Transit", "How the maglev network runs.", "en")
	require.NoError(t, err)
	ev, err := kb.CreateEvent(ctx, "Maglev opening", "The new maglev line opens today.", "en",
		time.Date(2526, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	seedChunks(t, kb, doc.ID, models.SourceUniverseDoc,
		[]string{"The maglev network connects every dome of the colony."},
		[][]float32{axisVector(0)})
	seedChunks(t, kb, ev.ID, models.SourceEvent,
		[]string{"The maglev line to the northern dome opens today."},
		[][]float32{axisVector(0)})

	svc := retrieval.NewService(client.Pool(), &fixedEmbedder{vec: axisVector(0)}, config.DefaultRetrievalConfig())

	res, err := svc.Retrieve(ctx, retrieval.Query{
		Text:        "maglev network dome",
		SourceTypes: []string{models.SourceEvent},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Chunks)
	for _, ch := range res.Chunks {
		assert.Equal(t, models.SourceEvent, ch.SourceType)
	}
}

func TestRetrieveRecencyBoost(t *testing.T) {
	client := testdb.NewTestClient(t)
	kb := services.NewKBService(client.Pool())
	ctx := context.Background()

	ref := time.Date(2526, 3, 15, 12, 0, 0, 0, time.UTC)
	recent, err := kb.CreateEvent(ctx, "Fresh", "The dome festival starts tonight.", "en", ref.AddDate(0, 0, -1))
	require.NoError(t, err)
	stale, err := kb.CreateEvent(ctx, "Old", "The dome festival of last season ended.", "en", ref.AddDate(0, -6, 0))
	require.NoError(t, err)

	// Identical embeddings: only recency separates them.
	seedChunks(t, kb, recent.ID, models.SourceEvent,
		[]string{"Festival lights fill the central dome tonight."},
		[][]float32{axisVector(0)})
	seedChunks(t, kb, stale.ID, models.SourceEvent,
		[]string{"Festival lights filled the central dome last season."},
		[][]float32{axisVector(0)})

	svc := retrieval.NewService(client.Pool(), &fixedEmbedder{vec: axisVector(0)}, config.DefaultRetrievalConfig())

	res, err := svc.Retrieve(ctx, retrieval.Query{
		Text:          "festival dome lights",
		RecencyBoost:  true,
		ReferenceTime: &ref,
	})
	require.NoError(t, err)
	require.Len(t, res.Chunks, 2)
	assert.Equal(t, recent.ID, res.Chunks[0].SourceID, "recent event should outrank the stale one")
	assert.Greater(t, res.Chunks[0].RecencyScore, 0.0)
	assert.Zero(t, res.Chunks[1].RecencyScore, "events beyond the horizon get no boost")
}

func TestRetrieveQueryCacheKey(t *testing.T) {
	client := testdb.NewTestClient(t)
	embedder := &fixedEmbedder{vec: axisVector(0)}
	svc := retrieval.NewService(client.Pool(), embedder, config.DefaultRetrievalConfig())
	ctx := context.Background()

	_, err := svc.Retrieve(ctx, retrieval.Query{Text: "maglev schedule"})
	require.NoError(t, err)
	_, err = svc.Retrieve(ctx, retrieval.Query{Text: "maglev schedule"})
	require.NoError(t, err)
	_, err = svc.Retrieve(ctx, retrieval.Query{Text: "dome festival"})
	require.NoError(t, err)

	require.Len(t, embedder.keys, 3)
	assert.Equal(t, embedder.keys[0], embedder.keys[1],
		"identical query text must reuse one cache key")
	assert.NotEqual(t, embedder.keys[0], embedder.keys[2])
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	client := testdb.NewTestClient(t)

	svc := retrieval.NewService(client.Pool(),
		&fixedEmbedder{err: errors.New("connection refused")},
		config.DefaultRetrievalConfig())

	_, err := svc.Retrieve(context.Background(), retrieval.Query{Text: "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to embed query")
}
