package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/models"
)

func newTestService() *Service {
	return NewService(nil, nil, config.DefaultRetrievalConfig())
}

func TestExtractKeywords(t *testing.T) {
	t.Run("drops short words and lowercases", func(t *testing.T) {
		got := ExtractKeywords("The Neon Tower hums at night", 10)
		assert.Equal(t, []string{"neon", "tower", "hums", "night"}, got)
	})

	t.Run("deduplicates", func(t *testing.T) {
		got := ExtractKeywords("tower tower tower lights", 10)
		assert.Equal(t, []string{"tower", "lights"}, got)
	})

	t.Run("caps at max", func(t *testing.T) {
		got := ExtractKeywords("alpha bravo charlie delta echoes foxtrot", 3)
		assert.Len(t, got, 3)
	})

	t.Run("strips punctuation", func(t *testing.T) {
		got := ExtractKeywords("storms, floods! (earthquakes)", 10)
		assert.Equal(t, []string{"storms", "floods", "earthquakes"}, got)
	})

	t.Run("strips tsquery metacharacters inside words", func(t *testing.T) {
		got := ExtractKeywords("dome a:side x&wing bet'ween", 10)
		assert.Equal(t, []string{"dome", "aside", "xwing", "between"}, got)
	})
}

func TestSynthesizeQuery(t *testing.T) {
	gen := &config.GenerationConfig{
		SlotTemplates: map[string]string{
			"news":    "news and current events in {year}, {month} {day}",
			"default": "life in the city in {year}",
		},
	}
	ref := time.Date(2525, time.March, 14, 9, 0, 0, 0, time.UTC)

	t.Run("slot template filled from reference time", func(t *testing.T) {
		got := SynthesizeQuery(gen, models.SlotNews, ref)
		assert.Equal(t, "news and current events in 2525, March 14", got)
	})

	t.Run("unknown slot falls back to default", func(t *testing.T) {
		got := SynthesizeQuery(gen, models.SlotType("mystery"), ref)
		assert.Equal(t, "life in the city in 2525", got)
	})
}

func TestLexicalScore(t *testing.T) {
	assert.Equal(t, 1.0, lexicalScore("the neon tower hums", []string{"neon", "tower"}))
	assert.Equal(t, 0.5, lexicalScore("the neon lights", []string{"neon", "tower"}))
	assert.Equal(t, 0.0, lexicalScore("silence", []string{"neon", "tower"}))
}

func TestFuse(t *testing.T) {
	svc := newTestService()

	t.Run("weighted fusion of both legs", func(t *testing.T) {
		vec := []models.RAGChunk{{ChunkID: "a", VectorScore: 0.8}}
		lex := []models.RAGChunk{{ChunkID: "a", LexicalScore: 0.5}}

		got := svc.fuse(vec, lex, Query{})
		require.Len(t, got, 1)
		assert.InDelta(t, 0.7*0.8+0.3*0.5, got[0].FinalScore, 1e-9)
	})

	t.Run("vector-only and lexical-only chunks kept", func(t *testing.T) {
		vec := []models.RAGChunk{{ChunkID: "v", VectorScore: 0.9}}
		lex := []models.RAGChunk{{ChunkID: "l", LexicalScore: 1.0}}

		got := svc.fuse(vec, lex, Query{})
		require.Len(t, got, 2)
		assert.Equal(t, "v", got[0].ChunkID, "0.63 vector beats 0.30 lexical")
		assert.Equal(t, "l", got[1].ChunkID)
	})

	t.Run("sorted by final score descending", func(t *testing.T) {
		vec := []models.RAGChunk{
			{ChunkID: "low", VectorScore: 0.4},
			{ChunkID: "high", VectorScore: 0.95},
			{ChunkID: "mid", VectorScore: 0.7},
		}
		got := svc.fuse(vec, nil, Query{})
		require.Len(t, got, 3)
		assert.Equal(t, "high", got[0].ChunkID)
		assert.Equal(t, "mid", got[1].ChunkID)
		assert.Equal(t, "low", got[2].ChunkID)
	})

	t.Run("recency boost applies only to events", func(t *testing.T) {
		ref := time.Date(2525, time.June, 1, 0, 0, 0, 0, time.UTC)
		eventDate := ref.Add(-24 * time.Hour)

		vec := []models.RAGChunk{
			{ChunkID: "ev", SourceType: models.SourceEvent, VectorScore: 0.6, EventDate: &eventDate},
			{ChunkID: "doc", SourceType: models.SourceUniverseDoc, VectorScore: 0.6},
		}
		got := svc.fuse(vec, nil, Query{RecencyBoost: true, ReferenceTime: &ref})
		require.Len(t, got, 2)
		assert.Equal(t, "ev", got[0].ChunkID)
		assert.Greater(t, got[0].FinalScore, got[1].FinalScore)
		assert.Greater(t, got[0].RecencyScore, 0.0)
		assert.Zero(t, got[1].RecencyScore)
	})

	t.Run("no boost without the flag", func(t *testing.T) {
		ref := time.Date(2525, time.June, 1, 0, 0, 0, 0, time.UTC)
		eventDate := ref.Add(-24 * time.Hour)

		vec := []models.RAGChunk{
			{ChunkID: "ev", SourceType: models.SourceEvent, VectorScore: 0.6, EventDate: &eventDate},
		}
		got := svc.fuse(vec, nil, Query{RecencyBoost: false, ReferenceTime: &ref})
		assert.Zero(t, got[0].RecencyScore)
		assert.InDelta(t, 0.7*0.6, got[0].FinalScore, 1e-9)
	})
}

func TestRecencyScore(t *testing.T) {
	svc := newTestService()
	ref := time.Date(2525, time.June, 1, 0, 0, 0, 0, time.UTC)

	t.Run("same-day event gets near-max boost", func(t *testing.T) {
		got := svc.recencyScore(ref, ref)
		assert.InDelta(t, 0.3, got, 1e-9)
	})

	t.Run("monotone non-increasing with age", func(t *testing.T) {
		day := svc.recencyScore(ref.Add(-24*time.Hour), ref)
		week := svc.recencyScore(ref.Add(-7*24*time.Hour), ref)
		month := svc.recencyScore(ref.Add(-29*24*time.Hour), ref)
		assert.Greater(t, day, week)
		assert.Greater(t, week, month)
		assert.Greater(t, month, 0.0)
	})

	t.Run("beyond the horizon is zero", func(t *testing.T) {
		assert.Zero(t, svc.recencyScore(ref.Add(-60*24*time.Hour), ref))
	})

	t.Run("future events decay symmetrically", func(t *testing.T) {
		past := svc.recencyScore(ref.Add(-5*24*time.Hour), ref)
		future := svc.recencyScore(ref.Add(5*24*time.Hour), ref)
		assert.Equal(t, past, future)
	})

	t.Run("deterministic for equal inputs", func(t *testing.T) {
		a := svc.recencyScore(ref.Add(-3*24*time.Hour), ref)
		b := svc.recencyScore(ref.Add(-3*24*time.Hour), ref)
		assert.Equal(t, a, b)
	})
}
