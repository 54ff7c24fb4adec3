package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/services"
	testdb "github.com/aetherfm/station/test/database"
)

func newKBFixture(t *testing.T) (*services.KBService, *pgxpool.Pool) {
	t.Helper()
	client := testdb.NewTestClient(t)
	return services.NewKBService(client.Pool()), client.Pool()
}

func testVector(seed float32) []float32 {
	v := make([]float32, 1024)
	v[0] = seed
	return v
}

func TestCreateDocAndEvent(t *testing.T) {
	kb, _ := newKBFixture(t)
	ctx := context.Background()

	doc, err := kb.CreateDoc(ctx, "Colony Charter", "The founding charter of the Aether colony.", "")
	require.NoError(t, err)
	assert.Equal(t, "en", doc.Lang)

	body, err := kb.SourceBody(ctx, doc.ID, models.SourceUniverseDoc)
	require.NoError(t, err)
	assert.Equal(t, doc.Body, body)

	_, err = kb.CreateDoc(ctx, "Empty", "", "en")
	assert.True(t, services.IsValidationError(err))

	date := time.Date(2526, 3, 15, 0, 0, 0, 0, time.UTC)
	ev, err := kb.CreateEvent(ctx, "Solstice Fair", "The annual fair opens.", "en", date)
	require.NoError(t, err)

	got, err := kb.EventDate(ctx, ev.ID, models.SourceEvent)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(date))

	// Docs have no event date.
	got, err = kb.EventDate(ctx, doc.ID, models.SourceUniverseDoc)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = kb.CreateEvent(ctx, "No date", "body", "en", time.Time{})
	assert.True(t, services.IsValidationError(err))
}

func TestReplaceChunksSwapsGenerations(t *testing.T) {
	kb, pool := newKBFixture(t)
	ctx := context.Background()

	doc, err := kb.CreateDoc(ctx, "History", "A long history of the colony.", "en")
	require.NoError(t, err)

	makeChunks := func(n int, prefix string) ([]models.KBChunk, [][]float32) {
		chunks := make([]models.KBChunk, n)
		vectors := make([][]float32, n)
		for i := range chunks {
			chunks[i] = models.KBChunk{
				ChunkText:   fmt.Sprintf("%s chunk %d", prefix, i),
				ChunkIndex:  i,
				TokenCount:  300,
				ContentHash: fmt.Sprintf("%s-%d", prefix, i),
				Lang:        "en",
			}
			vectors[i] = testVector(float32(i))
		}
		return chunks, vectors
	}

	chunks, vectors := makeChunks(3, "gen1")
	require.NoError(t, kb.ReplaceChunks(ctx, doc.ID, models.SourceUniverseDoc, chunks, vectors))

	chunks, vectors = makeChunks(2, "gen2")
	require.NoError(t, kb.ReplaceChunks(ctx, doc.ID, models.SourceUniverseDoc, chunks, vectors))

	// Re-index must leave only the new generation behind.
	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM kb_chunks WHERE source_id = $1`, doc.ID).Scan(&count))
	assert.Equal(t, 2, count)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM kb_embeddings e JOIN kb_chunks c ON c.id = e.chunk_id WHERE c.source_id = $1`,
		doc.ID).Scan(&count))
	assert.Equal(t, 2, count)

	err = kb.ReplaceChunks(ctx, doc.ID, models.SourceUniverseDoc, chunks, vectors[:1])
	assert.ErrorContains(t, err, "mismatch")
}

func TestIndexStatusLifecycle(t *testing.T) {
	kb, _ := newKBFixture(t)
	ctx := context.Background()

	doc, err := kb.CreateDoc(ctx, "Flora", "Plants of the colony domes.", "en")
	require.NoError(t, err)

	_, err = kb.GetIndexStatus(ctx, doc.ID, models.SourceUniverseDoc)
	assert.ErrorIs(t, err, services.ErrNotFound)

	require.NoError(t, kb.StartIndexing(ctx, doc.ID, models.SourceUniverseDoc))
	st, err := kb.GetIndexStatus(ctx, doc.ID, models.SourceUniverseDoc)
	require.NoError(t, err)
	assert.Equal(t, models.IndexState("processing"), st.State)

	require.NoError(t, kb.CompleteIndexing(ctx, doc.ID, models.SourceUniverseDoc, 4, 4))
	st, err = kb.GetIndexStatus(ctx, doc.ID, models.SourceUniverseDoc)
	require.NoError(t, err)
	assert.Equal(t, models.IndexState("complete"), st.State)
	assert.Equal(t, 4, st.ChunksCreated)
	require.NotNil(t, st.CompletedAt)

	// A re-run resets the row back to processing.
	require.NoError(t, kb.StartIndexing(ctx, doc.ID, models.SourceUniverseDoc))
	st, err = kb.GetIndexStatus(ctx, doc.ID, models.SourceUniverseDoc)
	require.NoError(t, err)
	assert.Equal(t, models.IndexState("processing"), st.State)
	assert.Nil(t, st.CompletedAt)

	require.NoError(t, kb.FailIndexing(ctx, doc.ID, models.SourceUniverseDoc, errors.New("embedding server down")))
	st, err = kb.GetIndexStatus(ctx, doc.ID, models.SourceUniverseDoc)
	require.NoError(t, err)
	assert.Equal(t, models.IndexState("failed"), st.State)
	require.NotNil(t, st.Error)
	assert.Contains(t, *st.Error, "embedding server down")
}

func TestSourceBodyUnknownType(t *testing.T) {
	kb, _ := newKBFixture(t)

	_, err := kb.SourceBody(context.Background(), "some-id", "playlist")
	assert.True(t, services.IsValidationError(err))
}
