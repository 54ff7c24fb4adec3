package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/services"
	testdb "github.com/aetherfm/station/test/database"
)

func newSegmentFixture(t *testing.T) (*services.SegmentService, *services.AssetService) {
	t.Helper()
	client := testdb.NewTestClient(t)
	return services.NewSegmentService(client.Pool()), services.NewAssetService(client.Pool())
}

func TestCreateSegment(t *testing.T) {
	segments, _ := newSegmentFixture(t)
	ctx := context.Background()

	seg, err := segments.CreateSegment(ctx, services.CreateSegmentRequest{SlotType: models.SlotNews})
	require.NoError(t, err)
	assert.Equal(t, models.SegmentStateQueued, seg.State)
	assert.Equal(t, "en", seg.Lang)
	assert.Equal(t, 5, seg.Priority)

	_, err = segments.CreateSegment(ctx, services.CreateSegmentRequest{SlotType: "podcast"})
	assert.True(t, services.IsValidationError(err))
}

func TestCreateSegmentIdempotencyKey(t *testing.T) {
	segments, _ := newSegmentFixture(t)
	ctx := context.Background()
	key := "evening-news-2026-03-15"

	first, err := segments.CreateSegment(ctx, services.CreateSegmentRequest{
		SlotType: models.SlotNews, IdempotencyKey: &key,
	})
	require.NoError(t, err)

	second, err := segments.CreateSegment(ctx, services.CreateSegmentRequest{
		SlotType: models.SlotNews, IdempotencyKey: &key,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "replayed create must return the original segment")
}

func TestTransitionEnforcesStateMachine(t *testing.T) {
	segments, _ := newSegmentFixture(t)
	ctx := context.Background()

	seg, err := segments.CreateSegment(ctx, services.CreateSegmentRequest{SlotType: models.SlotCulture})
	require.NoError(t, err)

	seg, err = segments.Transition(ctx, seg.ID, models.SegmentStateRetrieving)
	require.NoError(t, err)
	assert.Equal(t, models.SegmentStateRetrieving, seg.State)

	// Skipping a stage is an integrity fault.
	_, err = segments.Transition(ctx, seg.ID, models.SegmentStateRendering)
	require.Error(t, err)
	var fault *faults.Error
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, faults.KindIntegrity, fault.Kind)

	// Re-applying the current state is idempotent.
	seg, err = segments.Transition(ctx, seg.ID, models.SegmentStateRetrieving)
	require.NoError(t, err)
	assert.Equal(t, models.SegmentStateRetrieving, seg.State)

	_, err = segments.Transition(ctx, "00000000-0000-0000-0000-000000000000", models.SegmentStateRetrieving)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestSetScriptAndCitations(t *testing.T) {
	segments, _ := newSegmentFixture(t)
	ctx := context.Background()

	seg, err := segments.CreateSegment(ctx, services.CreateSegmentRequest{SlotType: models.SlotNews})
	require.NoError(t, err)

	citations := []models.Citation{{DocID: "doc-1", ChunkID: "chunk-1", RelevanceScore: 0.8}}
	require.NoError(t, segments.SetScript(ctx, seg.ID, "Good evening, colony.", citations))

	got, err := segments.GetSegment(ctx, seg.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ScriptMD)
	assert.Equal(t, "Good evening, colony.", *got.ScriptMD)
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "chunk-1", got.Citations[0].ChunkID)
}

func TestFailureAndRequeue(t *testing.T) {
	segments, _ := newSegmentFixture(t)
	ctx := context.Background()

	seg, err := segments.CreateSegment(ctx, services.CreateSegmentRequest{SlotType: models.SlotNews})
	require.NoError(t, err)

	require.NoError(t, segments.RecordFailure(ctx, seg.ID, errors.New("tts unreachable")))
	got, err := segments.GetSegment(ctx, seg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, models.SegmentStateQueued, got.State, "RecordFailure must not change state")

	_, err = segments.MarkFailed(ctx, seg.ID, errors.New("retries exhausted"))
	require.NoError(t, err)

	requeued, err := segments.Requeue(ctx, seg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SegmentStateQueued, requeued.State)
	assert.Nil(t, requeued.LastError)
}

func TestPlayoutLifecycle(t *testing.T) {
	segments, assets := newSegmentFixture(t)
	ctx := context.Background()

	drive := func(slot models.SlotType, scheduled *time.Time, priority int) *models.Segment {
		seg, err := segments.CreateSegment(ctx, services.CreateSegmentRequest{
			SlotType: slot, ScheduledStartTS: scheduled, Priority: priority,
		})
		require.NoError(t, err)
		for _, st := range []models.SegmentState{
			models.SegmentStateRetrieving, models.SegmentStateGenerating,
			models.SegmentStateRendering, models.SegmentStateNormalizing,
		} {
			seg, err = segments.Transition(ctx, seg.ID, st)
			require.NoError(t, err)
		}
		asset, err := assets.CreateAsset(ctx, "hash-"+seg.ID, "raw/"+seg.ID+".wav")
		require.NoError(t, err)
		duration := 42.0
		require.NoError(t, segments.BindAsset(ctx, seg.ID, asset.ID, &duration))
		seg, err = segments.Transition(ctx, seg.ID, models.SegmentStateReady)
		require.NoError(t, err)
		return seg
	}

	early := time.Date(2026, 3, 15, 18, 0, 0, 0, time.UTC)
	late := time.Date(2026, 3, 15, 20, 0, 0, 0, time.UTC)
	second := drive(models.SlotCulture, &late, 5)
	first := drive(models.SlotNews, &early, 5)
	unscheduled := drive(models.SlotStationID, nil, 9)

	ready, err := segments.NextReady(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ready, 3)
	assert.Equal(t, first.ID, ready[0].ID, "earliest scheduled start first")
	assert.Equal(t, second.ID, ready[1].ID)
	assert.Equal(t, unscheduled.ID, ready[2].ID, "unscheduled sorts last")

	// ready -> airing is idempotent; aired stamps the air time.
	_, err = segments.MarkAiring(ctx, first.ID)
	require.NoError(t, err)
	_, err = segments.MarkAiring(ctx, first.ID)
	require.NoError(t, err)

	airedAt := time.Date(2026, 3, 15, 18, 3, 0, 0, time.UTC)
	aired, err := segments.MarkAired(ctx, first.ID, airedAt)
	require.NoError(t, err)
	require.NotNil(t, aired.AiredAt)
	assert.True(t, aired.AiredAt.Equal(airedAt))

	ready, err = segments.NextReady(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, ready, 2, "airing segments leave the feed")
}
