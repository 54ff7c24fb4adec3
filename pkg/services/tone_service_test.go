package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/services"
	testdb "github.com/aetherfm/station/test/database"
)

func TestRecordScoreAndAggregate(t *testing.T) {
	client := testdb.NewTestClient(t)
	segments := services.NewSegmentService(client.Pool())
	tone := services.NewToneService(client.Pool())
	ctx := context.Background()

	seg, err := segments.CreateSegment(ctx, services.CreateSegmentRequest{SlotType: models.SlotNews})
	require.NoError(t, err)

	_, err = tone.RecordScore(ctx, seg.ID, 101, nil)
	assert.True(t, services.IsValidationError(err))
	_, err = tone.RecordScore(ctx, seg.ID, -1, nil)
	assert.True(t, services.IsValidationError(err))

	_, err = tone.RecordScore(ctx, seg.ID, 90, nil)
	require.NoError(t, err)
	_, err = tone.RecordScore(ctx, seg.ID, 60, []string{"dystopian", "anachronism"})
	require.NoError(t, err)
	_, err = tone.RecordScore(ctx, seg.ID, 80, []string{"dystopian"})
	require.NoError(t, err)

	today := time.Now().UTC().Truncate(24 * time.Hour)
	agg, err := tone.AggregateDay(ctx, today)
	require.NoError(t, err)
	assert.Equal(t, 3, agg.SegmentCount)
	assert.InDelta(t, 76.67, agg.AverageScore, 0.01)
	assert.Equal(t, 60, agg.MinScore)
	assert.Equal(t, 2, agg.FlagCounts["dystopian"])
	assert.Equal(t, 1, agg.FlagCounts["anachronism"])

	// A day with no scores aggregates to zeros, not an error.
	empty, err := tone.AggregateDay(ctx, today.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.SegmentCount)
	assert.Empty(t, empty.FlagCounts)
}
