package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    SegmentState
		to      SegmentState
		allowed bool
	}{
		{"queued to retrieving", SegmentStateQueued, SegmentStateRetrieving, true},
		{"retrieving to generating", SegmentStateRetrieving, SegmentStateGenerating, true},
		{"normalizing to ready", SegmentStateNormalizing, SegmentStateReady, true},
		{"ready to airing", SegmentStateReady, SegmentStateAiring, true},
		{"airing to aired", SegmentStateAiring, SegmentStateAired, true},
		{"aired to archived", SegmentStateAired, SegmentStateArchived, true},
		{"failed to queued (manual requeue)", SegmentStateFailed, SegmentStateQueued, true},
		{"every producing state can fail", SegmentStateRendering, SegmentStateFailed, true},

		{"queued cannot skip to generating", SegmentStateQueued, SegmentStateGenerating, false},
		{"ready cannot fail", SegmentStateReady, SegmentStateFailed, false},
		{"aired cannot re-air", SegmentStateAired, SegmentStateAiring, false},
		{"archived is terminal", SegmentStateArchived, SegmentStateQueued, false},
		{"no backwards transition", SegmentStateGenerating, SegmentStateRetrieving, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestSlotTypeMultiSpeaker(t *testing.T) {
	assert.True(t, SlotInterview.MultiSpeaker())
	assert.True(t, SlotPanel.MultiSpeaker())
	assert.True(t, SlotDialogue.MultiSpeaker())
	assert.False(t, SlotNews.MultiSpeaker())
	assert.False(t, SlotStationID.MultiSpeaker())
}

func TestSlotTypeRequiresGrounding(t *testing.T) {
	assert.False(t, SlotStationID.RequiresGrounding())
	assert.False(t, SlotWeather.RequiresGrounding())
	assert.True(t, SlotNews.RequiresGrounding())
	assert.True(t, SlotInterview.RequiresGrounding())
}

func TestValidators(t *testing.T) {
	assert.NoError(t, SlotTypeValidator(SlotCulture))
	assert.Error(t, SlotTypeValidator(SlotType("podcast")))

	assert.NoError(t, SegmentStateValidator(SegmentStateQueued))
	assert.Error(t, SegmentStateValidator(SegmentState("paused")))

	assert.NoError(t, JobStateValidator(JobStatePending))
	assert.Error(t, JobStateValidator(JobState("sleeping")))
}
