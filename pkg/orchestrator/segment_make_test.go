package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/scriptgen"
)

func TestConversationFormat(t *testing.T) {
	tests := []struct {
		slot     models.SlotType
		expected string
	}{
		{models.SlotInterview, "interview"},
		{models.SlotPanel, "panel"},
		{models.SlotDialogue, "dialogue"},
	}
	for _, tt := range tests {
		t.Run(string(tt.slot), func(t *testing.T) {
			assert.Equal(t, tt.expected, conversationFormat(tt.slot))
		})
	}
}

func TestFormatDialogue(t *testing.T) {
	turns := []scriptgen.Turn{
		{Speaker: "Vega", Text: "Good evening, Castor."},
		{Speaker: "Castor", Text: "Evening. Quiet skies tonight."},
	}
	got := formatDialogue(turns)
	assert.Equal(t, "VEGA: Good evening, Castor.\nCASTOR: Evening. Quiet skies tonight.", got)

	// Round-trips through the turn parser.
	parsed := scriptgen.ParseTurns(got)
	assert.Len(t, parsed, 2)
	assert.Equal(t, "VEGA", parsed[0].Speaker)
	assert.Equal(t, "Evening. Quiet skies tonight.", parsed[1].Text)
}

func TestVoiceFor(t *testing.T) {
	h := &SegmentMakeHandler{gen: config.DefaultGenerationConfig()}

	tests := []struct {
		name     string
		speaker  string
		expected string
	}{
		{"full name", "Vega Lumen", "vega"},
		{"first word uppercase", "CASTOR", "castor"},
		{"first word mixed case", "Juniper", "juniper"},
		{"unknown falls back to host", "NARRATOR", "vega"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, h.voiceFor(tt.speaker))
		})
	}
}

func TestReferenceTime(t *testing.T) {
	gen := config.DefaultGenerationConfig()
	gen.FutureYearOffset = 500
	h := &SegmentMakeHandler{gen: gen}

	t.Run("scheduled start shifted by year offset", func(t *testing.T) {
		scheduled := time.Date(2026, 3, 15, 20, 0, 0, 0, time.UTC)
		seg := &models.Segment{ScheduledStartTS: &scheduled}

		got := h.referenceTime(seg)
		assert.Equal(t, 2526, got.Year())
		assert.Equal(t, time.March, got.Month())
		assert.Equal(t, 15, got.Day())
		assert.Equal(t, 20, got.Hour())
	})

	t.Run("unscheduled segment uses current time", func(t *testing.T) {
		seg := &models.Segment{}

		got := h.referenceTime(seg)
		assert.Equal(t, time.Now().UTC().Year()+500, got.Year())
	})
}
