package models

import (
	"fmt"
	"time"
)

// SegmentState represents the lifecycle state of a broadcast segment.
type SegmentState string

// Segment states.
const (
	SegmentStateQueued      SegmentState = "queued"
	SegmentStateRetrieving  SegmentState = "retrieving"
	SegmentStateGenerating  SegmentState = "generating"
	SegmentStateRendering   SegmentState = "rendering"
	SegmentStateNormalizing SegmentState = "normalizing"
	SegmentStateReady       SegmentState = "ready"
	SegmentStateAiring      SegmentState = "airing"
	SegmentStateAired       SegmentState = "aired"
	SegmentStateFailed      SegmentState = "failed"
	SegmentStateArchived    SegmentState = "archived"
)

// SegmentStateValidator validates a segment state value.
func SegmentStateValidator(s SegmentState) error {
	if _, ok := segmentTransitions[s]; ok {
		return nil
	}
	return fmt.Errorf("invalid segment state: %q", s)
}

// segmentTransitions is the full table of legal segment state transitions.
// Any transition not listed here is an integrity violation.
var segmentTransitions = map[SegmentState][]SegmentState{
	SegmentStateQueued:      {SegmentStateRetrieving, SegmentStateFailed},
	SegmentStateRetrieving:  {SegmentStateGenerating, SegmentStateFailed},
	SegmentStateGenerating:  {SegmentStateRendering, SegmentStateFailed},
	SegmentStateRendering:   {SegmentStateNormalizing, SegmentStateFailed},
	SegmentStateNormalizing: {SegmentStateReady, SegmentStateFailed},
	SegmentStateReady:       {SegmentStateAiring},
	SegmentStateAiring:      {SegmentStateAired},
	SegmentStateAired:       {SegmentStateArchived},
	SegmentStateFailed:      {SegmentStateQueued}, // manual requeue only
	SegmentStateArchived:    {},
}

// CanTransition reports whether from → to is a legal segment transition.
func CanTransition(from, to SegmentState) bool {
	for _, next := range segmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SlotType is the categorical role of a segment. It determines the word-count
// target and the retrieval query template.
type SlotType string

// Slot types.
const (
	SlotNews      SlotType = "news"
	SlotCulture   SlotType = "culture"
	SlotTech      SlotType = "tech"
	SlotInterview SlotType = "interview"
	SlotPanel     SlotType = "panel"
	SlotDialogue  SlotType = "dialogue"
	SlotStationID SlotType = "station_id"
	SlotWeather   SlotType = "weather"
	SlotHistory   SlotType = "history"
)

// SlotTypeValidator validates a slot type value.
func SlotTypeValidator(s SlotType) error {
	switch s {
	case SlotNews, SlotCulture, SlotTech, SlotInterview, SlotPanel,
		SlotDialogue, SlotStationID, SlotWeather, SlotHistory:
		return nil
	}
	return fmt.Errorf("invalid slot type: %q", s)
}

// MultiSpeaker reports whether the slot produces a dialogue script rendered
// turn-by-turn instead of a single-voice read.
func (s SlotType) MultiSpeaker() bool {
	switch s {
	case SlotInterview, SlotPanel, SlotDialogue:
		return true
	}
	return false
}

// RequiresGrounding reports whether retrieval must return at least one chunk
// for the slot. Station IDs and weather reads are scripted without sources.
func (s SlotType) RequiresGrounding() bool {
	switch s {
	case SlotStationID, SlotWeather:
		return false
	}
	return true
}

// Citation records a source reference extracted from a generated script.
type Citation struct {
	DocID          string  `json:"doc_id"`
	ChunkID        string  `json:"chunk_id"`
	Title          string  `json:"title,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// Segment is the atomic unit of broadcast content.
type Segment struct {
	ID               string       `json:"id"`
	ProgramID        *string      `json:"program_id,omitempty"`
	SlotType         SlotType     `json:"slot_type"`
	State            SegmentState `json:"state"`
	Lang             string       `json:"lang"`
	ScriptMD         *string      `json:"script_md,omitempty"`
	AssetID          *string      `json:"asset_id,omitempty"`
	DurationSec      *float64     `json:"duration_sec,omitempty"`
	ScheduledStartTS *time.Time   `json:"scheduled_start_ts,omitempty"`
	AiredAt          *time.Time   `json:"aired_at,omitempty"`
	RetryCount       int          `json:"retry_count"`
	MaxRetries       int          `json:"max_retries"`
	LastError        *string      `json:"last_error,omitempty"`
	Citations        []Citation   `json:"citations"`
	CacheKey         *string      `json:"cache_key,omitempty"`
	IdempotencyKey   *string      `json:"idempotency_key,omitempty"`
	Priority         int          `json:"priority"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}
