package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aetherfm/station/pkg/blob"
)

// PlayoutItem is one entry in the playout feed: a ready segment plus a
// presigned URL for its mastered audio.
type PlayoutItem struct {
	SegmentID        string     `json:"segment_id"`
	SlotType         string     `json:"slot_type"`
	Lang             string     `json:"lang"`
	DurationSec      *float64   `json:"duration_sec,omitempty"`
	ScheduledStartTS *time.Time `json:"scheduled_start_ts,omitempty"`
	Priority         int        `json:"priority"`
	AudioURL         string     `json:"audio_url"`
	URLExpiresAt     time.Time  `json:"url_expires_at"`
}

// PlayoutNext handles GET /playout/next. It is a pure read: fetching the feed
// never mutates segment state, so a crashed player can poll again safely.
func (s *Server) PlayoutNext(c *gin.Context) {
	limit := s.playout.DefaultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	segments, err := s.segments.NextReady(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]PlayoutItem, 0, len(segments))
	for _, seg := range segments {
		url, err := s.blobs.SignedURL(c.Request.Context(), blob.FinalPath(*seg.AssetID), s.playout.SignedURLTTL)
		if err != nil {
			writeError(c, err)
			return
		}
		items = append(items, PlayoutItem{
			SegmentID:        seg.ID,
			SlotType:         string(seg.SlotType),
			Lang:             seg.Lang,
			DurationSec:      seg.DurationSec,
			ScheduledStartTS: seg.ScheduledStartTS,
			Priority:         seg.Priority,
			AudioURL:         url,
			URLExpiresAt:     time.Now().UTC().Add(s.playout.SignedURLTTL),
		})
	}

	c.JSON(http.StatusOK, gin.H{"segments": items})
}

// PlayoutEventRequest identifies the segment a playout event refers to.
type PlayoutEventRequest struct {
	SegmentID string     `json:"segment_id" binding:"required"`
	AiredAt   *time.Time `json:"aired_at,omitempty"`
}

// NowPlaying handles POST /playout/now-playing: ready -> airing. A repeated
// delivery for a segment that is already airing succeeds without effect.
func (s *Server) NowPlaying(c *gin.Context) {
	var req PlayoutEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seg, err := s.segments.MarkAiring(c.Request.Context(), req.SegmentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, seg)
}

// Aired handles POST /playout/aired: airing -> aired, stamping the air time.
func (s *Server) Aired(c *gin.Context) {
	var req PlayoutEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	airedAt := time.Now().UTC()
	if req.AiredAt != nil {
		airedAt = *req.AiredAt
	}

	seg, err := s.segments.MarkAired(c.Request.Context(), req.SegmentID, airedAt)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, seg)
}
