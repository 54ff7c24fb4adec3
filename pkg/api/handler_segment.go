package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/services"
)

// CreateSegment handles POST /segments: insert a queued segment and enqueue
// its production job. Requests carrying an idempotency key are replay-safe;
// the original segment comes back and no duplicate job is enqueued.
func (s *Server) CreateSegment(c *gin.Context) {
	var req services.CreateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	seg, err := s.segments.CreateSegment(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}

	// A replayed create returns an existing segment already past queued;
	// only fresh (or still-queued) segments get a production job.
	var jobID string
	if seg.State == models.SegmentStateQueued {
		if jobID, err = s.enqueueMake(c, seg); err != nil {
			writeError(c, err)
			return
		}
	}
	c.JSON(http.StatusCreated, gin.H{"segment": seg, "job_id": jobID})
}

// GetSegment handles GET /segments/:id.
func (s *Server) GetSegment(c *gin.Context) {
	seg, err := s.segments.GetSegment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, seg)
}

// RequeueSegment handles POST /segments/:id/requeue: failed -> queued with a
// fresh production job. Operator action.
func (s *Server) RequeueSegment(c *gin.Context) {
	seg, err := s.segments.Requeue(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	jobID, err := s.enqueueMake(c, seg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"segment": seg, "job_id": jobID})
}

func (s *Server) enqueueMake(c *gin.Context, seg *models.Segment) (string, error) {
	payload, err := json.Marshal(models.SegmentMakePayload{SegmentID: seg.ID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal segment payload: %w", err)
	}
	return s.jobs.Enqueue(c.Request.Context(), models.JobTypeSegmentMake, payload,
		jobstore.EnqueueOptions{Priority: seg.Priority})
}
