package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/models"
)

// CreateDocRequest is the body for POST /kb/docs.
type CreateDocRequest struct {
	Title string `json:"title"`
	Body  string `json:"body" binding:"required"`
	Lang  string `json:"lang,omitempty"`
}

// CreateDoc inserts a universe document and enqueues its indexing job.
func (s *Server) CreateDoc(c *gin.Context) {
	var req CreateDocRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := s.kb.CreateDoc(c.Request.Context(), req.Title, req.Body, req.Lang)
	if err != nil {
		writeError(c, err)
		return
	}

	jobID, err := s.enqueueIndex(c, doc.ID, models.SourceUniverseDoc)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"doc": doc, "index_job_id": jobID})
}

// CreateEventRequest is the body for POST /kb/events.
type CreateEventRequest struct {
	Title     string    `json:"title"`
	Body      string    `json:"body" binding:"required"`
	Lang      string    `json:"lang,omitempty"`
	EventDate time.Time `json:"event_date" binding:"required"`
}

// CreateEvent inserts a dated event and enqueues its indexing job.
func (s *Server) CreateEvent(c *gin.Context) {
	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ev, err := s.kb.CreateEvent(c.Request.Context(), req.Title, req.Body, req.Lang, req.EventDate)
	if err != nil {
		writeError(c, err)
		return
	}

	jobID, err := s.enqueueIndex(c, ev.ID, models.SourceEvent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": ev, "index_job_id": jobID})
}

// IndexStatus handles GET /kb/status/:source_id?source_type=...
func (s *Server) IndexStatus(c *gin.Context) {
	sourceType := c.DefaultQuery("source_type", models.SourceUniverseDoc)
	if sourceType != models.SourceUniverseDoc && sourceType != models.SourceEvent {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown source type %q", sourceType)})
		return
	}

	st, err := s.kb.GetIndexStatus(c.Request.Context(), c.Param("source_id"), sourceType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) enqueueIndex(c *gin.Context, sourceID, sourceType string) (string, error) {
	payload, err := json.Marshal(models.KBIndexPayload{SourceID: sourceID, SourceType: sourceType})
	if err != nil {
		return "", fmt.Errorf("failed to marshal index payload: %w", err)
	}
	return s.jobs.Enqueue(c.Request.Context(), models.JobTypeKBIndex, payload, jobstore.EnqueueOptions{Priority: 5})
}
