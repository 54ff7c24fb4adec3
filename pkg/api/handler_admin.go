package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// ListDeadLetters handles GET /admin/deadletters?limit=N.
func (s *Server) ListDeadLetters(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	letters, err := s.jobs.ListDeadLetters(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": letters})
}

// RequeueDeadLetter handles POST /admin/deadletters/:id/requeue.
func (s *Server) RequeueDeadLetter(c *gin.Context) {
	jobID, err := s.jobs.RequeueDeadLetter(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": jobID})
}

// ListWorkers handles GET /admin/workers: the latest heartbeat of every
// worker instance.
func (s *Server) ListWorkers(c *gin.Context) {
	workers, err := s.health.ListWorkers(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"workers": workers})
}

// ToneAggregate handles POST /analytics/tone/aggregate?date=YYYY-MM-DD.
// Defaults to the current UTC day.
func (s *Server) ToneAggregate(c *gin.Context) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if v := c.Query("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		day = parsed
	}

	agg, err := s.tone.AggregateDay(c.Request.Context(), day)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, agg)
}
