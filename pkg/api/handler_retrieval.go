package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aetherfm/station/pkg/retrieval"
)

// Retrieve handles POST /rag/retrieve: run one hybrid retrieval query and
// return the ranked chunks. Script generation uses the same path internally;
// this endpoint exists for debugging and external consumers.
func (s *Server) Retrieve(c *gin.Context) {
	var q retrieval.Query
	if err := c.ShouldBindJSON(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := s.retriever.Retrieve(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
