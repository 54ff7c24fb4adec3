package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/retrieval"
)

type stubRetriever struct {
	result *retrieval.Result
	err    error
	gotQ   retrieval.Query
}

func (s *stubRetriever) Retrieve(_ context.Context, q retrieval.Query) (*retrieval.Result, error) {
	s.gotQ = q
	return s.result, s.err
}

func newTestRouter(s *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return s.Router()
}

func TestRetrieveEndpoint(t *testing.T) {
	stub := &stubRetriever{result: &retrieval.Result{
		Chunks:       []models.RAGChunk{{ChunkID: "c1", SourceID: "d1", SourceType: models.SourceUniverseDoc}},
		TotalResults: 1,
	}}
	router := newTestRouter(&Server{retriever: stub})

	req := httptest.NewRequest(http.MethodPost, "/rag/retrieve",
		strings.NewReader(`{"text": "mars colony news", "top_k": 5}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mars colony news", stub.gotQ.Text)
	assert.Equal(t, 5, stub.gotQ.TopK)
	assert.Contains(t, rec.Body.String(), `"total_results":1`)
}

func TestRetrieveEndpointRejectsBadJSON(t *testing.T) {
	router := newTestRouter(&Server{retriever: &stubRetriever{}})

	req := httptest.NewRequest(http.MethodPost, "/rag/retrieve", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlayoutNextRejectsBadLimit(t *testing.T) {
	router := newTestRouter(&Server{playout: config.DefaultPlayoutConfig()})

	for _, limit := range []string{"0", "-3", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/playout/next?limit="+limit, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestNowPlayingRequiresSegmentID(t *testing.T) {
	router := newTestRouter(&Server{})

	req := httptest.NewRequest(http.MethodPost, "/playout/now-playing", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToneAggregateRejectsBadDate(t *testing.T) {
	router := newTestRouter(&Server{})

	req := httptest.NewRequest(http.MethodPost, "/analytics/tone/aggregate?date=15-03-2026", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToneAggregateIsPostOnly(t *testing.T) {
	router := newTestRouter(&Server{})

	req := httptest.NewRequest(http.MethodGet, "/analytics/tone/aggregate", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
