// Package api exposes the station's HTTP surface: the playout feed, knowledge
// base ingestion, segment management, retrieval, and operator endpoints.
package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/retrieval"
	"github.com/aetherfm/station/pkg/services"
)

// Retriever is the retrieval call surface. Satisfied by *retrieval.Service.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// URLSigner presigns audio object URLs. Satisfied by *blob.Store.
type URLSigner interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Server holds the handler dependencies.
type Server struct {
	pool      *pgxpool.Pool
	segments  *services.SegmentService
	assets    *services.AssetService
	kb        *services.KBService
	tone      *services.ToneService
	health    *services.HealthService
	retriever Retriever
	jobs      *jobstore.Store
	blobs     URLSigner
	playout   *config.PlayoutConfig
}

// NewServer creates a new API server
func NewServer(pool *pgxpool.Pool, segments *services.SegmentService, assets *services.AssetService,
	kb *services.KBService, tone *services.ToneService, health *services.HealthService,
	retriever Retriever, jobs *jobstore.Store, blobs URLSigner, playout *config.PlayoutConfig) *Server {

	return &Server{
		pool:      pool,
		segments:  segments,
		assets:    assets,
		kb:        kb,
		tone:      tone,
		health:    health,
		retriever: retriever,
		jobs:      jobs,
		blobs:     blobs,
		playout:   playout,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.Healthz)

	playout := r.Group("/playout")
	{
		playout.GET("/next", s.PlayoutNext)
		playout.POST("/now-playing", s.NowPlaying)
		playout.POST("/aired", s.Aired)
	}

	kb := r.Group("/kb")
	{
		kb.POST("/docs", s.CreateDoc)
		kb.POST("/events", s.CreateEvent)
		kb.GET("/status/:source_id", s.IndexStatus)
	}

	r.POST("/rag/retrieve", s.Retrieve)

	segments := r.Group("/segments")
	{
		segments.POST("", s.CreateSegment)
		segments.GET("/:id", s.GetSegment)
		segments.POST("/:id/requeue", s.RequeueSegment)
	}

	admin := r.Group("/admin")
	{
		admin.GET("/deadletters", s.ListDeadLetters)
		admin.POST("/deadletters/:id/requeue", s.RequeueDeadLetter)
		admin.GET("/workers", s.ListWorkers)
	}

	r.POST("/analytics/tone/aggregate", s.ToneAggregate)

	return r
}
