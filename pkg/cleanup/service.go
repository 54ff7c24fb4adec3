// Package cleanup provides data retention services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/services"
)

// Service periodically enforces retention policies:
//   - Archives segments that aired longer ago than the aired retention
//   - Purges completed jobs past the job retention
//
// All operations are idempotent and safe to run from multiple instances.
type Service struct {
	config   *config.RetentionConfig
	segments *services.SegmentService
	jobs     *jobstore.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, segments *services.SegmentService, jobs *jobstore.Store) *Service {
	return &Service{
		config:   cfg,
		segments: segments,
		jobs:     jobs,
	}
}

// Start launches the background retention loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started",
		"aired_retention", s.config.AiredRetention,
		"job_retention", s.config.JobRetention,
		"interval", s.config.CleanupInterval)
}

// Stop signals the retention loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.archiveAiredSegments(ctx)
	s.purgeCompletedJobs(ctx)
}

func (s *Service) archiveAiredSegments(_ context.Context) {
	cutoff := time.Now().Add(-s.config.AiredRetention)
	count, err := s.segments.ArchiveAiredBefore(context.Background(), cutoff)
	if err != nil {
		slog.Error("Retention: segment archival failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: archived aired segments", "count", count)
	}
}

func (s *Service) purgeCompletedJobs(_ context.Context) {
	cutoff := time.Now().Add(-s.config.JobRetention)
	count, err := s.jobs.PurgeCompletedBefore(context.Background(), cutoff)
	if err != nil {
		slog.Error("Retention: job purge failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: purged completed jobs", "count", count)
	}
}
