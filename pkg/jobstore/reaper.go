package jobstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/aetherfm/station/pkg/faults"
)

// Reaper returns stale jobs (processing with an expired lease) to the queue.
// It is the sole guarantor of liveness against crashed workers. Every process
// runs one; the recovery path is idempotent so overlapping scans are safe.
type Reaper struct {
	store    *Store
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu        sync.Mutex
	lastScan  time.Time
	reclaimed int
}

// NewReaper creates a reaper over the given store.
func NewReaper(store *Store, interval time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic scan in a goroutine.
func (r *Reaper) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
	slog.Info("Reaper started", "interval", r.interval)
}

// Stop signals the reaper to stop and waits for it to finish.
// It is safe to call Stop multiple times.
func (r *Reaper) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// Stats returns the last scan time and the total of reclaimed jobs.
func (r *Reaper) Stats() (lastScan time.Time, reclaimed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastScan, r.reclaimed
}

func (r *Reaper) run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.reapStale(ctx); err != nil {
				slog.Error("Reaper scan failed", "error", err)
			}
		}
	}
}

// reapStale fails every job whose lease expired. Fail applies the normal
// retry/dead-letter decision, so a job on its final attempt quarantines
// instead of looping forever.
func (r *Reaper) reapStale(ctx context.Context) error {
	rows, err := r.store.pool.Query(ctx, `
		SELECT id, lease_owner FROM jobs
		WHERE state = 'processing' AND lease_expires_at < now()`)
	if err != nil {
		return fmt.Errorf("failed to query stale jobs: %w", err)
	}

	type stale struct {
		ID    string
		Owner *string
	}
	staleJobs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[stale])
	if err != nil {
		return fmt.Errorf("failed to collect stale jobs: %w", err)
	}

	if len(staleJobs) == 0 {
		r.mu.Lock()
		r.lastScan = time.Now()
		r.mu.Unlock()
		return nil
	}

	slog.Warn("Detected stale job leases", "count", len(staleJobs))

	recovered := 0
	for _, j := range staleJobs {
		owner := "unknown"
		if j.Owner != nil {
			owner = *j.Owner
		}
		err := r.store.Fail(ctx, j.ID, faults.Transient(
			fmt.Errorf("lease expired (owner %s)", owner)))
		if err != nil {
			slog.Error("Failed to reap stale job", "job_id", j.ID, "error", err)
			continue
		}
		recovered++
	}

	r.mu.Lock()
	r.lastScan = time.Now()
	r.reclaimed += recovered
	r.mu.Unlock()
	return nil
}
