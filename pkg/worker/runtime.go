// Package worker provides the reusable job-processing harness: claim loop
// with NOTIFY wake-up, per-job lease renewal, concurrency cap, heartbeats,
// and graceful drain. Handlers supply the job semantics; everything else
// lives here.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/events"
	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/models"
)

// Handler processes a single claimed job. The context is cancelled when the
// lease is lost or the runtime shuts down; handlers must observe it at I/O
// boundaries. Returning nil completes the job; returning an error routes it
// through the store's retry/dead-letter decision.
type Handler interface {
	Handle(ctx context.Context, job *models.Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *models.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job *models.Job) error {
	return f(ctx, job)
}

// Heartbeats records runtime liveness. Implemented by the health service.
type Heartbeats interface {
	Beat(ctx context.Context, hc models.HealthCheck) error
}

// Runtime runs the claim loop for one job type.
//
// At-least-once delivery: a handler may observe the same job twice (after a
// lost lease or a reaped crash), so handlers must be idempotent.
type Runtime struct {
	workerType string
	instanceID string
	store      *jobstore.Store
	listener   *events.Listener
	heartbeats Heartbeats
	handler    Handler
	cfg        *config.QueueConfig

	stopCh    chan struct{}
	stopOnce  sync.Once
	loopWG    sync.WaitGroup // claim loop + heartbeat
	handlerWG sync.WaitGroup // in-flight handlers

	cancelJobs context.CancelFunc // cancels in-flight handler contexts at drain deadline

	inFlight  atomic.Int64
	processed atomic.Int64
	slotFree  chan struct{}
	startedAt time.Time
}

// NewRuntime creates a runtime for the given job type. listener may be nil
// (pure polling). heartbeats may be nil (no health rows).
func NewRuntime(workerType, instanceID string, store *jobstore.Store, listener *events.Listener, heartbeats Heartbeats, cfg *config.QueueConfig, handler Handler) *Runtime {
	return &Runtime{
		workerType: workerType,
		instanceID: instanceID,
		store:      store,
		listener:   listener,
		heartbeats: heartbeats,
		handler:    handler,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		slotFree:   make(chan struct{}, 1),
	}
}

// WorkerID returns the lease-owner identity used for claims.
func (r *Runtime) WorkerID() string {
	return r.instanceID + "/" + r.workerType
}

// InFlight returns the number of currently running handlers.
func (r *Runtime) InFlight() int {
	return int(r.inFlight.Load())
}

// Start subscribes to the wake-up channel and begins claiming.
func (r *Runtime) Start(ctx context.Context) error {
	r.startedAt = time.Now()

	var wake <-chan struct{}
	if r.listener != nil {
		var err error
		wake, err = r.listener.Subscribe(ctx, jobstore.NotifyChannel(r.workerType))
		if err != nil {
			return fmt.Errorf("failed to subscribe to wake-up channel: %w", err)
		}
	}

	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	r.cancelJobs = cancelJobs

	r.loopWG.Add(1)
	go func() {
		defer r.loopWG.Done()
		r.run(ctx, jobCtx, wake)
	}()

	if r.heartbeats != nil {
		r.loopWG.Add(1)
		go func() {
			defer r.loopWG.Done()
			r.runHeartbeat(ctx)
		}()
	}

	slog.Info("Worker runtime started",
		"worker_type", r.workerType,
		"worker_id", r.WorkerID(),
		"max_concurrent", r.cfg.MaxConcurrentJobs)
	return nil
}

// Stop stops claiming, waits up to the drain timeout for in-flight handlers,
// then cancels whatever is left for the reaper to reclaim.
// It is safe to call Stop multiple times.
func (r *Runtime) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.loopWG.Wait()

	drained := make(chan struct{})
	go func() {
		r.handlerWG.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		slog.Info("Worker runtime drained", "worker_type", r.workerType)
	case <-time.After(r.cfg.DrainTimeout):
		slog.Warn("Drain deadline reached, abandoning in-flight jobs",
			"worker_type", r.workerType, "in_flight", r.inFlight.Load())
		if r.cancelJobs != nil {
			r.cancelJobs()
		}
		r.handlerWG.Wait()
	}
}

// run is the main claim loop: claim until empty or at capacity, then sleep
// until a wake-up, a freed slot, or the poll interval.
func (r *Runtime) run(ctx, jobCtx context.Context, wake <-chan struct{}) {
	log := slog.With("worker_type", r.workerType, "worker_id", r.WorkerID())
	log.Info("Claim loop started")

	for {
		select {
		case <-r.stopCh:
			log.Info("Claim loop shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, claim loop shutting down")
			return
		default:
		}

		claimed := r.claimAvailable(ctx, jobCtx, log)

		if !claimed {
			select {
			case <-r.stopCh:
			case <-ctx.Done():
			case <-wake:
			case <-r.slotFree:
			case <-time.After(r.cfg.PollInterval):
			}
		}
	}
}

// claimAvailable claims jobs until the queue is empty or the concurrency cap
// is reached. Returns true if at least one job was claimed (the loop should
// immediately try again rather than sleep).
func (r *Runtime) claimAvailable(ctx, jobCtx context.Context, log *slog.Logger) bool {
	claimedAny := false
	for r.inFlight.Load() < int64(r.cfg.MaxConcurrentJobs) {
		job, err := r.store.Claim(ctx, r.workerType, r.WorkerID(), r.cfg.Lease())
		if err != nil {
			if !errors.Is(err, jobstore.ErrNoJobsAvailable) && ctx.Err() == nil {
				log.Error("Claim failed", "error", err)
			}
			return claimedAny
		}
		claimedAny = true

		r.inFlight.Add(1)
		r.handlerWG.Add(1)
		go func() {
			defer r.handlerWG.Done()
			defer func() {
				r.inFlight.Add(-1)
				select {
				case r.slotFree <- struct{}{}:
				default:
				}
			}()
			r.runJob(jobCtx, job)
		}()
	}
	return claimedAny
}

// runJob executes the handler under lease renewal and records the terminal
// state. Terminal updates use a background context: the job context may
// already be cancelled by the time the handler returns.
func (r *Runtime) runJob(jobCtx context.Context, job *models.Job) {
	log := slog.With("job_id", job.ID, "job_type", job.Type, "worker_id", r.WorkerID())
	log.Info("Job claimed", "attempt", job.Attempts, "max_attempts", job.MaxAttempts)

	ctx, cancel := context.WithCancel(jobCtx)
	defer cancel()

	var leaseLost atomic.Bool
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		r.renewLease(ctx, job.ID, &leaseLost, cancel)
	}()

	err := r.safeHandle(ctx, job)
	cancel()
	<-renewDone
	r.processed.Add(1)

	if leaseLost.Load() {
		// Someone else may already be running this job; do not touch it.
		log.Warn("Lease lost during processing, abandoning terminal update")
		return
	}

	termCtx, termCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer termCancel()

	if err != nil {
		if failErr := r.store.Fail(termCtx, job.ID, err); failErr != nil {
			log.Error("Failed to record job failure", "error", failErr)
		}
		log.Warn("Job failed", "error", err)
		return
	}

	if err := r.store.Complete(termCtx, job.ID); err != nil {
		log.Error("Failed to complete job", "error", err)
		return
	}
	log.Info("Job completed")
}

// safeHandle isolates handler panics so one bad job cannot take down the
// runtime; a panic surfaces as a job failure.
func (r *Runtime) safeHandle(ctx context.Context, job *models.Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return r.handler.Handle(ctx, job)
}

// renewLease extends the job lease every lease/2 until the handler returns.
// A failed renewal means the lease is gone — the handler context is cancelled
// so in-flight I/O aborts.
func (r *Runtime) renewLease(ctx context.Context, jobID string, leaseLost *atomic.Bool, cancel context.CancelFunc) {
	ticker := time.NewTicker(r.cfg.Lease() / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := r.store.RenewLease(ctx, jobID, r.WorkerID(), r.cfg.Lease())
			if err == nil {
				continue
			}
			if errors.Is(err, jobstore.ErrLeaseLost) {
				slog.Warn("Job lease lost", "job_id", jobID, "worker_id", r.WorkerID())
				leaseLost.Store(true)
				cancel()
				return
			}
			if ctx.Err() == nil {
				slog.Warn("Lease renewal failed", "job_id", jobID, "error", err)
			}
		}
	}
}

// runHeartbeat upserts the health row every heartbeat interval.
func (r *Runtime) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	beat := func(status string) {
		beatCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := r.heartbeats.Beat(beatCtx, models.HealthCheck{
			WorkerType:   r.workerType,
			InstanceID:   r.instanceID,
			Status:       status,
			JobsInFlight: int(r.inFlight.Load()),
			UptimeSec:    int64(time.Since(r.startedAt).Seconds()),
		})
		if err != nil {
			slog.Warn("Heartbeat failed", "worker_type", r.workerType, "error", err)
		}
	}

	beat("ok")
	for {
		select {
		case <-r.stopCh:
			beat("stopping")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat("ok")
		}
	}
}
