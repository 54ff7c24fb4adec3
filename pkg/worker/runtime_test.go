package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
	"github.com/aetherfm/station/pkg/jobstore"
	"github.com/aetherfm/station/pkg/models"
	"github.com/aetherfm/station/pkg/worker"
	testdb "github.com/aetherfm/station/test/database"
)

func newRuntimeFixture(t *testing.T, handler worker.Handler) (*worker.Runtime, *jobstore.Store) {
	t.Helper()
	client := testdb.NewTestClient(t)

	cfg := config.DefaultQueueConfig()
	cfg.PollInterval = 50 * time.Millisecond
	cfg.LeaseSeconds = 30
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.BackoffMax = 50 * time.Millisecond
	cfg.DrainTimeout = 5 * time.Second

	store := jobstore.NewStore(client.Pool(), cfg)
	return worker.NewRuntime(models.JobTypeKBIndex, "test", store, nil, nil, cfg, handler), store
}

func TestRuntimeProcessesJobs(t *testing.T) {
	var handled atomic.Int64
	rt, store := newRuntimeFixture(t, worker.HandlerFunc(func(ctx context.Context, job *models.Job) error {
		handled.Add(1)
		return nil
	}))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Enqueue(ctx, models.JobTypeKBIndex, []byte("{}"), jobstore.EnqueueOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	require.Eventually(t, func() bool { return handled.Load() == 3 },
		5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, id := range ids {
			job, err := store.Get(ctx, id)
			if err != nil || job.State != models.JobStateCompleted {
				return false
			}
		}
		return true
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "test/kb_index", rt.WorkerID())
}

func TestRuntimeRetriesTransientFailure(t *testing.T) {
	var attempts atomic.Int64
	rt, store := newRuntimeFixture(t, worker.HandlerFunc(func(ctx context.Context, job *models.Job) error {
		if attempts.Add(1) == 1 {
			return faults.Transient(errors.New("embedding server down"))
		}
		return nil
	}))
	ctx := context.Background()

	id, err := store.Enqueue(ctx, models.JobTypeKBIndex, []byte("{}"),
		jobstore.EnqueueOptions{MaxAttempts: 3})
	require.NoError(t, err)

	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	require.Eventually(t, func() bool {
		job, getErr := store.Get(ctx, id)
		return getErr == nil && job.State == models.JobStateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, int64(2), attempts.Load())
}

func TestRuntimeDeadLettersAfterMaxAttempts(t *testing.T) {
	rt, store := newRuntimeFixture(t, worker.HandlerFunc(func(ctx context.Context, job *models.Job) error {
		return faults.Semanticf(faults.CodeScriptInvalid, "never valid")
	}))
	ctx := context.Background()

	id, err := store.Enqueue(ctx, models.JobTypeKBIndex, []byte("{}"),
		jobstore.EnqueueOptions{MaxAttempts: 2})
	require.NoError(t, err)

	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	require.Eventually(t, func() bool {
		job, getErr := store.Get(ctx, id)
		return getErr == nil && job.State == models.JobStateFailed
	}, 5*time.Second, 20*time.Millisecond)

	letters, err := store.ListDeadLetters(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, 2, letters[0].AttemptsMade)
}

func TestRuntimeSurvivesHandlerPanic(t *testing.T) {
	var calls atomic.Int64
	rt, store := newRuntimeFixture(t, worker.HandlerFunc(func(ctx context.Context, job *models.Job) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return nil
	}))
	ctx := context.Background()

	id, err := store.Enqueue(ctx, models.JobTypeKBIndex, []byte("{}"),
		jobstore.EnqueueOptions{MaxAttempts: 3})
	require.NoError(t, err)

	require.NoError(t, rt.Start(ctx))
	defer rt.Stop()

	// The panic is converted into a failure and the job retries normally.
	require.Eventually(t, func() bool {
		job, getErr := store.Get(ctx, id)
		return getErr == nil && job.State == models.JobStateCompleted
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRuntimeStopDrainsInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	rt, store := newRuntimeFixture(t, worker.HandlerFunc(func(ctx context.Context, job *models.Job) error {
		close(started)
		<-release
		return nil
	}))
	ctx := context.Background()

	id, err := store.Enqueue(ctx, models.JobTypeKBIndex, []byte("{}"), jobstore.EnqueueOptions{})
	require.NoError(t, err)

	require.NoError(t, rt.Start(ctx))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}
	assert.Equal(t, 1, rt.InFlight())

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()
	rt.Stop()

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateCompleted, job.State, "drain must let the handler finish")
	assert.Equal(t, 0, rt.InFlight())
}
