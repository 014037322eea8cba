package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

func startTestPool(t *testing.T, manager *Manager, register func(*WorkerPool)) *WorkerPool {
	t.Helper()

	pool := NewWorkerPool(manager, arbor.NewLogger(), &common.QueueConfig{
		PollInterval: "50ms",
		Concurrency:  1,
	})
	register(pool)
	require.NoError(t, pool.Start())
	t.Cleanup(func() { pool.Stop() })
	return pool
}

func waitForStatus(t *testing.T, jobs interfaces.JobStorage, jobID string, want models.QueueStatus) *models.JobRecord {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, err := jobs.GetRecord(context.Background(), jobID)
		if err == nil && record.Status == want {
			return record
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Job %s never reached status %s", jobID, want)
	return nil
}

func TestWorkerPoolExecutesHandler(t *testing.T) {
	manager, jobs := newTestManager(t)

	var calls atomic.Int32
	startTestPool(t, manager, func(pool *WorkerPool) {
		pool.RegisterHandler(models.JobKindSummary, func(ctx context.Context, msg *models.QueueMessage) error {
			calls.Add(1)
			assert.Equal(t, "2401.00001", msg.EntityKey)
			return nil
		})
	})

	id, err := manager.Enqueue(context.Background(), models.JobKindSummary, "2401.00001", nil)
	require.NoError(t, err)

	record := waitForStatus(t, jobs, id, models.QueueStatusFinished)
	assert.Equal(t, int32(1), calls.Load())
	assert.NotNil(t, record.EndedAt)
}

func TestWorkerPoolRecordsHandlerFailure(t *testing.T) {
	manager, jobs := newTestManager(t)

	startTestPool(t, manager, func(pool *WorkerPool) {
		pool.RegisterHandler(models.JobKindComic, func(ctx context.Context, msg *models.QueueMessage) error {
			return errors.New("image backend unavailable")
		})
	})

	id, err := manager.Enqueue(context.Background(), models.JobKindComic, "2401.00002", nil)
	require.NoError(t, err)

	record := waitForStatus(t, jobs, id, models.QueueStatusFailed)
	assert.Contains(t, record.Error, "image backend unavailable")
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	manager, jobs := newTestManager(t)

	startTestPool(t, manager, func(pool *WorkerPool) {
		pool.RegisterHandler(models.JobKindSummary, func(ctx context.Context, msg *models.QueueMessage) error {
			panic("unexpected data shape")
		})
	})

	id, err := manager.Enqueue(context.Background(), models.JobKindSummary, "2401.00003", nil)
	require.NoError(t, err)

	record := waitForStatus(t, jobs, id, models.QueueStatusFailed)
	assert.Contains(t, record.Error, "job panicked")
}

func TestWorkerPoolFailsUnhandledKind(t *testing.T) {
	manager, jobs := newTestManager(t)

	startTestPool(t, manager, func(pool *WorkerPool) {
		pool.RegisterHandler(models.JobKindSummary, func(ctx context.Context, msg *models.QueueMessage) error {
			return nil
		})
	})

	id, err := manager.Enqueue(context.Background(), models.JobKindCrawl, "", nil)
	require.NoError(t, err)

	record := waitForStatus(t, jobs, id, models.QueueStatusFailed)
	assert.Contains(t, record.Error, "no handler")
}
