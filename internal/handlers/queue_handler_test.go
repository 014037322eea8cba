package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
	storagebadger "github.com/ternarybob/colligo/internal/storage/badger"
)

func newQueueHandlerTest(t *testing.T, queue *fakeQueue) (*QueueHandler, *storagebadger.Manager) {
	t.Helper()

	logger := common.GetLogger()
	storage, err := storagebadger.NewManager(logger, &common.StorageConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	return NewQueueHandler(queue, storage.Jobs(), logger), storage
}

func TestQueueStats(t *testing.T) {
	queue := &fakeQueue{}
	handler, _ := newQueueHandlerTest(t, queue)

	rec := httptest.NewRecorder()
	handler.GetStatsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/queue/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.QueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 0, stats.Queued)
}

func TestListJobsUnknownStatus(t *testing.T) {
	handler, _ := newQueueHandlerTest(t, &fakeQueue{})

	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/queue/jobs?status=bogus", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobsByStatus(t *testing.T) {
	handler, storage := newQueueHandlerTest(t, &fakeQueue{})

	record := &models.JobRecord{
		JobID:      "job-1",
		Kind:       models.JobKindSummary,
		EntityKey:  "2401.00001",
		Status:     models.QueueStatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, storage.Jobs().SaveRecord(context.Background(), record))

	rec := httptest.NewRecorder()
	handler.ListJobsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/queue/jobs?status=queued", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int                 `json:"count"`
		Jobs  []*models.JobRecord `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "job-1", body.Jobs[0].JobID)
}

func TestGetQueuedJobIncludesPosition(t *testing.T) {
	handler, storage := newQueueHandlerTest(t, &fakeQueue{position: 3})

	record := &models.JobRecord{
		JobID:      "job-1",
		Kind:       models.JobKindSummary,
		EntityKey:  "2401.00001",
		Status:     models.QueueStatusQueued,
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, storage.Jobs().SaveRecord(context.Background(), record))

	rec := httptest.NewRecorder()
	handler.JobRoutesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/queue/jobs/job-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		JobID    string `json:"job_id"`
		Position int    `json:"position"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body.JobID)
	assert.Equal(t, 3, body.Position)
}

func TestGetFinishedJobOmitsPosition(t *testing.T) {
	handler, storage := newQueueHandlerTest(t, &fakeQueue{position: 3})

	record := &models.JobRecord{
		JobID:      "job-1",
		Kind:       models.JobKindSummary,
		EntityKey:  "2401.00001",
		Status:     models.QueueStatusFinished,
		EnqueuedAt: time.Now().UTC(),
	}
	require.NoError(t, storage.Jobs().SaveRecord(context.Background(), record))

	rec := httptest.NewRecorder()
	handler.JobRoutesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/queue/jobs/job-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "position")
}

func TestGetJobNotFound(t *testing.T) {
	handler, _ := newQueueHandlerTest(t, &fakeQueue{})

	rec := httptest.NewRecorder()
	handler.JobRoutesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/queue/jobs/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJobConflict(t *testing.T) {
	handler, _ := newQueueHandlerTest(t, &fakeQueue{cancelOK: false})

	rec := httptest.NewRecorder()
	handler.JobRoutesHandler(rec, httptest.NewRequest(http.MethodPost, "/api/queue/jobs/job-1/cancel", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelJobQueued(t *testing.T) {
	handler, _ := newQueueHandlerTest(t, &fakeQueue{cancelOK: true})

	rec := httptest.NewRecorder()
	handler.JobRoutesHandler(rec, httptest.NewRequest(http.MethodPost, "/api/queue/jobs/job-1/cancel", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["canceled"])
}

func TestRetryJobConflict(t *testing.T) {
	handler, _ := newQueueHandlerTest(t, &fakeQueue{retryID: ""})

	rec := httptest.NewRecorder()
	handler.JobRoutesHandler(rec, httptest.NewRequest(http.MethodPost, "/api/queue/jobs/job-1/retry", nil))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRetryFailedJob(t *testing.T) {
	handler, _ := newQueueHandlerTest(t, &fakeQueue{retryID: "job-2"})

	rec := httptest.NewRecorder()
	handler.JobRoutesHandler(rec, httptest.NewRequest(http.MethodPost, "/api/queue/jobs/job-1/retry", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["retried"])
	assert.Equal(t, "job-2", body["new_job_id"])
}
