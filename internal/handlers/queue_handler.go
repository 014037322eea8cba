package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	storagebadger "github.com/ternarybob/colligo/internal/storage/badger"
)

// QueueHandler serves the queue registries: stats, record listings and
// the cancel/retry actions.
type QueueHandler struct {
	manager interfaces.QueueManager
	records interfaces.JobStorage
	logger  arbor.ILogger
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(manager interfaces.QueueManager, records interfaces.JobStorage, logger arbor.ILogger) *QueueHandler {
	return &QueueHandler{manager: manager, records: records, logger: logger}
}

// GetStatsHandler handles GET /api/queue/stats
func (h *QueueHandler) GetStatsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read queue stats")
		WriteError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// ListJobsHandler handles GET /api/queue/jobs. With ?status= it lists
// records in that status; without, it returns the recent finished
// window (last 24h, newest first).
func (h *QueueHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	var (
		records []*models.JobRecord
		err     error
	)
	switch status := r.URL.Query().Get("status"); status {
	case "":
		records, err = h.records.ListFinishedSince(r.Context(), time.Now().Add(-24*time.Hour))
	case string(models.QueueStatusQueued), string(models.QueueStatusStarted),
		string(models.QueueStatusFinished), string(models.QueueStatusFailed),
		string(models.QueueStatusCanceled):
		records, err = h.records.ListByStatus(r.Context(), models.QueueStatus(status))
	default:
		WriteError(w, http.StatusBadRequest, "unknown status "+status)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list job records")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(records),
		"jobs":  records,
	})
}

// JobRoutesHandler dispatches /api/queue/jobs/{id} and its actions.
func (h *QueueHandler) JobRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/queue/jobs/")
	if rest == "" {
		WriteError(w, http.StatusNotFound, "job id required")
		return
	}

	switch {
	case strings.HasSuffix(rest, "/cancel"):
		h.cancelJob(w, r, strings.TrimSuffix(rest, "/cancel"))
	case strings.HasSuffix(rest, "/retry"):
		h.retryJob(w, r, strings.TrimSuffix(rest, "/retry"))
	default:
		h.getJob(w, r, rest)
	}
}

// jobView is the monitor response for one job record. Position is the
// 1-based FIFO index, present only while the job waits in the queue.
type jobView struct {
	*models.JobRecord
	Position int `json:"position,omitempty"`
}

func (h *QueueHandler) getJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	record, err := h.records.GetRecord(r.Context(), jobID)
	if err != nil {
		if err == storagebadger.ErrRecordNotFound {
			WriteError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job record")
		WriteError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	view := jobView{JobRecord: record}
	if record.Status == models.QueueStatusQueued {
		if position, queued, err := h.manager.Position(r.Context(), jobID); err != nil {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("Failed to read queue position")
		} else if queued {
			view.Position = position
		}
	}
	WriteJSON(w, http.StatusOK, view)
}

// cancelJob handles POST /api/queue/jobs/{id}/cancel. Only a job still
// waiting in the queue can be canceled.
func (h *QueueHandler) cancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	canceled, err := h.manager.Cancel(r.Context(), jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Cancel failed")
		WriteError(w, http.StatusInternalServerError, "cancel failed")
		return
	}
	if !canceled {
		WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"canceled": false,
			"message":  "job is not in queued state",
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"canceled": true})
}

// retryJob handles POST /api/queue/jobs/{id}/retry. Only a failed job
// produces a new submission; anything else is a no-op.
func (h *QueueHandler) retryJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	newID, err := h.manager.Retry(r.Context(), jobID)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Retry failed")
		WriteError(w, http.StatusInternalServerError, "retry failed")
		return
	}
	if newID == "" {
		WriteJSON(w, http.StatusConflict, map[string]interface{}{
			"retried": false,
			"message": "job is not in failed state",
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"retried":    true,
		"new_job_id": newID,
	})
}
