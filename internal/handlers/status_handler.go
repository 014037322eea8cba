// -----------------------------------------------------------------------
// Last Modified: Friday, 13th February 2026 10:02:17 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// StatusHandler serves the service health summary.
type StatusHandler struct {
	papers    interfaces.PaperStorage
	queue     interfaces.QueueManager
	scheduler interfaces.SchedulerService
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(papers interfaces.PaperStorage, queue interfaces.QueueManager, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		papers:    papers,
		queue:     queue,
		scheduler: scheduler,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	paperCount, err := h.papers.CountPapers(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to count papers")
		WriteError(w, http.StatusInternalServerError, "failed to read storage")
		return
	}

	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read queue stats")
		WriteError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}

	scheduledJobs := 0
	if h.scheduler != nil {
		scheduledJobs = len(h.scheduler.ListJobs())
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"version":        common.GetVersion(),
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
		"papers":         paperCount,
		"queue":          stats,
		"scheduled_jobs": scheduledJobs,
	})
}
