// -----------------------------------------------------------------------
// Last Modified: Friday, 13th February 2026 11:26:48 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	storagebadger "github.com/ternarybob/colligo/internal/storage/badger"
)

// SummaryExporter renders a markdown summary into PDF bytes.
type SummaryExporter interface {
	Render(markdown, title string) ([]byte, error)
}

// PaperHandler serves paper queries and the enrichment triggers.
type PaperHandler struct {
	papers   interfaces.PaperStorage
	queue    interfaces.QueueManager
	exporter SummaryExporter
	logger   arbor.ILogger
}

// NewPaperHandler creates a new paper handler
func NewPaperHandler(papers interfaces.PaperStorage, queue interfaces.QueueManager, exporter SummaryExporter, logger arbor.ILogger) *PaperHandler {
	return &PaperHandler{
		papers:   papers,
		queue:    queue,
		exporter: exporter,
		logger:   logger,
	}
}

// ListHandler handles GET /api/papers with limit/offset paging and an
// optional keyword filter.
func (h *PaperHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	var (
		papers []*models.Paper
		err    error
	)
	if keyword := r.URL.Query().Get("keyword"); keyword != "" {
		papers, err = h.papers.ListPapersByKeyword(r.Context(), keyword)
	} else {
		limit, offset := GetListParams(r)
		papers, err = h.papers.ListPapers(r.Context(), limit, offset)
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list papers")
		WriteError(w, http.StatusInternalServerError, "failed to list papers")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(papers),
		"papers": papers,
	})
}

// PaperRoutesHandler dispatches /api/papers/{id} and its sub-routes.
func (h *PaperHandler) PaperRoutesHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/papers/")
	if rest == "" {
		WriteError(w, http.StatusNotFound, "paper id required")
		return
	}

	switch {
	case strings.HasSuffix(rest, "/summary.pdf"):
		h.exportSummary(w, r, strings.TrimSuffix(rest, "/summary.pdf"))
	case strings.HasSuffix(rest, "/summary"):
		h.submitJob(w, r, strings.TrimSuffix(rest, "/summary"), models.JobKindSummary)
	case strings.HasSuffix(rest, "/comic"):
		h.submitJob(w, r, strings.TrimSuffix(rest, "/comic"), models.JobKindComic)
	default:
		h.getPaper(w, r, rest)
	}
}

func (h *PaperHandler) getPaper(w http.ResponseWriter, r *http.Request, paperID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	paper, err := h.papers.GetPaper(r.Context(), paperID)
	if err != nil {
		if err == storagebadger.ErrPaperNotFound {
			WriteError(w, http.StatusNotFound, "paper not found")
			return
		}
		h.logger.Error().Err(err).Str("paper_id", paperID).Msg("Failed to get paper")
		WriteError(w, http.StatusInternalServerError, "failed to get paper")
		return
	}
	WriteJSON(w, http.StatusOK, paper)
}

// submitJob handles POST /api/papers/{id}/summary and /comic. With
// ?force=1 a sticky completed state is regenerated.
func (h *PaperHandler) submitJob(w http.ResponseWriter, r *http.Request, paperID string, kind models.JobKind) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if _, err := h.papers.GetPaper(r.Context(), paperID); err != nil {
		if err == storagebadger.ErrPaperNotFound {
			WriteError(w, http.StatusNotFound, "paper not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to get paper")
		return
	}

	var args []string
	if forceRequested(r) {
		args = append(args, "force")
	}

	jobID, err := h.queue.Enqueue(r.Context(), kind, paperID, args)
	if err != nil {
		h.logger.Error().Err(err).Str("paper_id", paperID).Str("kind", string(kind)).Msg("Enqueue failed")
		WriteError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}

	WriteStarted(w, jobID, fmt.Sprintf("%s job submitted for %s", kind, paperID))
}

// exportSummary handles GET /api/papers/{id}/summary.pdf.
func (h *PaperHandler) exportSummary(w http.ResponseWriter, r *http.Request, paperID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	paper, err := h.papers.GetPaper(r.Context(), paperID)
	if err != nil {
		if err == storagebadger.ErrPaperNotFound {
			WriteError(w, http.StatusNotFound, "paper not found")
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to get paper")
		return
	}
	if paper.AISummary == "" {
		WriteError(w, http.StatusNotFound, "paper has no summary yet")
		return
	}

	title := paper.AITitle
	if title == "" {
		title = paper.Title
	}

	data, err := h.exporter.Render(paper.AISummary, title)
	if err != nil {
		h.logger.Error().Err(err).Str("paper_id", paperID).Msg("Summary export failed")
		WriteError(w, http.StatusInternalServerError, "failed to render summary")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", paperID+"-summary.pdf"))
	w.Write(data)
}
