// -----------------------------------------------------------------------
// Last Modified: Thursday, 12th February 2026 2:18:09 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	storagebadger "github.com/ternarybob/colligo/internal/storage/badger"
)

// ComicService is the slice of the comic artifact service the runner
// depends on.
type ComicService interface {
	ArtifactFor(paperID string) (string, bool)
	Generate(ctx context.Context, prompt string) *models.GenerateResult
	Save(paperID string, data []byte, mimeType string) (string, error)
}

// Deps collects the services the task functions call into.
type Deps struct {
	Papers     interfaces.PaperStorage
	Records    interfaces.JobStorage
	Summaries  interfaces.SummaryService
	Translator interfaces.TranslationService
	Downloader interfaces.PDFDownloader
	Extractor  interfaces.TextExtractor
	Comics     ComicService
	Arxiv      interfaces.ArxivClient
	Events     interfaces.EventService
	Scheduler  interfaces.SchedulerService
	Config     *common.Config
	Logger     arbor.ILogger
}

// Runner hosts the task functions executed by the worker pool and the
// scheduler. Every enrichment task follows the same shape: load the
// paper, move its state to running, do the work, land on completed or
// failed.
type Runner struct {
	deps   Deps
	logger arbor.ILogger
}

// NewRunner creates the task runner
func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps, logger: deps.Logger}
}

// SetScheduler attaches the scheduler after construction. The runner
// and the scheduler reference each other: the scheduler executes the
// runner's task functions, the crawl task submits one-shots.
func (r *Runner) SetScheduler(scheduler interfaces.SchedulerService) {
	r.deps.Scheduler = scheduler
}

// enrichFunc does the kind-specific work for one paper and returns a
// short result description for the job record.
type enrichFunc func(ctx context.Context, paper *models.Paper, force bool) (string, error)

// runEnrichment is the shared status-transition template. A missing
// paper is a silent no-op: the entity was deleted between submission
// and execution. A completed state short-circuits unless the message
// carries the force argument. Any error after the running transition
// lands the state on failed before it propagates.
func (r *Runner) runEnrichment(ctx context.Context, kind models.JobKind, msg *models.QueueMessage, work enrichFunc) error {
	force := hasForce(msg.Args)

	paper, err := r.deps.Papers.GetPaper(ctx, msg.EntityKey)
	if err != nil {
		if errors.Is(err, storagebadger.ErrPaperNotFound) {
			r.logger.Warn().
				Str("paper_id", msg.EntityKey).
				Str("kind", string(kind)).
				Msg("Paper no longer exists, skipping job")
			return nil
		}
		return err
	}

	state, err := paper.JobState(kind)
	if err != nil {
		return err
	}

	switch {
	case state == models.StateRunning:
		r.logger.Warn().
			Str("paper_id", paper.ID).
			Str("kind", string(kind)).
			Msg("Job already running for paper, skipping duplicate")
		return nil
	case state == models.StateCompleted && !force:
		r.logger.Debug().
			Str("paper_id", paper.ID).
			Str("kind", string(kind)).
			Msg("Enrichment already complete")
		return nil
	case state == models.StateCompleted && force:
		if err := r.deps.Papers.ResetJobState(ctx, paper.ID, kind); err != nil {
			return err
		}
	case state == models.StateFailed:
		// Re-entry after a failure goes back through pending.
		if err := r.deps.Papers.ResetJobState(ctx, paper.ID, kind); err != nil {
			return err
		}
	}

	if err := r.deps.Papers.UpdateJobState(ctx, paper.ID, kind, models.StateRunning); err != nil {
		return err
	}

	result, err := work(ctx, paper, force)
	if err != nil {
		if stateErr := r.deps.Papers.UpdateJobState(ctx, paper.ID, kind, models.StateFailed); stateErr != nil {
			r.logger.Error().Err(stateErr).
				Str("paper_id", paper.ID).
				Str("kind", string(kind)).
				Msg("Failed to record failed state")
		}
		return err
	}

	if err := r.deps.Papers.UpdateJobState(ctx, paper.ID, kind, models.StateCompleted); err != nil {
		return err
	}

	r.logger.Info().
		Str("paper_id", paper.ID).
		Str("kind", string(kind)).
		Str("result", result).
		Msg("Enrichment complete")
	return nil
}

// persistField applies one artifact mutation and surfaces storage
// errors with context.
func (r *Runner) persistField(ctx context.Context, paperID, field string, mutate func(*models.Paper)) error {
	if err := r.deps.Papers.UpdatePaperField(ctx, paperID, mutate); err != nil {
		return fmt.Errorf("failed to persist %s for paper %s: %w", field, paperID, err)
	}
	return nil
}

func hasForce(args []string) bool {
	for _, arg := range args {
		if arg == "force" {
			return true
		}
	}
	return false
}
