package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/queue"
)

// CrawlHandler returns the worker handler for crawl jobs submitted
// through the queue (manual trigger path).
func (r *Runner) CrawlHandler() queue.JobHandler {
	return func(ctx context.Context, msg *models.QueueMessage) error {
		return r.Crawl(ctx)
	}
}

// Crawl searches arXiv for every configured keyword and registers new
// papers. Fresh papers get their title and abstract translated right
// away; summaries and comics run as separate jobs. One failing keyword
// does not stop the others.
func (r *Runner) Crawl(ctx context.Context) error {
	started := time.Now()
	var found, inserted, failedKeywords int

	for _, keyword := range r.deps.Config.Arxiv.Keywords {
		papers, err := r.deps.Arxiv.SearchPapers(ctx, keyword, r.deps.Config.Arxiv.MaxResults)
		if err != nil {
			failedKeywords++
			r.logger.Error().Err(err).Str("keyword", keyword).Msg("arXiv search failed")
			continue
		}
		found += len(papers)

		for _, paper := range papers {
			isNew, err := r.deps.Papers.InsertPaperIfAbsent(ctx, paper)
			if err != nil {
				r.logger.Error().Err(err).Str("paper_id", paper.ID).Msg("Failed to register paper")
				continue
			}
			if !isNew {
				r.mergeKeyword(ctx, paper.ID, keyword)
				continue
			}
			inserted++
			r.translateMetadata(ctx, paper)
			r.submitSummary(paper.ID)
		}
	}

	r.deps.Events.Publish(&models.Event{
		Type:      models.EventCrawlSummary,
		Kind:      models.JobKindCrawl,
		Timestamp: time.Now(),
		Data: map[string]any{
			"found":           found,
			"inserted":        inserted,
			"failed_keywords": failedKeywords,
			"duration_ms":     time.Since(started).Milliseconds(),
		},
	})

	r.logger.Info().
		Int("found", found).
		Int("inserted", inserted).
		Int("failed_keywords", failedKeywords).
		Msg("Crawl complete")

	if failedKeywords > 0 && found == 0 {
		return fmt.Errorf("crawl failed for all %d keywords", failedKeywords)
	}
	return nil
}

// mergeKeyword adds a search keyword to a paper discovered through a
// different query.
func (r *Runner) mergeKeyword(ctx context.Context, paperID, keyword string) {
	err := r.deps.Papers.UpdatePaperField(ctx, paperID, func(p *models.Paper) {
		for _, existing := range p.Keywords {
			if existing == keyword {
				return
			}
		}
		p.Keywords = append(p.Keywords, keyword)
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("paper_id", paperID).Msg("Failed to merge keyword")
	}
}

// submitSummary queues a one-shot summary for a freshly discovered
// paper on the scheduler's enrichment lane, where the deterministic
// job id suppresses duplicates across overlapping crawls.
func (r *Runner) submitSummary(paperID string) {
	if r.deps.Scheduler == nil {
		return
	}
	if _, err := r.deps.Scheduler.SubmitOneShot(models.JobKindSummary, paperID, 0); err != nil {
		r.logger.Warn().Err(err).Str("paper_id", paperID).Msg("Failed to submit summary job")
	}
}

// translateMetadata chains the title and abstract translations for a
// newly discovered paper. Translation failures are logged, not fatal:
// the original text stays usable.
func (r *Runner) translateMetadata(ctx context.Context, paper *models.Paper) {
	if title, err := r.deps.Translator.TranslateTitle(ctx, paper.Title); err == nil {
		if err := r.persistField(ctx, paper.ID, "ai_title", func(p *models.Paper) {
			p.AITitle = title
		}); err != nil {
			r.logger.Warn().Err(err).Str("paper_id", paper.ID).Msg("Failed to store translated title")
		}
	} else {
		r.logger.Warn().Err(err).Str("paper_id", paper.ID).Msg("Title translation failed")
	}

	if abstract, err := r.deps.Translator.TranslateAbstract(ctx, paper.Abstract); err == nil {
		if err := r.persistField(ctx, paper.ID, "ai_abstract", func(p *models.Paper) {
			p.AIAbstract = abstract
		}); err != nil {
			r.logger.Warn().Err(err).Str("paper_id", paper.ID).Msg("Failed to store translated abstract")
		}
	} else {
		r.logger.Warn().Err(err).Str("paper_id", paper.ID).Msg("Abstract translation failed")
	}
}

// Housekeeping reconciles state left behind by crashed workers and
// prunes expired job records. Runs on the recurring schedule.
func (r *Runner) Housekeeping(staleAfter time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		entities, err := r.deps.Papers.ResetStaleRunning(ctx, staleAfter)
		if err != nil {
			return fmt.Errorf("failed to reset stale entity states: %w", err)
		}

		records, err := r.deps.Records.ResetStaleStarted(ctx, staleAfter)
		if err != nil {
			return fmt.Errorf("failed to reset stale job records: %w", err)
		}

		purged, err := r.deps.Records.PurgeExpired(ctx, time.Now())
		if err != nil {
			return fmt.Errorf("failed to purge expired job records: %w", err)
		}

		if entities > 0 || records > 0 || purged > 0 {
			r.logger.Info().
				Int("stale_entities", entities).
				Int("stale_records", records).
				Int("purged_records", purged).
				Msg("Housekeeping pass complete")
		}
		return nil
	}
}
