package jobs

import (
	"context"
	"fmt"

	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/queue"
)

// SummaryHandler returns the worker handler for summary jobs.
func (r *Runner) SummaryHandler() queue.JobHandler {
	return func(ctx context.Context, msg *models.QueueMessage) error {
		return r.runEnrichment(ctx, models.JobKindSummary, msg, r.summarize)
	}
}

// summarize produces the AI summary for one paper. The full text comes
// from the downloaded PDF; a paper without a PDF URL is summarized from
// its abstract.
func (r *Runner) summarize(ctx context.Context, paper *models.Paper, force bool) (string, error) {
	if paper.FullText == "" && paper.PDFURL != "" {
		text, err := r.fetchFullText(ctx, paper)
		if err != nil {
			return "", err
		}
		paper.FullText = text
		if err := r.persistField(ctx, paper.ID, "full_text", func(p *models.Paper) {
			p.FullText = text
		}); err != nil {
			return "", err
		}
	}

	content := paper.BestContent()
	if content == "" {
		return "", fmt.Errorf("paper %s has no content to summarize", paper.ID)
	}

	summary, err := r.deps.Summaries.Summarize(ctx, content)
	if err != nil {
		return "", fmt.Errorf("summarization failed for paper %s: %w", paper.ID, err)
	}

	if err := r.persistField(ctx, paper.ID, "ai_summary", func(p *models.Paper) {
		p.AISummary = summary
	}); err != nil {
		return "", err
	}

	return fmt.Sprintf("summary generated (%d chars)", len(summary)), nil
}

// fetchFullText downloads and extracts the paper PDF. Any download or
// extraction failure fails the job: transient failures are retryable,
// permanent ones (the URL serves something that is not a PDF) need
// operator attention, and neither produces a summary.
func (r *Runner) fetchFullText(ctx context.Context, paper *models.Paper) (string, error) {
	result := r.deps.Downloader.Download(ctx, paper.PDFURL, paper.ID)
	if result.Failure != nil {
		return "", fmt.Errorf("pdf download failed for paper %s (%s): %s",
			paper.ID, result.Failure.Kind, result.Failure.Message)
	}

	text, err := r.deps.Extractor.ExtractFile(ctx, result.Path)
	if err != nil {
		return "", fmt.Errorf("pdf text extraction failed for paper %s: %w", paper.ID, err)
	}
	return text, nil
}
