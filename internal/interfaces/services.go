package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// QueueManager - durable FIFO work queue with job record registries
type QueueManager interface {
	Enqueue(ctx context.Context, kind models.JobKind, entityKey string, args []string) (string, error)
	Receive(ctx context.Context) (*models.QueueMessage, error)
	Complete(ctx context.Context, jobID string, result string) error
	Fail(ctx context.Context, jobID string, errText string) error
	Cancel(ctx context.Context, jobID string) (bool, error)
	Retry(ctx context.Context, jobID string) (string, error)
	Position(ctx context.Context, jobID string) (int, bool, error)
	Depth(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*models.QueueStats, error)
}

// SchedulerService - cron lanes for recurring and one-shot jobs
type SchedulerService interface {
	Start() error
	Stop()
	Reload() error
	SubmitOneShot(kind models.JobKind, entityKey string, delay time.Duration) (string, error)
	CancelJob(jobID string) bool
	GetStatus(jobID string) (string, bool)
	TriggerNow(name string) error
	ListJobs() []models.ScheduledJobInfo
}

// CompletionService - single-prompt LLM completion
type CompletionService interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// SummaryService - chunked document summarization
type SummaryService interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// TranslationService - title/abstract translation into the configured
// language
type TranslationService interface {
	TranslateTitle(ctx context.Context, title string) (string, error)
	TranslateAbstract(ctx context.Context, abstract string) (string, error)
}

// ImageGenerator - prompt to image bytes
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) ([]byte, string, error)
}

// PDFDownloader - bounded-retry artifact fetch
type PDFDownloader interface {
	Download(ctx context.Context, url, key string) *models.DownloadResult
	PathFor(key string) string
}

// TextExtractor - PDF bytes to sanitized text
type TextExtractor interface {
	ExtractFile(ctx context.Context, path string) (string, error)
}

// ArxivClient - keyword search against the arXiv API
type ArxivClient interface {
	SearchPapers(ctx context.Context, keyword string, maxResults int) ([]*models.Paper, error)
}

// EventService - in-process pub/sub for job lifecycle events
type EventService interface {
	Publish(event *models.Event)
	Subscribe() (<-chan *models.Event, func())
}
