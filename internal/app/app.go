// -----------------------------------------------------------------------
// Last Modified: Friday, 13th February 2026 4:31:02 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/jobs"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/queue"
	"github.com/ternarybob/colligo/internal/scheduler"
	"github.com/ternarybob/colligo/internal/services/arxiv"
	"github.com/ternarybob/colligo/internal/services/comic"
	"github.com/ternarybob/colligo/internal/services/events"
	"github.com/ternarybob/colligo/internal/services/llm"
	"github.com/ternarybob/colligo/internal/services/pdf"
	storagebadger "github.com/ternarybob/colligo/internal/storage/badger"
)

// App owns every service and wires them together. Construction order
// matters: storage first, then the services built on it, the queue and
// scheduler last. Close tears down in reverse.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	Storage   *storagebadger.Manager
	Events    interfaces.EventService
	Providers *llm.ProviderFactory
	Queue     *queue.Manager
	Workers   *queue.WorkerPool
	Scheduler *scheduler.Service
	Runner    *jobs.Runner

	StatusHandler    *handlers.StatusHandler
	QueueHandler     *handlers.QueueHandler
	PaperHandler     *handlers.PaperHandler
	SchedulerHandler *handlers.SchedulerHandler
	WSHandler        *handlers.WebSocketHandler
}

// New constructs the application graph from configuration.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := storagebadger.NewManager(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	eventService := events.NewService(logger)
	providers := llm.NewProviderFactory(&config.LLM, &config.Gemini, &config.Claude, logger)
	summaries := llm.NewService(providers, &config.LLM, logger)
	arxivClient := arxiv.NewClient(&config.Arxiv, logger)
	extractor := pdf.NewExtractor(logger)
	reports := pdf.NewReportWriter(logger)

	downloader, err := pdf.NewDownloader(&config.PDF, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize downloader: %w", err)
	}

	imageGenerator := comic.NewGeminiImageGenerator(providers, &config.Comic, logger)
	comics, err := comic.NewService(imageGenerator, &config.Comic, logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize comic service: %w", err)
	}

	queueManager, err := queue.NewManager(storage.DB().Store().Badger(), storage.Jobs(), eventService, logger, &config.Queue)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	runner := jobs.NewRunner(jobs.Deps{
		Papers:     storage.Papers(),
		Records:    storage.Jobs(),
		Summaries:  summaries,
		Translator: summaries,
		Downloader: downloader,
		Extractor:  extractor,
		Comics:     comics,
		Arxiv:      arxivClient,
		Events:     eventService,
		Config:     config,
		Logger:     logger,
	})

	workers := queue.NewWorkerPool(queueManager, logger, &config.Queue)
	workers.RegisterHandler(models.JobKindSummary, runner.SummaryHandler())
	workers.RegisterHandler(models.JobKindComic, runner.ComicHandler())
	workers.RegisterHandler(models.JobKindCrawl, runner.CrawlHandler())

	sched, err := scheduler.NewService(&config.Scheduler, oneShotRunner(runner), logger)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	runner.SetScheduler(sched)

	if err := sched.RegisterJob("crawl", config.Scheduler.CrawlSchedule, runner.Crawl); err != nil {
		storage.Close()
		return nil, err
	}
	staleAfter := common.Duration(config.Scheduler.StaleRunningAfter, 30*time.Minute)
	if err := sched.RegisterJob("housekeeping", config.Scheduler.HousekeepingSchedule, runner.Housekeeping(staleAfter)); err != nil {
		storage.Close()
		return nil, err
	}

	a := &App{
		Config:    config,
		Logger:    logger,
		Storage:   storage,
		Events:    eventService,
		Providers: providers,
		Queue:     queueManager,
		Workers:   workers,
		Scheduler: sched,
		Runner:    runner,
	}

	a.StatusHandler = handlers.NewStatusHandler(storage.Papers(), queueManager, sched, logger)
	a.QueueHandler = handlers.NewQueueHandler(queueManager, storage.Jobs(), logger)
	a.PaperHandler = handlers.NewPaperHandler(storage.Papers(), queueManager, reports, logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(sched, logger)
	a.WSHandler = handlers.NewWebSocketHandler(eventService, logger)

	return a, nil
}

// oneShotRunner maps one-shot scheduler entries onto the runner's task
// functions. The enrichment lane executes these directly, one at a
// time, without a queue record.
func oneShotRunner(runner *jobs.Runner) scheduler.OneShotRunner {
	return func(kind models.JobKind, entityKey string) scheduler.JobFunc {
		return func(ctx context.Context) error {
			msg := &models.QueueMessage{
				ID:        scheduler.OneShotJobID(kind, entityKey),
				Kind:      kind,
				EntityKey: entityKey,
			}
			switch kind {
			case models.JobKindSummary:
				return runner.SummaryHandler()(ctx, msg)
			case models.JobKindComic:
				return runner.ComicHandler()(ctx, msg)
			case models.JobKindCrawl:
				return runner.Crawl(ctx)
			}
			return fmt.Errorf("no task function for kind %s", kind)
		}
	}
}

// Start brings up the background machinery: queue workers, then the
// scheduler lanes.
func (a *App) Start() error {
	if err := a.Workers.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	a.Logger.Info().
		Int("workers", a.Config.Queue.Concurrency).
		Bool("scheduler", a.Config.Scheduler.Enabled).
		Msg("Application started")
	return nil
}

// Close tears everything down in reverse construction order.
func (a *App) Close() error {
	a.Scheduler.Stop()
	a.Workers.Stop()
	a.Providers.Close()

	if err := a.Storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.Logger.Info().Msg("Application stopped")
	return nil
}
