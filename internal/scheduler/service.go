// -----------------------------------------------------------------------
// Last Modified: Wednesday, 18th February 2026 1:37:44 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

// JobFunc is the body of a scheduled job.
type JobFunc func(ctx context.Context) error

// recurringEntry tracks one cron-driven job.
type recurringEntry struct {
	name     string
	schedule string
	fn       JobFunc
	entryID  cron.EntryID
	enabled  bool
	running  bool
	lastRun  *time.Time
}

// oneShotEntry tracks one delayed enrichment job. Presence in the map is
// the duplicate-suppression mechanism: while an entry with the same
// deterministic id is scheduled or running, re-submission is a no-op.
type oneShotEntry struct {
	jobID     string
	kind      models.JobKind
	entityKey string
	runAt     time.Time
	fn        JobFunc
	timer     *time.Timer
	running   bool
}

// OneShotJobID derives the deterministic id for a (kind, entity) pair.
func OneShotJobID(kind models.JobKind, entityKey string) string {
	return fmt.Sprintf("%s_%s", kind, entityKey)
}

// Service owns both cron lanes: recurring jobs fire on cron expressions
// with per-job single-flight, and one-shot enrichment jobs run strictly
// one at a time in submission order on a dedicated goroutine.
type Service struct {
	config  *common.SchedulerConfig
	logger  arbor.ILogger
	cron    *cron.Cron
	oneShot OneShotRunner

	mu        sync.Mutex
	started   bool
	recurring map[string]*recurringEntry
	oneShots  map[string]*oneShotEntry

	laneCh chan *oneShotEntry
	stopCh chan struct{}
	laneWg sync.WaitGroup
}

// OneShotRunner builds the job body for a one-shot submission. Wired by
// the app so the scheduler stays ignorant of task internals.
type OneShotRunner func(kind models.JobKind, entityKey string) JobFunc

// NewService creates the scheduler service.
func NewService(config *common.SchedulerConfig, oneShot OneShotRunner, logger arbor.ILogger) (*Service, error) {
	location := time.UTC
	if config.Timezone != "" {
		loc, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", config.Timezone, err)
		}
		location = loc
	}

	return &Service{
		config:    config,
		logger:    logger,
		cron:      cron.New(cron.WithLocation(location)),
		oneShot:   oneShot,
		recurring: make(map[string]*recurringEntry),
		oneShots:  make(map[string]*oneShotEntry),
		laneCh:    make(chan *oneShotEntry, 256),
		stopCh:    make(chan struct{}),
	}, nil
}

// RegisterJob adds a recurring job definition. When the service is
// already started the job is scheduled immediately.
func (s *Service) RegisterJob(name, schedule string, fn JobFunc) error {
	if err := common.ValidateCronSchedule(schedule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.recurring[name]; ok {
		s.cron.Remove(existing.entryID)
	}

	entry := &recurringEntry{
		name:     name,
		schedule: schedule,
		fn:       fn,
		enabled:  true,
	}
	s.recurring[name] = entry

	if s.started {
		if err := s.scheduleLocked(entry); err != nil {
			return err
		}
	}

	s.logger.Info().
		Str("job", name).
		Str("schedule", schedule).
		Msg("Recurring job registered")
	return nil
}

// scheduleLocked adds a recurring entry to cron. Caller holds s.mu.
func (s *Service) scheduleLocked(entry *recurringEntry) error {
	name := entry.name
	id, err := s.cron.AddFunc(entry.schedule, func() {
		s.runRecurringTick(name, s.scheduledAt(name))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	entry.entryID = id
	return nil
}

// scheduledAt reports the activation time cron recorded for the current
// tick of a recurring job.
func (s *Service) scheduledAt(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.recurring[name]; ok && entry.entryID != 0 {
		return s.cron.Entry(entry.entryID).Prev
	}
	return time.Time{}
}

// runRecurringTick applies the recurring misfire grace: a tick delivered
// later than the grace window past its scheduled time (process suspend,
// clock jump) is dropped, not run late. Manual triggers bypass this and
// call executeRecurring directly.
func (s *Service) runRecurringTick(name string, scheduled time.Time) {
	if !scheduled.IsZero() {
		grace := common.Duration(s.config.MisfireGrace, 5*time.Minute)
		if stale := time.Since(scheduled); stale > grace {
			s.logger.Warn().
				Str("job", name).
				Dur("staleness", stale).
				Msg("Recurring tick missed its grace window, dropping")
			return
		}
	}
	s.executeRecurring(name)
}

// Start begins both lanes. Idempotent; a no-op when scheduling is
// disabled by configuration.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.logger.Debug().Msg("Scheduler already started")
		return nil
	}
	if !s.config.Enabled {
		s.logger.Info().Msg("Scheduler disabled by configuration")
		return nil
	}

	for _, entry := range s.recurring {
		if !entry.enabled {
			continue
		}
		if err := s.scheduleLocked(entry); err != nil {
			return err
		}
	}

	s.laneWg.Add(1)
	go s.enrichmentLane()

	s.cron.Start()
	s.started = true

	s.logger.Info().
		Int("recurring_jobs", len(s.recurring)).
		Str("timezone", s.config.Timezone).
		Msg("Scheduler started")
	return nil
}

// Stop halts the cron lane and drains the enrichment lane.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false

	for _, entry := range s.oneShots {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()

	close(s.stopCh)
	s.laneWg.Wait()

	s.logger.Info().Msg("Scheduler stopped")
}

// Reload clears and re-registers all recurring jobs from the current
// definitions. Safe to call at any time, e.g. after a config change has
// updated schedules via UpdateJobSchedule.
func (s *Service) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.recurring {
		s.cron.Remove(entry.entryID)
		entry.entryID = 0
	}

	if !s.started {
		return nil
	}

	for _, entry := range s.recurring {
		if !entry.enabled {
			continue
		}
		if err := s.scheduleLocked(entry); err != nil {
			return err
		}
	}

	s.logger.Info().Int("recurring_jobs", len(s.recurring)).Msg("Scheduler reloaded")
	return nil
}

// UpdateJobSchedule changes the cron expression of a recurring job.
func (s *Service) UpdateJobSchedule(name, schedule string) error {
	if err := common.ValidateCronSchedule(schedule); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.recurring[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}

	s.cron.Remove(entry.entryID)
	entry.schedule = schedule
	if s.started && entry.enabled {
		return s.scheduleLocked(entry)
	}
	return nil
}

// EnableJob re-enables a disabled recurring job.
func (s *Service) EnableJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.recurring[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if entry.enabled {
		return nil
	}
	entry.enabled = true
	if s.started {
		return s.scheduleLocked(entry)
	}
	return nil
}

// DisableJob removes the next occurrences of a recurring job. A run in
// flight is not interrupted.
func (s *Service) DisableJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.recurring[name]
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if !entry.enabled {
		return nil
	}
	entry.enabled = false
	s.cron.Remove(entry.entryID)
	entry.entryID = 0
	return nil
}

// executeRecurring runs one recurring job tick with single-flight and
// panic recovery. An overlapping tick is skipped, never queued.
func (s *Service) executeRecurring(name string) {
	s.mu.Lock()
	entry, ok := s.recurring[name]
	if !ok || !entry.enabled {
		s.mu.Unlock()
		return
	}
	if entry.running {
		s.mu.Unlock()
		s.logger.Warn().
			Str("job", name).
			Msg("Previous run still executing, skipping tick")
		return
	}
	entry.running = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info().Str("job", name).Msg("Recurring job starting")

	err := s.runProtected(entry.fn)

	s.mu.Lock()
	entry.running = false
	entry.lastRun = &start
	s.mu.Unlock()

	if err != nil {
		// An error propagating out of a job body is logged and recorded;
		// it never crashes the scheduler.
		s.logger.Error().
			Err(err).
			Str("job", name).
			Dur("duration", time.Since(start)).
			Msg("Recurring job failed")
		return
	}
	s.logger.Info().
		Str("job", name).
		Dur("duration", time.Since(start)).
		Msg("Recurring job completed")
}

// TriggerNow fires a recurring job immediately, outside its schedule.
func (s *Service) TriggerNow(name string) error {
	s.mu.Lock()
	_, ok := s.recurring[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	go s.executeRecurring(name)
	return nil
}

// SubmitOneShot schedules a delayed enrichment job with a deterministic
// id. Submitting the same (kind, entity) while a previous submission is
// still scheduled or running returns the existing id without creating a
// second entry.
func (s *Service) SubmitOneShot(kind models.JobKind, entityKey string, delay time.Duration) (string, error) {
	if s.oneShot == nil {
		return "", fmt.Errorf("one-shot runner not configured")
	}
	jobID := OneShotJobID(kind, entityKey)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return "", fmt.Errorf("scheduler not started")
	}
	if _, exists := s.oneShots[jobID]; exists {
		s.logger.Debug().
			Str("job_id", jobID).
			Msg("One-shot already scheduled, suppressing duplicate")
		return jobID, nil
	}

	entry := &oneShotEntry{
		jobID:     jobID,
		kind:      kind,
		entityKey: entityKey,
		runAt:     time.Now().Add(delay),
		fn:        s.oneShot(kind, entityKey),
	}
	s.oneShots[jobID] = entry

	entry.timer = time.AfterFunc(delay, func() {
		select {
		case s.laneCh <- entry:
		case <-s.stopCh:
		}
	})

	s.logger.Info().
		Str("job_id", jobID).
		Dur("delay", delay).
		Msg("One-shot job scheduled")
	return jobID, nil
}

// CancelJob removes a one-shot entry that has not started, or disables a
// recurring job's next occurrences. A running job is never interrupted.
func (s *Service) CancelJob(jobID string) bool {
	s.mu.Lock()
	if entry, ok := s.oneShots[jobID]; ok {
		if entry.running {
			s.mu.Unlock()
			return false
		}
		if entry.timer != nil {
			entry.timer.Stop()
		}
		delete(s.oneShots, jobID)
		s.mu.Unlock()
		s.logger.Info().Str("job_id", jobID).Msg("One-shot job canceled")
		return true
	}
	s.mu.Unlock()

	if err := s.DisableJob(jobID); err == nil {
		return true
	}
	return false
}

// GetStatus reports "scheduled" while an id is known to either lane. The
// scheduler cannot distinguish waiting from executing; callers needing
// that granularity consult the entity job state.
func (s *Service) GetStatus(jobID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.oneShots[jobID]; ok {
		return "scheduled", true
	}
	if entry, ok := s.recurring[jobID]; ok && entry.enabled {
		return "scheduled", true
	}
	return "", false
}

// ListJobs returns the monitor view of both lanes.
func (s *Service) ListJobs() []models.ScheduledJobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]models.ScheduledJobInfo, 0, len(s.recurring)+len(s.oneShots))
	for _, entry := range s.recurring {
		info := models.ScheduledJobInfo{
			JobID:     entry.name,
			Kind:      models.JobKindCrawl,
			Recurring: true,
			Schedule:  entry.schedule,
			Running:   entry.running,
			Enabled:   entry.enabled,
			LastRun:   entry.lastRun,
		}
		if entry.enabled && entry.entryID != 0 {
			next := s.cron.Entry(entry.entryID).Next
			if !next.IsZero() {
				info.NextRun = &next
			}
		}
		infos = append(infos, info)
	}
	for _, entry := range s.oneShots {
		runAt := entry.runAt
		infos = append(infos, models.ScheduledJobInfo{
			JobID:     entry.jobID,
			Kind:      entry.kind,
			EntityKey: entry.entityKey,
			Recurring: false,
			RunAt:     &runAt,
			Running:   entry.running,
			Enabled:   true,
		})
	}
	return infos
}

// enrichmentLane executes one-shot jobs strictly one at a time in
// arrival order.
func (s *Service) enrichmentLane() {
	defer s.laneWg.Done()

	grace := common.Duration(s.config.OneShotMisfireGrace, time.Hour)

	for {
		select {
		case <-s.stopCh:
			return
		case entry := <-s.laneCh:
			s.runOneShot(entry, grace)
		}
	}
}

func (s *Service) runOneShot(entry *oneShotEntry, grace time.Duration) {
	s.mu.Lock()
	if _, ok := s.oneShots[entry.jobID]; !ok {
		// Canceled between firing and execution.
		s.mu.Unlock()
		return
	}

	// A job whose due time is staler than the grace window is dropped,
	// not run late.
	if stale := time.Since(entry.runAt); stale > grace {
		delete(s.oneShots, entry.jobID)
		s.mu.Unlock()
		s.logger.Warn().
			Str("job_id", entry.jobID).
			Dur("staleness", stale).
			Msg("One-shot job missed its grace window, dropping")
		return
	}
	entry.running = true
	s.mu.Unlock()

	start := time.Now()
	s.logger.Info().Str("job_id", entry.jobID).Msg("One-shot job starting")

	err := s.runProtected(entry.fn)

	s.mu.Lock()
	delete(s.oneShots, entry.jobID)
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().
			Err(err).
			Str("job_id", entry.jobID).
			Dur("duration", time.Since(start)).
			Msg("One-shot job failed")
		return
	}
	s.logger.Info().
		Str("job_id", entry.jobID).
		Dur("duration", time.Since(start)).
		Msg("One-shot job completed")
}

// runProtected executes a job body with panic recovery.
func (s *Service) runProtected(fn JobFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(context.Background())
}
