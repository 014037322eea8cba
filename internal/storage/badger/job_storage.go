// -----------------------------------------------------------------------
// Last Modified: Thursday, 12th February 2026 10:24:51 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrRecordNotFound is returned when a job id has no registry record.
var ErrRecordNotFound = errors.New("job record not found")

// JobStorage persists queue-level job records. Records are retained past
// completion for observability and purged by TTL.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a job record storage backed by badgerhold.
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{db: db, logger: logger}
}

// SaveRecord upserts a job record.
func (s *JobStorage) SaveRecord(ctx context.Context, record *models.JobRecord) error {
	if record.JobID == "" {
		return errors.New("job record requires an id")
	}
	if record.EnqueuedAt.IsZero() {
		record.EnqueuedAt = time.Now()
	}
	if err := s.db.Store().Upsert(record.JobID, record); err != nil {
		return fmt.Errorf("failed to save job record %s: %w", record.JobID, err)
	}
	return nil
}

// GetRecord returns the record for a job id.
func (s *JobStorage) GetRecord(ctx context.Context, jobID string) (*models.JobRecord, error) {
	var record models.JobRecord
	if err := s.db.Store().Get(jobID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get job record %s: %w", jobID, err)
	}
	return &record, nil
}

// MarkStarted transitions a record to started and stamps StartedAt.
func (s *JobStorage) MarkStarted(ctx context.Context, jobID string) error {
	return s.update(jobID, func(record *models.JobRecord) error {
		now := time.Now()
		record.Status = models.QueueStatusStarted
		record.StartedAt = &now
		return nil
	})
}

// MarkFinished finalizes a record as finished with the retention window
// for successful runs.
func (s *JobStorage) MarkFinished(ctx context.Context, jobID string, result string) error {
	return s.update(jobID, func(record *models.JobRecord) error {
		now := time.Now()
		record.Status = models.QueueStatusFinished
		record.EndedAt = &now
		record.Result = result
		record.Error = ""
		record.ExpiresAt = now.Add(models.FinishedRecordTTL)
		return nil
	})
}

// MarkFailed finalizes a record as failed, keeping the diagnostic text
// for the longer failure retention window.
func (s *JobStorage) MarkFailed(ctx context.Context, jobID string, errText string) error {
	return s.update(jobID, func(record *models.JobRecord) error {
		now := time.Now()
		record.Status = models.QueueStatusFailed
		record.EndedAt = &now
		record.Error = errText
		record.ExpiresAt = now.Add(models.FailedRecordTTL)
		return nil
	})
}

// MarkCanceled finalizes a record as canceled.
func (s *JobStorage) MarkCanceled(ctx context.Context, jobID string) error {
	return s.update(jobID, func(record *models.JobRecord) error {
		now := time.Now()
		record.Status = models.QueueStatusCanceled
		record.EndedAt = &now
		record.ExpiresAt = now.Add(models.CanceledRecordTTL)
		return nil
	})
}

func (s *JobStorage) update(jobID string, mutate func(*models.JobRecord) error) error {
	var record models.JobRecord
	if err := s.db.Store().Get(jobID, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return ErrRecordNotFound
		}
		return fmt.Errorf("failed to get job record %s: %w", jobID, err)
	}
	if err := mutate(&record); err != nil {
		return err
	}
	if err := s.db.Store().Upsert(jobID, &record); err != nil {
		return fmt.Errorf("failed to update job record %s: %w", jobID, err)
	}
	return nil
}

// ListByStatus returns all records in the given queue status.
func (s *JobStorage) ListByStatus(ctx context.Context, status models.QueueStatus) ([]*models.JobRecord, error) {
	var records []*models.JobRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("Status").Eq(status).Index("Status")); err != nil {
		return nil, fmt.Errorf("failed to list job records by status: %w", err)
	}
	return records, nil
}

// ListFinishedSince returns finished records with EndedAt inside the
// window, newest first.
func (s *JobStorage) ListFinishedSince(ctx context.Context, since time.Time) ([]*models.JobRecord, error) {
	finished, err := s.ListByStatus(ctx, models.QueueStatusFinished)
	if err != nil {
		return nil, err
	}

	// Filter in-memory; pointer time fields in badgerhold queries cause
	// reflection panics.
	var windowed []*models.JobRecord
	for _, record := range finished {
		if record.EndedAt != nil && record.EndedAt.After(since) {
			windowed = append(windowed, record)
		}
	}
	sort.Slice(windowed, func(i, j int) bool {
		return windowed[i].EndedAt.After(*windowed[j].EndedAt)
	})
	return windowed, nil
}

// ListFailed returns failed records, newest first, including error text.
func (s *JobStorage) ListFailed(ctx context.Context) ([]*models.JobRecord, error) {
	failed, err := s.ListByStatus(ctx, models.QueueStatusFailed)
	if err != nil {
		return nil, err
	}
	sort.Slice(failed, func(i, j int) bool {
		ei, ej := failed[i].EndedAt, failed[j].EndedAt
		if ei == nil || ej == nil {
			return ej == nil
		}
		return ei.After(*ej)
	})
	return failed, nil
}

// CountByStatus returns the per-status census of the registry.
func (s *JobStorage) CountByStatus(ctx context.Context) (*models.QueueStats, error) {
	stats := &models.QueueStats{}
	for status, target := range map[models.QueueStatus]*int{
		models.QueueStatusQueued:   &stats.Queued,
		models.QueueStatusStarted:  &stats.Started,
		models.QueueStatusFinished: &stats.Finished,
		models.QueueStatusFailed:   &stats.Failed,
		models.QueueStatusCanceled: &stats.Canceled,
	} {
		count, err := s.db.Store().Count(&models.JobRecord{}, badgerhold.Where("Status").Eq(status).Index("Status"))
		if err != nil {
			return nil, fmt.Errorf("failed to count %s records: %w", status, err)
		}
		*target = int(count)
	}
	return stats, nil
}

// PurgeExpired deletes terminal records whose retention window has
// elapsed. Retention is a storage policy, not a correctness guarantee.
func (s *JobStorage) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var records []*models.JobRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return 0, fmt.Errorf("failed to scan job records: %w", err)
	}

	purged := 0
	for _, record := range records {
		if !record.Terminal() || record.ExpiresAt.IsZero() || record.ExpiresAt.After(now) {
			continue
		}
		if err := s.db.Store().Delete(record.JobID, &models.JobRecord{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("job_id", record.JobID).Msg("Failed to purge expired job record")
			continue
		}
		purged++
	}

	if purged > 0 {
		s.logger.Info().Int("count", purged).Msg("Purged expired job records")
	}
	return purged, nil
}

// ResetStaleStarted fails started records older than the threshold. A
// record stuck in started means the worker that held it died; marking it
// failed surfaces the loss and makes it retryable.
func (s *JobStorage) ResetStaleStarted(ctx context.Context, olderThan time.Duration) (int, error) {
	threshold := time.Now().Add(-olderThan)

	started, err := s.ListByStatus(ctx, models.QueueStatusStarted)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, record := range started {
		if record.StartedAt == nil || record.StartedAt.After(threshold) {
			continue
		}
		if err := s.MarkFailed(ctx, record.JobID, "worker lost: no terminal transition within staleness window"); err != nil {
			s.logger.Warn().Err(err).Str("job_id", record.JobID).Msg("Failed to fail stale started record")
			continue
		}
		reset++
	}

	if reset > 0 {
		s.logger.Info().Int("count", reset).Msg("Failed stale started job records")
	}
	return reset, nil
}
