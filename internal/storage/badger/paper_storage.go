package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ErrPaperNotFound is returned when a paper id has no record.
var ErrPaperNotFound = errors.New("paper not found")

// ErrInvalidTransition is returned when an entity job state change is not
// permitted by the transition table.
var ErrInvalidTransition = errors.New("invalid job state transition")

// PaperStorage persists papers and owns the per-kind entity job states.
type PaperStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPaperStorage creates a paper storage backed by badgerhold.
func NewPaperStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PaperStorage {
	return &PaperStorage{db: db, logger: logger}
}

// SavePaper upserts a paper, maintaining timestamps.
func (s *PaperStorage) SavePaper(ctx context.Context, paper *models.Paper) error {
	now := time.Now()
	if paper.CreatedAt.IsZero() {
		paper.CreatedAt = now
	}
	paper.UpdatedAt = now

	if err := s.db.Store().Upsert(paper.ID, paper); err != nil {
		return fmt.Errorf("failed to save paper %s: %w", paper.ID, err)
	}
	return nil
}

// GetPaper returns the paper for the given normalized arXiv id.
func (s *PaperStorage) GetPaper(ctx context.Context, id string) (*models.Paper, error) {
	var paper models.Paper
	if err := s.db.Store().Get(id, &paper); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, ErrPaperNotFound
		}
		return nil, fmt.Errorf("failed to get paper %s: %w", id, err)
	}
	return &paper, nil
}

// InsertPaperIfAbsent inserts a new paper and reports whether it was
// inserted. An existing record is left untouched.
func (s *PaperStorage) InsertPaperIfAbsent(ctx context.Context, paper *models.Paper) (bool, error) {
	now := time.Now()
	if paper.CreatedAt.IsZero() {
		paper.CreatedAt = now
	}
	paper.UpdatedAt = now
	if paper.SummaryStatus == "" {
		paper.SummaryStatus = models.StatePending
	}
	if paper.ComicStatus == "" {
		paper.ComicStatus = models.StatePending
	}

	if err := s.db.Store().Insert(paper.ID, paper); err != nil {
		if err == badgerhold.ErrKeyExists {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert paper %s: %w", paper.ID, err)
	}
	return true, nil
}

// ListPapers returns papers ordered newest first.
func (s *PaperStorage) ListPapers(ctx context.Context, limit, offset int) ([]*models.Paper, error) {
	var papers []*models.Paper
	query := (&badgerhold.Query{}).SortBy("CreatedAt").Reverse()
	if offset > 0 {
		query = query.Skip(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&papers, query); err != nil {
		return nil, fmt.Errorf("failed to list papers: %w", err)
	}
	return papers, nil
}

// ListPapersByKeyword returns papers matched by the given search keyword.
func (s *PaperStorage) ListPapersByKeyword(ctx context.Context, keyword string) ([]*models.Paper, error) {
	var papers []*models.Paper
	if err := s.db.Store().Find(&papers, badgerhold.Where("Keywords").Contains(keyword)); err != nil {
		return nil, fmt.Errorf("failed to list papers by keyword: %w", err)
	}
	return papers, nil
}

// CountPapers returns the total number of stored papers.
func (s *PaperStorage) CountPapers(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.Paper{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count papers: %w", err)
	}
	return int(count), nil
}

// DeletePaper removes a paper record.
func (s *PaperStorage) DeletePaper(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Paper{}); err != nil && err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to delete paper %s: %w", id, err)
	}
	return nil
}

// UpdatePaperField applies a mutation to a single paper record and
// persists it. The mutation must not touch job state fields; those go
// through UpdateJobState.
func (s *PaperStorage) UpdatePaperField(ctx context.Context, id string, mutate func(*models.Paper)) error {
	var paper models.Paper
	if err := s.db.Store().Get(id, &paper); err != nil {
		if err == badgerhold.ErrNotFound {
			return ErrPaperNotFound
		}
		return fmt.Errorf("failed to get paper %s: %w", id, err)
	}

	mutate(&paper)
	paper.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(id, &paper); err != nil {
		return fmt.Errorf("failed to update paper %s: %w", id, err)
	}
	return nil
}

// UpdateJobState moves the entity job state for one kind, enforcing the
// transition table at the repository boundary.
func (s *PaperStorage) UpdateJobState(ctx context.Context, id string, kind models.JobKind, state models.EntityJobState) error {
	var paper models.Paper
	if err := s.db.Store().Get(id, &paper); err != nil {
		if err == badgerhold.ErrNotFound {
			return ErrPaperNotFound
		}
		return fmt.Errorf("failed to get paper %s: %w", id, err)
	}

	current, err := paper.JobState(kind)
	if err != nil {
		return err
	}
	if !current.CanTransition(state, false) {
		return fmt.Errorf("%w: %s %s -> %s for paper %s", ErrInvalidTransition, kind, current, state, id)
	}

	if err := paper.SetJobState(kind, state); err != nil {
		return err
	}
	paper.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(id, &paper); err != nil {
		return fmt.Errorf("failed to update job state for paper %s: %w", id, err)
	}

	s.logger.Debug().
		Str("paper_id", id).
		Str("kind", string(kind)).
		Str("from", string(current)).
		Str("to", string(state)).
		Msg("Entity job state updated")
	return nil
}

// ResetJobState forces the state for one kind back to pending. Used for
// explicit retry of a failed run and for forced regeneration of a
// completed artifact.
func (s *PaperStorage) ResetJobState(ctx context.Context, id string, kind models.JobKind) error {
	var paper models.Paper
	if err := s.db.Store().Get(id, &paper); err != nil {
		if err == badgerhold.ErrNotFound {
			return ErrPaperNotFound
		}
		return fmt.Errorf("failed to get paper %s: %w", id, err)
	}

	if err := paper.SetJobState(kind, models.StatePending); err != nil {
		return err
	}
	paper.UpdatedAt = time.Now()

	if err := s.db.Store().Upsert(id, &paper); err != nil {
		return fmt.Errorf("failed to reset job state for paper %s: %w", id, err)
	}
	return nil
}

// ResetStaleRunning flips running states older than the threshold back to
// pending. Covers workers that died mid-task and never reached a terminal
// transition.
func (s *PaperStorage) ResetStaleRunning(ctx context.Context, olderThan time.Duration) (int, error) {
	threshold := time.Now().Add(-olderThan)

	// Filter in-memory; time comparisons inside badgerhold queries are
	// unreliable with pointer fields.
	var papers []*models.Paper
	if err := s.db.Store().Find(&papers, nil); err != nil {
		return 0, fmt.Errorf("failed to scan papers: %w", err)
	}

	reset := 0
	for _, paper := range papers {
		if paper.UpdatedAt.After(threshold) {
			continue
		}
		changed := false
		if paper.SummaryStatus == models.StateRunning {
			paper.SummaryStatus = models.StatePending
			changed = true
		}
		if paper.ComicStatus == models.StateRunning {
			paper.ComicStatus = models.StatePending
			changed = true
		}
		if !changed {
			continue
		}
		paper.UpdatedAt = time.Now()
		if err := s.db.Store().Upsert(paper.ID, paper); err != nil {
			s.logger.Warn().Err(err).Str("paper_id", paper.ID).Msg("Failed to reset stale running state")
			continue
		}
		reset++
	}

	if reset > 0 {
		s.logger.Info().Int("count", reset).Msg("Reset stale running entity states")
	}
	return reset, nil
}
