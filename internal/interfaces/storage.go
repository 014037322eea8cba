// -----------------------------------------------------------------------
// Last Modified: Wednesday, 11th February 2026 3:41:07 pm
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// PaperStorage - interface for paper persistence and entity job states
type PaperStorage interface {
	// Paper operations
	SavePaper(ctx context.Context, paper *models.Paper) error
	GetPaper(ctx context.Context, id string) (*models.Paper, error)
	InsertPaperIfAbsent(ctx context.Context, paper *models.Paper) (bool, error)
	ListPapers(ctx context.Context, limit, offset int) ([]*models.Paper, error)
	ListPapersByKeyword(ctx context.Context, keyword string) ([]*models.Paper, error)
	CountPapers(ctx context.Context) (int, error)
	DeletePaper(ctx context.Context, id string) error

	// Artifact field updates (atomic single-record upserts)
	UpdatePaperField(ctx context.Context, id string, mutate func(*models.Paper)) error

	// Entity job state machine
	UpdateJobState(ctx context.Context, id string, kind models.JobKind, state models.EntityJobState) error
	ResetJobState(ctx context.Context, id string, kind models.JobKind) error
	ResetStaleRunning(ctx context.Context, olderThan time.Duration) (int, error)
}

// JobStorage - interface for the queue-level job record registries
type JobStorage interface {
	SaveRecord(ctx context.Context, record *models.JobRecord) error
	GetRecord(ctx context.Context, jobID string) (*models.JobRecord, error)
	MarkStarted(ctx context.Context, jobID string) error
	MarkFinished(ctx context.Context, jobID string, result string) error
	MarkFailed(ctx context.Context, jobID string, errText string) error
	MarkCanceled(ctx context.Context, jobID string) error

	ListByStatus(ctx context.Context, status models.QueueStatus) ([]*models.JobRecord, error)
	ListFinishedSince(ctx context.Context, since time.Time) ([]*models.JobRecord, error)
	ListFailed(ctx context.Context) ([]*models.JobRecord, error)
	CountByStatus(ctx context.Context) (*models.QueueStats, error)

	PurgeExpired(ctx context.Context, now time.Time) (int, error)
	ResetStaleStarted(ctx context.Context, olderThan time.Duration) (int, error)
}

// StorageManager - owner of the underlying store and typed storages
type StorageManager interface {
	Papers() PaperStorage
	Jobs() JobStorage
	Close() error
}
