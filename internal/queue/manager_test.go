package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/events"
	storagebadger "github.com/ternarybob/colligo/internal/storage/badger"
)

func newTestManager(t *testing.T) (*Manager, interfaces.JobStorage) {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := storagebadger.NewBadgerDB(logger, &common.StorageConfig{
		Path: filepath.Join(t.TempDir(), "queue-test"),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	jobs := storagebadger.NewJobStorage(db, logger)
	manager, err := NewManager(db.Store().Badger(), jobs, events.NewService(logger), logger, &common.QueueConfig{
		PollInterval:      "100ms",
		Concurrency:       1,
		VisibilityTimeout: "5s",
		MaxReceive:        3,
	})
	if err != nil {
		t.Fatal(err)
	}
	return manager, jobs
}

func TestEnqueueReceiveFIFO(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	var ids []string
	for _, key := range []string{"2401.00001", "2401.00002", "2401.00003"} {
		id, err := manager.Enqueue(ctx, models.JobKindSummary, key, nil)
		if err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		ids = append(ids, id)
		// Distinct index timestamps keep ordering deterministic.
		time.Sleep(2 * time.Millisecond)
	}

	for i, want := range ids {
		msg, err := manager.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d failed: %v", i, err)
		}
		if msg.ID != want {
			t.Errorf("Expected FIFO order, receive %d got %s want %s", i, msg.ID, want)
		}
	}

	if _, err := manager.Receive(ctx); err != models.ErrNoMessage {
		t.Errorf("Expected ErrNoMessage on empty queue, got %v", err)
	}
}

func TestPositionReportsFIFOIndex(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	var ids []string
	for _, key := range []string{"2401.00001", "2401.00002", "2401.00003"} {
		id, err := manager.Enqueue(ctx, models.JobKindSummary, key, nil)
		if err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	for i, id := range ids {
		position, queued, err := manager.Position(ctx, id)
		if err != nil {
			t.Fatalf("Position failed: %v", err)
		}
		if !queued {
			t.Fatalf("Expected job %s to be queued", id)
		}
		if position != i+1 {
			t.Errorf("Expected position %d for job %s, got %d", i+1, id, position)
		}
	}

	// A claimed message no longer holds a queue position.
	msg, err := manager.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if _, queued, _ := manager.Position(ctx, msg.ID); queued {
		t.Error("Expected claimed job to report not queued")
	}
	if position, _, _ := manager.Position(ctx, ids[1]); position != 1 {
		t.Errorf("Expected second job to move to position 1, got %d", position)
	}

	// Unknown ids report not queued.
	if _, queued, _ := manager.Position(ctx, "no-such-job"); queued {
		t.Error("Expected unknown job to report not queued")
	}
}

func TestReceiveMarksStarted(t *testing.T) {
	manager, jobs := newTestManager(t)
	ctx := context.Background()

	id, err := manager.Enqueue(ctx, models.JobKindComic, "2401.00001", nil)
	if err != nil {
		t.Fatal(err)
	}

	record, err := jobs.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != models.QueueStatusQueued {
		t.Errorf("Expected queued before receive, got %s", record.Status)
	}

	if _, err := manager.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	record, err = jobs.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != models.QueueStatusStarted {
		t.Errorf("Expected started after receive, got %s", record.Status)
	}
	if record.StartedAt == nil {
		t.Error("Expected StartedAt stamped on receive")
	}
}

func TestCancelOnlyWhileQueued(t *testing.T) {
	manager, jobs := newTestManager(t)
	ctx := context.Background()

	id, err := manager.Enqueue(ctx, models.JobKindSummary, "2401.00001", nil)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := manager.Cancel(ctx, id)
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if !ok {
		t.Error("Expected cancel of queued job to succeed")
	}

	record, err := jobs.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != models.QueueStatusCanceled {
		t.Errorf("Expected canceled record, got %s", record.Status)
	}

	if _, err := manager.Receive(ctx); err != models.ErrNoMessage {
		t.Errorf("Expected canceled message gone from queue, got %v", err)
	}

	// A job that was already received cannot be canceled.
	started, err := manager.Enqueue(ctx, models.JobKindSummary, "2401.00002", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	ok, err = manager.Cancel(ctx, started)
	if err != nil {
		t.Fatalf("Cancel of started job errored: %v", err)
	}
	if ok {
		t.Error("Expected cancel of started job to report false")
	}

	// Unknown ids report false, not an error.
	ok, err = manager.Cancel(ctx, "no-such-job")
	if err != nil || ok {
		t.Errorf("Expected (false, nil) for unknown id, got (%v, %v)", ok, err)
	}
}

func TestRetryOnlyFailed(t *testing.T) {
	manager, jobs := newTestManager(t)
	ctx := context.Background()

	id, err := manager.Enqueue(ctx, models.JobKindComic, "2401.00001", []string{"2401.00001", "force"})
	if err != nil {
		t.Fatal(err)
	}

	// Retry of a queued job is a no-op.
	newID, err := manager.Retry(ctx, id)
	if err != nil {
		t.Fatalf("Retry of queued job errored: %v", err)
	}
	if newID != "" {
		t.Error("Expected no new id for retry of queued job")
	}

	if _, err := manager.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	// Retry of a started job is a no-op.
	newID, err = manager.Retry(ctx, id)
	if err != nil || newID != "" {
		t.Errorf("Expected no-op retry of started job, got (%q, %v)", newID, err)
	}

	if err := manager.Fail(ctx, id, "pdf extraction failed"); err != nil {
		t.Fatal(err)
	}

	newID, err = manager.Retry(ctx, id)
	if err != nil {
		t.Fatalf("Retry of failed job errored: %v", err)
	}
	if newID == "" || newID == id {
		t.Fatalf("Expected fresh id for retried job, got %q", newID)
	}

	record, err := jobs.GetRecord(ctx, newID)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != models.QueueStatusQueued {
		t.Errorf("Expected retried job queued, got %s", record.Status)
	}
	if len(record.Args) != 2 || record.Args[1] != "force" {
		t.Errorf("Expected original args preserved, got %v", record.Args)
	}
	if record.RetryOf != id {
		t.Errorf("Expected retry link to %s, got %s", id, record.RetryOf)
	}

	msg, err := manager.Receive(ctx)
	if err != nil {
		t.Fatalf("Retried job not receivable: %v", err)
	}
	if msg.ID != newID {
		t.Errorf("Expected retried message %s, got %s", newID, msg.ID)
	}
}

func TestCompleteFinalizesRecord(t *testing.T) {
	manager, jobs := newTestManager(t)
	ctx := context.Background()

	id, err := manager.Enqueue(ctx, models.JobKindSummary, "2401.00001", nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := manager.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	if err := manager.Complete(ctx, id, "summary stored"); err != nil {
		t.Fatal(err)
	}

	record, err := jobs.GetRecord(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if record.Status != models.QueueStatusFinished {
		t.Errorf("Expected finished, got %s", record.Status)
	}
	if record.Result != "summary stored" {
		t.Errorf("Expected result preserved, got %q", record.Result)
	}
	if record.EndedAt == nil {
		t.Error("Expected EndedAt stamped")
	}

	if _, err := manager.Receive(ctx); err != models.ErrNoMessage {
		t.Errorf("Expected message acknowledged, got %v", err)
	}
}

// The queue deliberately accepts duplicate submissions for one entity;
// deduplication belongs to the scheduler lane and task-level idempotence.
func TestDuplicateEnqueueAccepted(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	first, err := manager.Enqueue(ctx, models.JobKindSummary, "2401.00001", nil)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := manager.Enqueue(ctx, models.JobKindSummary, "2401.00001", nil)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatal("Expected distinct ids for duplicate submissions")
	}

	depth, err := manager.Depth(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if depth != 2 {
		t.Errorf("Expected both duplicates queued, depth %d", depth)
	}
}

func TestStatsCensus(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	a, err := manager.Enqueue(ctx, models.JobKindSummary, "2401.00001", nil)
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(2 * time.Millisecond)
	if _, err := manager.Enqueue(ctx, models.JobKindComic, "2401.00002", nil); err != nil {
		t.Fatal(err)
	}

	if _, err := manager.Receive(ctx); err != nil {
		t.Fatal(err)
	}
	if err := manager.Fail(ctx, a, "boom"); err != nil {
		t.Fatal(err)
	}

	stats, err := manager.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Queued != 1 || stats.Failed != 1 {
		t.Errorf("Expected 1 queued and 1 failed, got %+v", stats)
	}
}
