package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/models"
)

func newTestRecord(jobID string, kind models.JobKind) *models.JobRecord {
	return &models.JobRecord{
		JobID:      jobID,
		Kind:       kind,
		EntityKey:  "2401.00001",
		Args:       []string{"2401.00001"},
		Status:     models.QueueStatusQueued,
		EnqueuedAt: time.Now(),
	}
}

func TestJobRecordLifecycle(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	record := newTestRecord("job-1", models.JobKindSummary)
	if err := storage.SaveRecord(ctx, record); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	if err := storage.MarkStarted(ctx, "job-1"); err != nil {
		t.Fatalf("Failed to mark started: %v", err)
	}
	got, err := storage.GetRecord(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.QueueStatusStarted {
		t.Errorf("Expected started, got %s", got.Status)
	}
	if got.StartedAt == nil {
		t.Error("Expected StartedAt to be set")
	}

	if err := storage.MarkFinished(ctx, "job-1", "ok"); err != nil {
		t.Fatalf("Failed to mark finished: %v", err)
	}
	got, err = storage.GetRecord(ctx, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.QueueStatusFinished {
		t.Errorf("Expected finished, got %s", got.Status)
	}
	if got.EndedAt == nil {
		t.Error("Expected EndedAt to be set")
	}
	if got.Result != "ok" {
		t.Errorf("Expected result preserved, got %q", got.Result)
	}

	// Success retention is 24h.
	wantExpiry := got.EndedAt.Add(models.FinishedRecordTTL)
	if !got.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("Expected expiry %v, got %v", wantExpiry, got.ExpiresAt)
	}
}

func TestJobRecordFailureRetention(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	record := newTestRecord("job-2", models.JobKindComic)
	if err := storage.SaveRecord(ctx, record); err != nil {
		t.Fatal(err)
	}
	if err := storage.MarkStarted(ctx, "job-2"); err != nil {
		t.Fatal(err)
	}
	if err := storage.MarkFailed(ctx, "job-2", "image backend unavailable"); err != nil {
		t.Fatal(err)
	}

	got, err := storage.GetRecord(ctx, "job-2")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.QueueStatusFailed {
		t.Errorf("Expected failed, got %s", got.Status)
	}
	if got.Error != "image backend unavailable" {
		t.Errorf("Expected error text preserved, got %q", got.Error)
	}

	// Failure retention is 7 days.
	wantExpiry := got.EndedAt.Add(models.FailedRecordTTL)
	if !got.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("Expected expiry %v, got %v", wantExpiry, got.ExpiresAt)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())

	_, err := storage.GetRecord(context.Background(), "missing")
	if !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestCountByStatus(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	for _, id := range []string{"q-1", "q-2"} {
		if err := storage.SaveRecord(ctx, newTestRecord(id, models.JobKindSummary)); err != nil {
			t.Fatal(err)
		}
	}
	if err := storage.SaveRecord(ctx, newTestRecord("s-1", models.JobKindComic)); err != nil {
		t.Fatal(err)
	}
	if err := storage.MarkStarted(ctx, "s-1"); err != nil {
		t.Fatal(err)
	}

	stats, err := storage.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("Failed to count by status: %v", err)
	}
	if stats.Queued != 2 {
		t.Errorf("Expected 2 queued, got %d", stats.Queued)
	}
	if stats.Started != 1 {
		t.Errorf("Expected 1 started, got %d", stats.Started)
	}
	if stats.Finished != 0 || stats.Failed != 0 || stats.Canceled != 0 {
		t.Errorf("Expected zero terminal records, got %+v", stats)
	}
}

func TestListFinishedSinceWindowAndOrder(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now()
	mkFinished := func(id string, endedAgo time.Duration) {
		ended := now.Add(-endedAgo)
		record := newTestRecord(id, models.JobKindSummary)
		record.Status = models.QueueStatusFinished
		record.EndedAt = &ended
		record.ExpiresAt = ended.Add(models.FinishedRecordTTL)
		if err := storage.SaveRecord(ctx, record); err != nil {
			t.Fatal(err)
		}
	}

	mkFinished("old", 48*time.Hour)
	mkFinished("mid", 12*time.Hour)
	mkFinished("new", time.Hour)

	records, err := storage.ListFinishedSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Failed to list finished: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records inside window, got %d", len(records))
	}
	if records[0].JobID != "new" || records[1].JobID != "mid" {
		t.Errorf("Expected newest-first order [new mid], got [%s %s]", records[0].JobID, records[1].JobID)
	}
}

func TestPurgeExpired(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now()

	expired := newTestRecord("expired", models.JobKindSummary)
	ended := now.Add(-48 * time.Hour)
	expired.Status = models.QueueStatusFinished
	expired.EndedAt = &ended
	expired.ExpiresAt = ended.Add(models.FinishedRecordTTL)
	if err := storage.SaveRecord(ctx, expired); err != nil {
		t.Fatal(err)
	}

	kept := newTestRecord("kept", models.JobKindSummary)
	if err := storage.SaveRecord(ctx, kept); err != nil {
		t.Fatal(err)
	}

	purged, err := storage.PurgeExpired(ctx, now)
	if err != nil {
		t.Fatalf("Failed to purge: %v", err)
	}
	if purged != 1 {
		t.Errorf("Expected 1 purged record, got %d", purged)
	}

	if _, err := storage.GetRecord(ctx, "expired"); !errors.Is(err, ErrRecordNotFound) {
		t.Errorf("Expected expired record gone, got %v", err)
	}
	if _, err := storage.GetRecord(ctx, "kept"); err != nil {
		t.Errorf("Expected queued record kept, got %v", err)
	}
}

func TestResetStaleStarted(t *testing.T) {
	db := openTestDB(t)
	storage := NewJobStorage(db, arbor.NewLogger())
	ctx := context.Background()

	stale := newTestRecord("stale", models.JobKindSummary)
	startedAt := time.Now().Add(-2 * time.Hour)
	stale.Status = models.QueueStatusStarted
	stale.StartedAt = &startedAt
	if err := storage.SaveRecord(ctx, stale); err != nil {
		t.Fatal(err)
	}

	fresh := newTestRecord("fresh", models.JobKindSummary)
	if err := storage.SaveRecord(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	if err := storage.MarkStarted(ctx, "fresh"); err != nil {
		t.Fatal(err)
	}

	reset, err := storage.ResetStaleStarted(ctx, time.Hour)
	if err != nil {
		t.Fatalf("Failed to reset stale started: %v", err)
	}
	if reset != 1 {
		t.Errorf("Expected 1 stale record failed, got %d", reset)
	}

	got, err := storage.GetRecord(ctx, "stale")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.QueueStatusFailed {
		t.Errorf("Expected stale record failed, got %s", got.Status)
	}

	gotFresh, err := storage.GetRecord(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if gotFresh.Status != models.QueueStatusStarted {
		t.Errorf("Expected fresh record untouched, got %s", gotFresh.Status)
	}
}
