package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

func testConfig() *common.SchedulerConfig {
	return &common.SchedulerConfig{
		Enabled:              true,
		Timezone:             "UTC",
		CrawlSchedule:        "0 6 * * *",
		HousekeepingSchedule: "*/30 * * * *",
		StaleRunningAfter:    "30m",
		MisfireGrace:         "5m",
		OneShotMisfireGrace:  "1h",
	}
}

func newTestService(t *testing.T, config *common.SchedulerConfig, runner OneShotRunner) *Service {
	t.Helper()

	service, err := NewService(config, runner, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, service.Start())
	t.Cleanup(service.Stop)
	return service
}

func TestStartIsIdempotent(t *testing.T) {
	service := newTestService(t, testConfig(), nil)
	require.NoError(t, service.Start())
	require.NoError(t, service.Start())
}

func TestStartDisabledIsNoOp(t *testing.T) {
	config := testConfig()
	config.Enabled = false

	service, err := NewService(config, nil, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, service.Start())

	// Disabled scheduler accepts no one-shot work.
	_, err = service.SubmitOneShot(models.JobKindSummary, "2401.00001", 0)
	assert.Error(t, err)
}

func TestOneShotDuplicateSuppression(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs sync.Map

	runner := func(kind models.JobKind, entityKey string) JobFunc {
		return func(ctx context.Context) error {
			runs.Store(entityKey, true)
			close(started)
			<-release
			return nil
		}
	}

	service := newTestService(t, testConfig(), runner)

	first, err := service.SubmitOneShot(models.JobKindSummary, "2401.00001", 0)
	require.NoError(t, err)
	assert.Equal(t, "summary_2401.00001", first)

	<-started

	// Re-submission while the first run is executing returns the same id
	// and creates no second entry.
	second, err := service.SubmitOneShot(models.JobKindSummary, "2401.00001", 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	oneShots := 0
	for _, info := range service.ListJobs() {
		if !info.Recurring {
			oneShots++
		}
	}
	assert.Equal(t, 1, oneShots)

	close(release)

	// Once the run finishes the id is free again.
	require.Eventually(t, func() bool {
		_, known := service.GetStatus(first)
		return !known
	}, 2*time.Second, 10*time.Millisecond)
}

func TestOneShotLaneRunsInSubmissionOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	done := make(chan struct{}, 2)

	runner := func(kind models.JobKind, entityKey string) JobFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, entityKey)
			mu.Unlock()
			done <- struct{}{}
			return nil
		}
	}

	service := newTestService(t, testConfig(), runner)

	_, err := service.SubmitOneShot(models.JobKindSummary, "first", 0)
	require.NoError(t, err)
	_, err = service.SubmitOneShot(models.JobKindSummary, "second", 30*time.Millisecond)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("one-shot jobs did not run")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestOneShotCancelBeforeStart(t *testing.T) {
	runner := func(kind models.JobKind, entityKey string) JobFunc {
		return func(ctx context.Context) error {
			t.Error("canceled job must not run")
			return nil
		}
	}

	service := newTestService(t, testConfig(), runner)

	id, err := service.SubmitOneShot(models.JobKindComic, "2401.00002", time.Hour)
	require.NoError(t, err)

	status, known := service.GetStatus(id)
	assert.True(t, known)
	assert.Equal(t, "scheduled", status)

	assert.True(t, service.CancelJob(id))

	_, known = service.GetStatus(id)
	assert.False(t, known)

	// Canceling an unknown id reports false.
	assert.False(t, service.CancelJob("summary_nothing"))
}

func TestOneShotMisfireGraceDropsStaleJob(t *testing.T) {
	config := testConfig()
	config.OneShotMisfireGrace = "1ms"

	blockerDone := make(chan struct{})
	staleRan := make(chan struct{}, 1)

	runner := func(kind models.JobKind, entityKey string) JobFunc {
		if entityKey == "blocker" {
			return func(ctx context.Context) error {
				time.Sleep(150 * time.Millisecond)
				close(blockerDone)
				return nil
			}
		}
		return func(ctx context.Context) error {
			staleRan <- struct{}{}
			return nil
		}
	}

	service := newTestService(t, config, runner)

	_, err := service.SubmitOneShot(models.JobKindSummary, "blocker", 0)
	require.NoError(t, err)
	// The lane is busy with the blocker; by the time this job reaches the
	// front its due time is past the grace window.
	_, err = service.SubmitOneShot(models.JobKindSummary, "stale", 10*time.Millisecond)
	require.NoError(t, err)

	<-blockerDone

	select {
	case <-staleRan:
		t.Fatal("stale job should have been dropped")
	case <-time.After(200 * time.Millisecond):
	}

	_, known := service.GetStatus("summary_stale")
	assert.False(t, known)
}

func TestRecurringSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var mu sync.Mutex
	runs := 0

	service := newTestService(t, testConfig(), nil)
	require.NoError(t, service.RegisterJob("crawl", "0 6 * * *", func(ctx context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		close(started)
		<-release
		return nil
	}))

	require.NoError(t, service.TriggerNow("crawl"))
	<-started

	// A second trigger while the first run executes is skipped.
	require.NoError(t, service.TriggerNow("crawl"))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, runs)
	mu.Unlock()

	close(release)
}

func TestRecurringMisfireGraceDropsStaleTick(t *testing.T) {
	config := testConfig()
	config.MisfireGrace = "5m"

	ran := make(chan struct{}, 1)

	service := newTestService(t, config, nil)
	require.NoError(t, service.RegisterJob("crawl", "0 6 * * *", func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	}))

	// A tick delivered well past its scheduled time is dropped.
	service.runRecurringTick("crawl", time.Now().Add(-10*time.Minute))
	select {
	case <-ran:
		t.Fatal("stale tick should have been dropped")
	case <-time.After(100 * time.Millisecond):
	}

	// A tick within the grace window runs.
	service.runRecurringTick("crawl", time.Now().Add(-time.Minute))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("fresh tick did not run")
	}
}

func TestRecurringJobErrorDoesNotCrashScheduler(t *testing.T) {
	service := newTestService(t, testConfig(), nil)

	ran := make(chan struct{}, 2)
	require.NoError(t, service.RegisterJob("flaky", "0 6 * * *", func(ctx context.Context) error {
		ran <- struct{}{}
		panic("boom")
	}))

	require.NoError(t, service.TriggerNow("flaky"))
	<-ran

	// The scheduler survives and the job can be triggered again.
	require.Eventually(t, func() bool {
		if err := service.TriggerNow("flaky"); err != nil {
			return false
		}
		select {
		case <-ran:
			return true
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 50*time.Millisecond)
}

func TestUpdateAndDisableRecurring(t *testing.T) {
	service := newTestService(t, testConfig(), nil)
	require.NoError(t, service.RegisterJob("crawl", "0 6 * * *", func(ctx context.Context) error { return nil }))

	require.NoError(t, service.UpdateJobSchedule("crawl", "30 7 * * *"))
	assert.Error(t, service.UpdateJobSchedule("crawl", "not a cron"))
	assert.Error(t, service.UpdateJobSchedule("missing", "0 6 * * *"))

	require.NoError(t, service.DisableJob("crawl"))
	_, known := service.GetStatus("crawl")
	assert.False(t, known)

	require.NoError(t, service.EnableJob("crawl"))
	status, known := service.GetStatus("crawl")
	assert.True(t, known)
	assert.Equal(t, "scheduled", status)
}
