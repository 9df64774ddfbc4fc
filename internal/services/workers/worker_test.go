package workers

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJobService(t *testing.T) jobs.Service {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "system.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate(&models.Job{}))
	return jobs.NewService(jobs.NewRepository(db.DB))
}

// stubProcessor handles episode jobs with a scripted outcome
type stubProcessor struct {
	mu        sync.Mutex
	processed []uint
	result    error
	done      chan struct{}
}

func newStubProcessor(result error) *stubProcessor {
	return &stubProcessor{result: result, done: make(chan struct{}, 16)}
}

func (s *stubProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	s.processed = append(s.processed, job.ID)
	s.mu.Unlock()
	s.done <- struct{}{}
	return s.result
}

func (s *stubProcessor) CanProcess(jobType models.JobType) bool {
	return jobType == models.JobTypeEpisodeProcess
}

func (s *stubProcessor) processedIDs() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.processed...)
}

func TestWorkerDispatchesToProcessor(t *testing.T) {
	svc := testJobService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"})
	require.NoError(t, err)

	processor := newStubProcessor(nil)
	w := NewWorker("w1", svc, time.Minute)
	w.RegisterProcessor(processor)

	require.NoError(t, w.processNextJob(ctx))
	assert.Equal(t, []uint{job.ID}, processor.processedIDs())
}

func TestWorkerRequiresProcessors(t *testing.T) {
	svc := testJobService(t)
	w := NewWorker("w1", svc, time.Minute)

	err := w.processNextJob(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no job processors registered")
}

func TestWorkerSkipsUnsupportedTypes(t *testing.T) {
	svc := testJobService(t)
	ctx := context.Background()

	_, err := svc.EnqueueJob(ctx, models.JobTypeCheckpointCleanup,
		models.JobPayload{"retention_days": 7})
	require.NoError(t, err)

	processor := newStubProcessor(nil)
	w := NewWorker("w1", svc, time.Minute)
	w.RegisterProcessor(processor)

	require.NoError(t, w.processNextJob(ctx))
	assert.Empty(t, processor.processedIDs())

	// the cleanup job is still pending for a capable worker
	_, err = svc.ClaimNextJob(ctx, "other", []models.JobType{models.JobTypeCheckpointCleanup})
	require.NoError(t, err)
}

func TestWorkerRecordsStructuredFailures(t *testing.T) {
	svc := testJobService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"})
	require.NoError(t, err)

	processor := newStubProcessor(models.NewMalformedInputError(
		"bad_vtt", "missing WEBVTT header", "", nil))
	w := NewWorker("w1", svc, time.Minute)
	w.RegisterProcessor(processor)

	err = w.processNextJob(ctx)
	require.Error(t, err)

	failed, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPermanentlyFailed, failed.Status)
	assert.Equal(t, string(models.ErrorTypeMalformedInput), failed.ErrorType)
	assert.Equal(t, "bad_vtt", failed.ErrorCode)
}

func TestWorkerRecordsPlainFailures(t *testing.T) {
	svc := testJobService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"})
	require.NoError(t, err)

	processor := newStubProcessor(errors.New("something unexpected"))
	w := NewWorker("w1", svc, time.Minute)
	w.RegisterProcessor(processor)

	err = w.processNextJob(ctx)
	require.Error(t, err)

	failed, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(models.ErrorTypeSystem), failed.ErrorType)
	assert.Equal(t, "something unexpected", failed.Error)
}

func TestWorkerAbortsExpiredJobs(t *testing.T) {
	svc := testJobService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"},
		jobs.WithDeadline(time.Now().Add(-time.Minute)))
	require.NoError(t, err)

	processor := newStubProcessor(nil)
	w := NewWorker("w1", svc, time.Minute)
	w.RegisterProcessor(processor)

	require.NoError(t, w.processNextJob(ctx))
	assert.Empty(t, processor.processedIDs())

	failed, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.Equal(t, "deadline_exceeded", failed.ErrorCode)
}

func TestWorkerPoolLifecycle(t *testing.T) {
	svc := testJobService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := NewWorkerPool(svc, 2, 5*time.Millisecond)
	processor := newStubProcessor(nil)
	pool.RegisterProcessor(processor)

	require.NoError(t, pool.Start(ctx))
	assert.Error(t, pool.Start(ctx), "double start is refused")

	_, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"})
	require.NoError(t, err)

	select {
	case <-processor.done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}

	pool.Stop()
	pool.Stop() // idempotent
}
