package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(t *testing.T) (Service, *database.DB) {
	t.Helper()
	db, err := database.Initialize(filepath.Join(t.TempDir(), "system.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.AutoMigrate(&models.Job{}))
	return NewService(NewRepository(db.DB)), db
}

func TestEnqueueJobDefaults(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess, models.JobPayload{"episode_id": "ep-1"})
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, models.PriorityNormal, job.Priority)
	assert.Equal(t, DefaultMaxRetries, job.MaxRetries)
	assert.Equal(t, "ep-1", job.GetEpisodeID())
}

func TestClaimOrderedByPriorityThenAge(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	low, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-low"}, WithPriority(models.PriorityLow))
	require.NoError(t, err)
	high, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-high"}, WithPriority(models.PriorityHigh))
	require.NoError(t, err)

	first, err := svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)
	assert.Equal(t, high.ID, first.ID)
	assert.Equal(t, models.JobStatusProcessing, first.Status)
	assert.Equal(t, "w1", first.WorkerID)

	second, err := svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)
	assert.Equal(t, low.ID, second.ID)

	_, err = svc.ClaimNextJob(ctx, "w1", nil)
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}

func TestClaimFiltersByType(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	_, err := svc.EnqueueJob(ctx, models.JobTypeCheckpointCleanup, models.JobPayload{"retention_days": 7})
	require.NoError(t, err)

	_, err = svc.ClaimNextJob(ctx, "w1", []models.JobType{models.JobTypeEpisodeProcess})
	assert.ErrorIs(t, err, ErrNoJobsAvailable)

	job, err := svc.ClaimNextJob(ctx, "w1", []models.JobType{models.JobTypeCheckpointCleanup})
	require.NoError(t, err)
	assert.Equal(t, models.JobTypeCheckpointCleanup, job.Type)
}

func TestEnqueueUniqueJobDeduplicates(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	first, err := svc.EnqueueUniqueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"}, "episode_id")
	require.NoError(t, err)

	dup, err := svc.EnqueueUniqueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"}, "episode_id")
	require.NoError(t, err)
	assert.Equal(t, first.ID, dup.ID)

	// a terminal job no longer blocks re-enqueueing
	claimed, err := svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)
	require.NoError(t, svc.CompleteJob(ctx, claimed.ID, models.JobResult{"entities": 3}))

	fresh, err := svc.EnqueueUniqueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"}, "episode_id")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)
}

func TestEnqueueUniqueJobRequiresKey(t *testing.T) {
	svc, _ := testService(t)

	_, err := svc.EnqueueUniqueJob(context.Background(), models.JobTypeEpisodeProcess,
		models.JobPayload{"other": "x"}, "episode_id")
	require.Error(t, err)
}

func TestTransientFailureRetriesThenExhausts(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"}, WithMaxRetries(2))
	require.NoError(t, err)

	claimed, err := svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	require.NoError(t, svc.FailJobWithDetails(ctx, job.ID, models.ErrorTypeTransient,
		"llm_timeout", "context deadline exceeded", ""))

	failed, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, failed.Status)
	assert.Equal(t, 1, failed.RetryCount)
	assert.True(t, failed.IsRetryable())

	// a failed-but-retryable job is claimable again; the retry budget only
	// moves when the attempt actually fails
	reclaimed, err := svc.ClaimNextJob(ctx, "w2", nil)
	require.NoError(t, err)
	assert.Equal(t, job.ID, reclaimed.ID)
	assert.Equal(t, 1, reclaimed.RetryCount)

	require.NoError(t, svc.FailJobWithDetails(ctx, job.ID, models.ErrorTypeTransient,
		"llm_timeout", "context deadline exceeded", ""))

	exhausted, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPermanentlyFailed, exhausted.Status)
	assert.NotNil(t, exhausted.CompletedAt)

	_, err = svc.ClaimNextJob(ctx, "w1", nil)
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}

func TestMaxRetriesBoundsTotalAttempts(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"}, WithMaxRetries(3))
	require.NoError(t, err)

	// every attempt up to the budget gets claimed and failed exactly once
	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := svc.ClaimNextJob(ctx, "w1", nil)
		require.NoError(t, err, "attempt %d should be claimable", attempt)
		require.Equal(t, job.ID, claimed.ID)
		assert.Equal(t, attempt-1, claimed.RetryCount)

		require.NoError(t, svc.FailJobWithDetails(ctx, job.ID, models.ErrorTypeTransient,
			"llm_timeout", "context deadline exceeded", ""))

		current, err := svc.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, attempt, current.RetryCount)
	}

	exhausted, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPermanentlyFailed, exhausted.Status)
	assert.Equal(t, 3, exhausted.RetryCount)

	_, err = svc.ClaimNextJob(ctx, "w1", nil)
	assert.ErrorIs(t, err, ErrNoJobsAvailable)
}

func TestNonRetryableErrorFailsPermanently(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"})
	require.NoError(t, err)
	_, err = svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)

	require.NoError(t, svc.FailJobWithDetails(ctx, job.ID, models.ErrorTypeMalformedInput,
		"bad_vtt", "missing WEBVTT header", ""))

	failed, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPermanentlyFailed, failed.Status)
	assert.Equal(t, string(models.ErrorTypeMalformedInput), failed.ErrorType)
}

func TestGetJobForEpisode(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	created, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-42"})
	require.NoError(t, err)

	found, err := svc.GetJobForEpisode(ctx, "ep-42")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.GetJobForEpisode(ctx, "ep-missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestUpdateProgressRequiresProcessing(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"})
	require.NoError(t, err)

	// pending jobs have no progress to report
	assert.ErrorIs(t, svc.UpdateProgress(ctx, job.ID, 50), ErrJobNotFound)

	_, err = svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateProgress(ctx, job.ID, 50))

	current, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, current.Progress)
}

func TestReleaseJobReturnsToPending(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"})
	require.NoError(t, err)
	_, err = svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)

	require.NoError(t, svc.ReleaseJob(ctx, job.ID))

	released, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, released.Status)
	assert.Empty(t, released.WorkerID)
	assert.Equal(t, 0, released.RetryCount)
}

func TestCleanupOldJobs(t *testing.T) {
	svc, db := testService(t)
	ctx := context.Background()

	old, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-old"})
	require.NoError(t, err)
	claimed, err := svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)
	require.NoError(t, svc.CompleteJob(ctx, claimed.ID, nil))

	pending, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-pending"})
	require.NoError(t, err)

	// backdate both past the retention window
	cutoff := time.Now().AddDate(0, 0, -30)
	require.NoError(t, db.Model(&models.Job{}).
		Where("id IN ?", []uint{old.ID, pending.ID}).
		Update("created_at", cutoff).Error)

	deleted, err := svc.CleanupOldJobs(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	// pending work is never garbage collected
	_, err = svc.GetJob(ctx, pending.ID)
	require.NoError(t, err)
	_, err = svc.GetJob(ctx, old.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = svc.CleanupOldJobs(ctx, 0)
	require.Error(t, err)
}

func TestFailJobWrapsPlainErrors(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	job, err := svc.EnqueueJob(ctx, models.JobTypeEpisodeProcess,
		models.JobPayload{"episode_id": "ep-1"}, WithMaxRetries(5))
	require.NoError(t, err)
	_, err = svc.ClaimNextJob(ctx, "w1", nil)
	require.NoError(t, err)

	require.NoError(t, svc.FailJob(ctx, job.ID, errors.New("disk exploded")))

	failed, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	// plain failures classify as system errors, which never retry
	assert.Equal(t, models.JobStatusPermanentlyFailed, failed.Status)
	assert.Equal(t, "disk exploded", failed.Error)
}
