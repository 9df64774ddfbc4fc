package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredJobErrorWrapsOriginal(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTransientError("network", "call failed", "POST /v1", cause)

	assert.Equal(t, "call failed", err.Error())
	assert.ErrorIs(t, err, cause)

	var structured *StructuredJobError
	require.True(t, errors.As(error(err), &structured))
	assert.Equal(t, ErrorTypeTransient, structured.Type)
	assert.Equal(t, "network", structured.Code)
}

func TestIsRetryableType(t *testing.T) {
	assert.True(t, IsRetryableType(ErrorTypeTransient))
	assert.True(t, IsRetryableType(ErrorTypeRateLimit))
	assert.True(t, IsRetryableType(ErrorTypeResource))

	assert.False(t, IsRetryableType(ErrorTypeMalformedInput))
	assert.False(t, IsRetryableType(ErrorTypeMalformedResponse))
	assert.False(t, IsRetryableType(ErrorTypeConfig))
	assert.False(t, IsRetryableType(ErrorTypeSystem))
}

func TestJobRetryAccounting(t *testing.T) {
	job := &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}
	assert.True(t, job.IsRetryable())
	assert.False(t, job.IsTerminal())

	job.RetryCount = 3
	assert.False(t, job.IsRetryable())
	assert.True(t, job.IsTerminal())

	job.Status = JobStatusPermanentlyFailed
	assert.True(t, job.IsTerminal())
}

func TestJobCanRetryNowBacksOff(t *testing.T) {
	recent := time.Now().Add(-1 * time.Second)
	job := &Job{Status: JobStatusFailed, RetryCount: 2, MaxRetries: 5, LastFailedAt: &recent}

	// 2 retries means a 4x delay multiplier
	assert.False(t, job.CanRetryNow(5*time.Second))
	assert.True(t, job.CanRetryNow(100*time.Millisecond))

	job.LastFailedAt = nil
	assert.True(t, job.CanRetryNow(time.Hour))
}

func TestJobIsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&Job{}).IsExpired(now))
	assert.True(t, (&Job{Deadline: &past}).IsExpired(now))
	assert.False(t, (&Job{Deadline: &future}).IsExpired(now))
}

func TestJobPayloadAccessors(t *testing.T) {
	job := &Job{Payload: JobPayload{"transcript_path": "/inbox/a.vtt", "count": 3.0}}

	path, ok := job.GetPayloadString("transcript_path")
	require.True(t, ok)
	assert.Equal(t, "/inbox/a.vtt", path)

	_, ok = job.GetPayloadString("count")
	assert.False(t, ok)

	_, ok = job.GetPayloadString("missing")
	assert.False(t, ok)

	var empty Job
	_, ok = empty.GetPayloadValue("anything")
	assert.False(t, ok)
}

func TestComputeEpisodeID(t *testing.T) {
	// GUID wins when present
	withGUID := ComputeEpisodeID("guid-123", "Title", "http://a/audio.mp3")
	assert.Equal(t, withGUID, ComputeEpisodeID("guid-123", "Other Title", "http://b/audio.mp3"))

	// Without GUID the title and URL are hashed together
	a := ComputeEpisodeID("", "Title", "http://a/audio.mp3")
	b := ComputeEpisodeID("", "Title", "http://b/audio.mp3")
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ComputeEpisodeID("", "Title", "http://a/audio.mp3"))
	assert.Len(t, a, 16)
}

func TestEpisodeStatusIsTerminal(t *testing.T) {
	assert.True(t, EpisodeStatusCompleted.IsTerminal())
	assert.True(t, EpisodeStatusFailed.IsTerminal())
	assert.False(t, EpisodeStatusStoredNotMoved.IsTerminal())
	assert.False(t, EpisodeStatusNew.IsTerminal())
}
