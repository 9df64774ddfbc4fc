package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/registry"
	"github.com/killallgit/podgraph/internal/services/checkpoints"
	"github.com/killallgit/podgraph/internal/services/keys"
	"github.com/killallgit/podgraph/pkg/retry"
	"github.com/killallgit/podgraph/pkg/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.JobErrorType
	}{
		{"malformed transcript", fmt.Errorf("parsing: %w", transcript.ErrMalformedTranscript), models.ErrorTypeMalformedInput},
		{"unknown podcast", registry.ErrPodcastNotFound, models.ErrorTypeConfig},
		{"missing podcast context", registry.ErrNoPodcastContext, models.ErrorTypeConfig},
		{"key exhaustion", fmt.Errorf("llm: %w", keys.ErrNoKeyAvailable), models.ErrorTypeResource},
		{"pool timeout", database.ErrAcquireTimeout, models.ErrorTypeResource},
		{"circuit open", retry.ErrServiceUnavailable, models.ErrorTypeTransient},
		{"deadline", context.DeadlineExceeded, models.ErrorTypeTransient},
		{"shutdown", ErrShutdown, models.ErrorTypeTransient},
		{"cancellation", context.Canceled, models.ErrorTypeTransient},
		{"anything else", errors.New("invariant violated"), models.ErrorTypeSystem},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyError(tt.err)

			var structured *models.StructuredJobError
			require.ErrorAs(t, classified, &structured)
			assert.Equal(t, tt.want, structured.Type)
			// the original error stays reachable for callers
			assert.ErrorIs(t, classified, tt.err)
		})
	}
}

func TestEpisodeProcessorCanProcess(t *testing.T) {
	p := NewEpisodeProcessor(nil, nil)

	assert.True(t, p.CanProcess(models.JobTypeEpisodeProcess))
	assert.True(t, p.CanProcess(models.JobTypeEpisodeMove))
	assert.True(t, p.CanProcess(models.JobTypeCheckpointCleanup))
	assert.False(t, p.CanProcess(models.JobType("video_transcode")))
}

func TestProcessEpisodeRequiresTranscriptPath(t *testing.T) {
	p := NewEpisodeProcessor(nil, nil)

	err := p.processEpisode(context.Background(), &models.Job{
		Type:    models.JobTypeEpisodeProcess,
		Payload: models.JobPayload{"podcast_id": "acquired"},
	})

	var structured *models.StructuredJobError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, models.ErrorTypeMalformedInput, structured.Type)
	assert.Equal(t, "missing_payload", structured.Code)
}

func TestRetryMoveRequiresEpisodeID(t *testing.T) {
	p := NewEpisodeProcessor(nil, nil)

	err := p.retryMove(context.Background(), &models.Job{
		Type:    models.JobTypeEpisodeMove,
		Payload: models.JobPayload{},
	})

	var structured *models.StructuredJobError
	require.ErrorAs(t, err, &structured)
	assert.Equal(t, models.ErrorTypeMalformedInput, structured.Type)
}

func TestCleanupCheckpointsRetentionPayload(t *testing.T) {
	cp, err := checkpoints.NewManager(checkpoints.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	p := NewEpisodeProcessor(nil, cp)

	// JSON numbers arrive as float64 after payload round trips
	require.NoError(t, p.cleanupCheckpoints(context.Background(), &models.Job{
		Type:    models.JobTypeCheckpointCleanup,
		Payload: models.JobPayload{"retention_days": float64(3)},
	}))

	// missing or mistyped retention falls back to the default
	require.NoError(t, p.cleanupCheckpoints(context.Background(), &models.Job{
		Type:    models.JobTypeCheckpointCleanup,
		Payload: models.JobPayload{"retention_days": "three"},
	}))
}

func TestClassifyErrorKeepsStructuredErrors(t *testing.T) {
	original := models.NewRateLimitError("429", "too many requests", "", nil)

	classified := classifyError(fmt.Errorf("stage failed: %w", original))

	var structured *models.StructuredJobError
	require.ErrorAs(t, classified, &structured)
	assert.Equal(t, models.ErrorTypeRateLimit, structured.Type)
	assert.Equal(t, "429", structured.Code)
}
