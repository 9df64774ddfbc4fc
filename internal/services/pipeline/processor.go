package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/registry"
	"github.com/killallgit/podgraph/internal/services/checkpoints"
	"github.com/killallgit/podgraph/internal/services/keys"
	"github.com/killallgit/podgraph/pkg/retry"
	"github.com/killallgit/podgraph/pkg/transcript"
)

// EpisodeProcessor bridges the job queue to the orchestrator. It handles
// episode processing, deferred moves, and checkpoint cleanup jobs.
type EpisodeProcessor struct {
	orchestrator *Orchestrator
	checkpoints  *checkpoints.Manager
}

// NewEpisodeProcessor creates a processor over the orchestrator
func NewEpisodeProcessor(orchestrator *Orchestrator, cp *checkpoints.Manager) *EpisodeProcessor {
	return &EpisodeProcessor{orchestrator: orchestrator, checkpoints: cp}
}

// CanProcess reports which job types this processor handles
func (p *EpisodeProcessor) CanProcess(jobType models.JobType) bool {
	switch jobType {
	case models.JobTypeEpisodeProcess, models.JobTypeEpisodeMove, models.JobTypeCheckpointCleanup:
		return true
	default:
		return false
	}
}

// ProcessJob dispatches one claimed job
func (p *EpisodeProcessor) ProcessJob(ctx context.Context, job *models.Job) error {
	if p.orchestrator.ShuttingDown() {
		return ErrShutdown
	}

	switch job.Type {
	case models.JobTypeEpisodeProcess:
		return p.processEpisode(ctx, job)
	case models.JobTypeEpisodeMove:
		return p.retryMove(ctx, job)
	case models.JobTypeCheckpointCleanup:
		return p.cleanupCheckpoints(ctx, job)
	default:
		return models.NewSystemError("unknown_job_type",
			fmt.Sprintf("no handler for job type %s", job.Type), "", nil)
	}
}

func (p *EpisodeProcessor) processEpisode(ctx context.Context, job *models.Job) error {
	transcriptPath, ok := job.GetPayloadString("transcript_path")
	if !ok {
		return models.NewMalformedInputError("missing_payload",
			"episode job has no transcript_path", "", nil)
	}
	podcastID, _ := job.GetPayloadString("podcast_id")

	if err := p.orchestrator.ProcessEpisode(ctx, podcastID, transcriptPath); err != nil {
		return classifyError(err)
	}
	return nil
}

func (p *EpisodeProcessor) retryMove(ctx context.Context, job *models.Job) error {
	episodeID, ok := job.GetPayloadString("episode_id")
	if !ok {
		return models.NewMalformedInputError("missing_payload",
			"move job has no episode_id", "", nil)
	}
	if err := p.orchestrator.RetryMove(ctx, episodeID); err != nil {
		return classifyError(err)
	}
	return nil
}

func (p *EpisodeProcessor) cleanupCheckpoints(ctx context.Context, job *models.Job) error {
	days := 7
	if v, ok := job.GetPayloadValue("retention_days"); ok {
		if f, isFloat := v.(float64); isFloat && f > 0 {
			days = int(f)
		}
	}
	if _, err := p.checkpoints.CleanOldCheckpoints(days); err != nil {
		return classifyError(err)
	}
	return nil
}

// classifyError maps component errors onto the job error taxonomy so the
// queue can decide retry vs permanent failure
func classifyError(err error) error {
	var structured *models.StructuredJobError
	if errors.As(err, &structured) {
		return err
	}

	switch {
	case errors.Is(err, transcript.ErrMalformedTranscript):
		return models.NewMalformedInputError("malformed_transcript", err.Error(), "", err)
	case errors.Is(err, registry.ErrPodcastNotFound), errors.Is(err, registry.ErrNoPodcastContext):
		return &models.StructuredJobError{
			Type: models.ErrorTypeConfig, Code: "registry", Message: err.Error(), Original: err,
		}
	case errors.Is(err, keys.ErrNoKeyAvailable):
		return models.NewResourceError("no_key_available", err.Error(), "", err)
	case errors.Is(err, database.ErrAcquireTimeout):
		return models.NewResourceError("pool_timeout", err.Error(), "", err)
	case errors.Is(err, retry.ErrServiceUnavailable):
		return models.NewTransientError("circuit_open", err.Error(), "", err)
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewTransientError("timeout", err.Error(), "", err)
	case errors.Is(err, ErrShutdown), errors.Is(err, context.Canceled):
		return models.NewTransientError("shutdown", err.Error(), "", err)
	default:
		return models.NewSystemError("pipeline", err.Error(), "", err)
	}
}
