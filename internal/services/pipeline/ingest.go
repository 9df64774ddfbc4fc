package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/jobs"
)

// Ingestor scans the inbox directory and enqueues one processing job per
// transcript file. Enqueues are unique per path, so repeated scans are safe.
type Ingestor struct {
	inputDir   string
	jobService jobs.Service
	episodes   EpisodeRepository
}

// NewIngestor creates an ingestor over the inbox directory
func NewIngestor(inputDir string, jobService jobs.Service, episodes EpisodeRepository) *Ingestor {
	return &Ingestor{inputDir: inputDir, jobService: jobService, episodes: episodes}
}

// Scan walks the inbox and enqueues a job per .vtt file. Returns the number
// of jobs enqueued.
func (ing *Ingestor) Scan(ctx context.Context, podcastID string, priority int) (int, error) {
	enqueued := 0
	err := filepath.WalkDir(ing.inputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".vtt") {
			return nil
		}

		payload := models.JobPayload{
			"transcript_path": path,
			"podcast_id":      podcastID,
		}
		_, jobErr := ing.jobService.EnqueueUniqueJob(ctx, models.JobTypeEpisodeProcess, payload,
			"transcript_path", jobs.WithPriority(priority))
		if jobErr != nil {
			return fmt.Errorf("enqueueing %s: %w", path, jobErr)
		}
		enqueued++
		return nil
	})
	if err != nil {
		return enqueued, fmt.Errorf("scanning inbox %s: %w", ing.inputDir, err)
	}

	log.Printf("[DEBUG] Ingest scan enqueued %d episode jobs from %s", enqueued, ing.inputDir)
	return enqueued, nil
}

// Recover re-enqueues deferred work on startup: episodes stuck in
// stored_not_moved get a move job, and incomplete checkpointed episodes are
// reported for visibility. Episode jobs themselves resume through their
// checkpoints when the inbox is rescanned.
func (ing *Ingestor) Recover(ctx context.Context, incomplete []string) error {
	stuck, err := ing.episodes.ListByStatus(ctx, models.EpisodeStatusStoredNotMoved)
	if err != nil {
		return err
	}
	for _, episode := range stuck {
		payload := models.JobPayload{"episode_id": episode.EpisodeID}
		if _, err := ing.jobService.EnqueueUniqueJob(ctx, models.JobTypeEpisodeMove, payload,
			"episode_id", jobs.WithPriority(models.PriorityHigh)); err != nil {
			return fmt.Errorf("enqueueing move retry for %s: %w", episode.EpisodeID, err)
		}
		log.Printf("[DEBUG] Enqueued deferred move for episode %s", episode.EpisodeID)
	}

	if len(incomplete) > 0 {
		log.Printf("[DEBUG] %d episodes have incomplete checkpoints and will resume on next scan", len(incomplete))
	}
	return nil
}
