package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/jobs"
	"github.com/killallgit/podgraph/internal/services/pipeline"
	"github.com/killallgit/podgraph/pkg/config"
	"github.com/spf13/cobra"
)

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scan the inbox and enqueue processing jobs",
	Long: `Scan the inbox directory once and enqueue a processing job per
transcript file, without starting workers. Enqueues are unique per file
path, so repeated runs never duplicate work. Run "podgraph process" to
work the queue.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().String("podcast", "", "podcast ID to attribute scanned transcripts to")
	ingestCmd.Flags().String("priority", "normal", "job priority (low, normal, high, critical)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	podcastID, _ := cmd.Flags().GetString("podcast")
	priorityName, _ := cmd.Flags().GetString("priority")
	priority, err := parsePriority(priorityName)
	if err != nil {
		return err
	}

	systemDB, err := database.Initialize(filepath.Join(cfg.Storage.DataDir, "system.db"), false)
	if err != nil {
		return fmt.Errorf("initializing system database: %w", err)
	}
	defer systemDB.Close()
	if err := systemDB.AutoMigrate(&models.Job{}, &models.Episode{}); err != nil {
		return err
	}

	jobService := jobs.NewService(jobs.NewRepository(systemDB.DB))
	episodes := pipeline.NewEpisodeRepository(systemDB.DB)
	ingestor := pipeline.NewIngestor(cfg.Storage.InputDir, jobService, episodes)

	enqueued, err := ingestor.Scan(cmd.Context(), podcastID, priority)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %d episode jobs from %s\n", enqueued, cfg.Storage.InputDir)
	return nil
}

func parsePriority(name string) (int, error) {
	switch name {
	case "low":
		return models.PriorityLow, nil
	case "normal":
		return models.PriorityNormal, nil
	case "high":
		return models.PriorityHigh, nil
	case "critical":
		return models.PriorityCritical, nil
	default:
		return 0, fmt.Errorf("unknown priority: %s", name)
	}
}
