package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/registry"
	"github.com/killallgit/podgraph/internal/services/checkpoints"
	"github.com/killallgit/podgraph/internal/services/extraction"
	"github.com/killallgit/podgraph/internal/services/graph"
	"github.com/killallgit/podgraph/internal/services/jobs"
	"github.com/killallgit/podgraph/internal/services/keys"
	"github.com/killallgit/podgraph/internal/services/llm"
	"github.com/killallgit/podgraph/internal/services/metrics"
	"github.com/killallgit/podgraph/internal/services/pipeline"
	"github.com/killallgit/podgraph/internal/services/speakers"
	"github.com/killallgit/podgraph/internal/services/workers"
	"github.com/killallgit/podgraph/pkg/config"
	"github.com/killallgit/podgraph/pkg/locks"
	"github.com/killallgit/podgraph/pkg/retry"
	"github.com/killallgit/podgraph/pkg/transcript"
	"github.com/spf13/cobra"
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the transcript processing pipeline",
	Long: `Start the worker pool and process transcripts from the inbox directory.

The inbox is scanned at startup and then on an interval; every transcript
file becomes a queued job. Workers claim jobs, run the per-episode pipeline,
and move finished transcripts to the processed directory. SIGINT and SIGTERM
trigger a graceful shutdown: running stages finish and checkpoint, queued
work stays queued.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().String("podcast", "", "podcast ID to attribute scanned transcripts to")
	processCmd.Flags().Duration("rescan", 30*time.Second, "inbox rescan interval (0 disables rescanning)")
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	podcastID, _ := cmd.Flags().GetString("podcast")
	rescan, _ := cmd.Flags().GetDuration("rescan")

	for _, dir := range []string{cfg.Storage.DataDir, cfg.Storage.InputDir, cfg.Storage.ProcessedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	tracker := locks.NewTracker(cfg.Locks.HoldWarning)
	tracker.Start(cfg.Locks.ScanInterval)
	defer tracker.Stop()

	systemDB, err := database.Initialize(filepath.Join(cfg.Storage.DataDir, "system.db"), cfg.Environment == "development")
	if err != nil {
		return fmt.Errorf("initializing system database: %w", err)
	}
	defer systemDB.Close()
	if err := systemDB.AutoMigrate(&models.Job{}, &models.Episode{}); err != nil {
		return err
	}

	reg, err := registry.Load(cfg.Podcast.ConfigPath, cfg.Podcast.Isolation)
	if err != nil {
		return fmt.Errorf("loading podcast registry: %w", err)
	}

	limiter := retry.NewRateLimiter(cfg.RateLimiting.Rate, cfg.RateLimiting.Burst)
	breaker := retry.NewBreaker("gemini", retry.BreakerOptions{
		FailureThreshold: cfg.RateLimiting.FailureThreshold,
		RecoveryTimeout:  cfg.RateLimiting.RecoveryTimeout,
	})
	backoff := retry.DefaultBackoff()
	if cfg.Processing.RetryDelay > 0 {
		backoff.Base = cfg.Processing.RetryDelay
	}
	retryer := retry.NewRetryer(retry.Options{
		MaxAttempts: cfg.Processing.RetryAttempts,
		Backoff:     backoff,
	})

	recorder := metrics.NewRecorder(cfg.Metrics.Path)
	recorder.Start(cfg.Metrics.FlushInterval)

	var llmClient llm.Client
	var keyManager keys.Manager
	if cfg.Gemini.UseMock {
		log.Printf("[DEBUG] Using mock LLM client")
		llmClient = llm.NewMockClient()
	} else {
		limits := make(map[string]models.ModelLimits, len(cfg.Keys.Limits))
		for name, spec := range cfg.Keys.Limits {
			limits[name] = models.ModelLimits{RPM: spec.RPM, TPM: spec.TPM, RPD: spec.RPD, TPD: spec.TPD}
		}
		keyManager, err = keys.NewManager(config.APIKeys(), keys.Options{
			StatePath:              cfg.Keys.StatePath,
			MaxConsecutiveFailures: cfg.Keys.MaxConsecutiveFailures,
			Limits:                 limits,
		})
		if err != nil {
			return fmt.Errorf("initializing key manager: %w", err)
		}
		provider := llm.NewGeminiProvider(llm.GeminiOptions{
			BaseURL: cfg.Gemini.BaseURL,
			Timeout: cfg.Gemini.Timeout,
		})
		llmClient = llm.NewClient(provider, keyManager, llm.ClientOptions{
			Limiter: limiter,
			Breaker: breaker,
			Usage:   recorder,
		})
	}
	cacheManager := llm.NewCacheManager(llmClient, cfg.Extraction.CacheTTL, cfg.Extraction.MinTranscriptSizeForCache, recorder)

	manager := database.NewManager(database.ManagerOptions{
		DataDir:        cfg.Storage.DataDir,
		MaxConnections: cfg.Graph.MaxConnections,
		MinConnections: cfg.Graph.MinConnections,
		AcquireTimeout: cfg.Graph.AcquireTimeout,
	})

	migrationLog, err := os.OpenFile(filepath.Join(cfg.Storage.DataDir, "migration.log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening migration log: %w", err)
	}
	router := graph.NewRouter(reg, manager, graph.RouterOptions{
		SchemaMode:   cfg.Graph.SchemaMode,
		Migration:    cfg.Graph.MigrationMode,
		MigrationLog: log.New(migrationLog, "", log.LstdFlags),
	})

	cpManager, err := checkpoints.NewManager(checkpoints.Options{
		Dir:               cfg.Checkpoints.Dir,
		CompressThreshold: cfg.Checkpoints.CompressThreshold,
		MaxAge:            cfg.Checkpoints.MaxAge,
		Distributed:       cfg.Checkpoints.Distributed,
		Tracker:           tracker,
	})
	if err != nil {
		return fmt.Errorf("initializing checkpoint manager: %w", err)
	}

	extractor := extraction.NewExtractor(llmClient, cacheManager, extraction.Options{
		SchemaMode:            cfg.Graph.SchemaMode,
		Model:                 cfg.Gemini.Model,
		Temperature:           cfg.Gemini.Temperature,
		MaxEntitiesPerSegment: cfg.Extraction.MaxEntitiesPerSegment,
		MinInsightLength:      cfg.Extraction.MinInsightLength,
		MinQuoteLength:        cfg.Extraction.MinQuoteLength,
	})
	identifier := speakers.NewIdentifier(llmClient, speakers.NewHTTPChannelFetcher(0), speakers.Options{
		Model:               cfg.Gemini.Model,
		ConfidenceThreshold: cfg.Speakers.ConfidenceThreshold,
	})

	auditLog, err := metrics.OpenAuditLog(cfg.Metrics.AuditLogPath)
	if err != nil {
		return fmt.Errorf("opening speaker audit log: %w", err)
	}

	episodes := pipeline.NewEpisodeRepository(systemDB.DB)
	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Episodes:    episodes,
		Checkpoints: cpManager,
		Parser:      transcript.NewParser(),
		Segmenter:   transcript.NewSegmenter(cfg.Transcript.MinSegmentDuration),
		Writer:      transcript.NewWriter(),
		Identifier:  identifier,
		Extractor:   extractor,
		Router:      router,
		Mover:       pipeline.NewMover(cfg.Storage.InputDir, cfg.Storage.ProcessedDir),
		Recorder:    recorder,
		AuditLog:    auditLog,
		Retryer:     retryer,
		Registry:    reg,
	}, pipeline.Options{
		BatchSize:  cfg.Extraction.BatchSize,
		SkipErrors: cfg.Processing.SkipErrors,
	})

	// LIFO: the recorder's final flush runs last
	orchestrator.RegisterCloser(func() error { recorder.Stop(); return nil })
	if keyManager != nil {
		orchestrator.RegisterCloser(keyManager.Close)
	}
	orchestrator.RegisterCloser(manager.Close)
	orchestrator.RegisterCloser(auditLog.Close)
	orchestrator.RegisterCloser(migrationLog.Close)
	orchestrator.RegisterCloser(llmClient.Close)

	jobService := jobs.NewService(jobs.NewRepository(systemDB.DB))
	pool := workers.NewWorkerPool(jobService, cfg.Processing.Workers, cfg.Processing.PollInterval)
	pool.RegisterProcessor(pipeline.NewEpisodeProcessor(orchestrator, cpManager))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if removed, err := jobService.CleanupOldJobs(ctx, cfg.Processing.JobRetentionDays); err != nil {
		log.Printf("[ERROR] Cleaning up old jobs: %v", err)
	} else if removed > 0 {
		log.Printf("[DEBUG] Removed %d old jobs", removed)
	}
	if _, err := jobService.EnqueueUniqueJob(ctx, models.JobTypeCheckpointCleanup,
		models.JobPayload{"retention_days": cfg.Checkpoints.RetentionDays},
		"retention_days", jobs.WithPriority(models.PriorityLow)); err != nil {
		log.Printf("[ERROR] Enqueueing checkpoint cleanup: %v", err)
	}

	ingestor := pipeline.NewIngestor(cfg.Storage.InputDir, jobService, episodes)
	incomplete, err := cpManager.GetIncompleteEpisodes()
	if err != nil {
		log.Printf("[ERROR] Listing incomplete episodes: %v", err)
	}
	if err := ingestor.Recover(ctx, incomplete); err != nil {
		return fmt.Errorf("recovering deferred work: %w", err)
	}
	if _, err := ingestor.Scan(ctx, podcastID, models.PriorityNormal); err != nil {
		return fmt.Errorf("scanning inbox: %w", err)
	}

	if err := pool.Start(ctx); err != nil {
		return err
	}

	if rescan > 0 {
		go func() {
			ticker := time.NewTicker(rescan)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := ingestor.Scan(ctx, podcastID, models.PriorityNormal); err != nil {
						log.Printf("[ERROR] Inbox rescan: %v", err)
					}
				}
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	sig := <-stop
	log.Printf("Received signal %v, shutting down gracefully", sig)

	orchestrator.RequestShutdown()
	pool.Stop()
	cancel()
	if err := orchestrator.Close(); err != nil {
		log.Printf("[ERROR] Shutdown cleanup: %v", err)
	}

	if sig == os.Interrupt {
		// conventional exit code for interrupted runs
		os.Exit(130)
	}
	return nil
}
