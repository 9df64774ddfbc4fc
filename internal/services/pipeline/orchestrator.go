// Package pipeline drives episodes through the staged state machine:
// discover, transcribe, identify_speakers, emit_transcript,
// extract_knowledge, store, move, complete. Every stage is checkpointed, so
// a crash resumes at the first incomplete stage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/renameio/v2"

	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/registry"
	"github.com/killallgit/podgraph/internal/services/checkpoints"
	"github.com/killallgit/podgraph/internal/services/extraction"
	"github.com/killallgit/podgraph/internal/services/graph"
	"github.com/killallgit/podgraph/internal/services/metrics"
	"github.com/killallgit/podgraph/internal/services/speakers"
	"github.com/killallgit/podgraph/pkg/retry"
	"github.com/killallgit/podgraph/pkg/transcript"
)

// ErrShutdown is returned when a stage boundary observes the shutdown flag
var ErrShutdown = errors.New("shutdown requested")

// Transcriber produces a time-coded transcript for an episode. The directory
// driver reads the inbox file; a feed driver would call out to a
// transcription backend.
type Transcriber interface {
	Transcribe(ctx context.Context, transcriptPath string) (string, error)
}

// FileTranscriber reads an already-transcribed inbox file
type FileTranscriber struct{}

func (FileTranscriber) Transcribe(ctx context.Context, transcriptPath string) (string, error) {
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return "", fmt.Errorf("reading transcript %s: %w", transcriptPath, err)
	}
	return string(data), nil
}

// Options configures the orchestrator
type Options struct {
	BatchSize  int
	SkipErrors bool
}

// Orchestrator owns cross-component sequencing for episode processing.
// Every collaborator is passive and invoked only from here.
type Orchestrator struct {
	episodes    EpisodeRepository
	checkpoints *checkpoints.Manager
	parser      *transcript.Parser
	segmenter   *transcript.Segmenter
	writer      *transcript.Writer
	transcriber Transcriber
	identifier  speakers.Identifier
	extractor   extraction.Extractor
	router      *graph.Router
	mover       *Mover
	recorder    *metrics.Recorder
	auditLog    *metrics.AuditLog
	retryer     *retry.Retryer
	registry    *registry.Registry
	opts        Options

	shutdown  atomic.Bool
	closeOnce sync.Once
	closers   []func() error
}

// Deps bundles the orchestrator's collaborators
type Deps struct {
	Episodes    EpisodeRepository
	Checkpoints *checkpoints.Manager
	Parser      *transcript.Parser
	Segmenter   *transcript.Segmenter
	Writer      *transcript.Writer
	Transcriber Transcriber
	Identifier  speakers.Identifier
	Extractor   extraction.Extractor
	Router      *graph.Router
	Mover       *Mover
	Recorder    *metrics.Recorder
	AuditLog    *metrics.AuditLog
	Retryer     *retry.Retryer
	Registry    *registry.Registry
}

// NewOrchestrator wires the pipeline together
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if deps.Transcriber == nil {
		deps.Transcriber = FileTranscriber{}
	}
	return &Orchestrator{
		episodes:    deps.Episodes,
		checkpoints: deps.Checkpoints,
		parser:      deps.Parser,
		segmenter:   deps.Segmenter,
		writer:      deps.Writer,
		transcriber: deps.Transcriber,
		identifier:  deps.Identifier,
		extractor:   deps.Extractor,
		router:      deps.Router,
		mover:       deps.Mover,
		recorder:    deps.Recorder,
		auditLog:    deps.AuditLog,
		retryer:     deps.Retryer,
		registry:    deps.Registry,
		opts:        opts,
	}
}

// RegisterCloser adds a cleanup function; Close runs them in LIFO order
func (o *Orchestrator) RegisterCloser(fn func() error) {
	o.closers = append(o.closers, fn)
}

// RequestShutdown sets the shutdown flag observed at every stage boundary.
// Running stages finish; queued work is not started.
func (o *Orchestrator) RequestShutdown() {
	o.shutdown.Store(true)
}

// ShuttingDown reports whether shutdown was requested
func (o *Orchestrator) ShuttingDown() bool {
	return o.shutdown.Load()
}

// Close runs registered cleanup in LIFO order. Idempotent.
func (o *Orchestrator) Close() error {
	var firstErr error
	o.closeOnce.Do(func() {
		for i := len(o.closers) - 1; i >= 0; i-- {
			if err := o.closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

// identifyPayload is the identify_speakers checkpoint body
type identifyPayload struct {
	Names      map[string]string             `json:"names"`
	Confidence map[string]float64            `json:"confidence"`
	Sources    map[string]models.AuditSource `json:"sources"`
	Audits     []models.SpeakerAudit         `json:"audits"`
}

// ProcessEpisode drives one transcript file through every stage. Stages
// already checkpointed are skipped; the shutdown flag is observed between
// stages.
func (o *Orchestrator) ProcessEpisode(ctx context.Context, podcastID, transcriptPath string) error {
	episode, err := o.stageDiscover(ctx, podcastID, transcriptPath)
	if err != nil {
		return err
	}

	// a stale checkpoint set means restart, not resume
	if o.checkpoints.IsExpired(episode.EpisodeID) {
		log.Printf("[DEBUG] Checkpoints for episode %s expired, restarting from scratch", episode.EpisodeID)
		if err := o.checkpoints.RemoveEpisode(episode.EpisodeID); err != nil {
			return fmt.Errorf("clearing expired checkpoints: %w", err)
		}
	}

	if err := o.checkShutdown(ctx); err != nil {
		return err
	}

	content, err := o.stageTranscribe(ctx, episode, transcriptPath)
	if err != nil {
		return o.failEpisode(ctx, episode, err)
	}

	parsed, err := o.parser.Parse(content)
	if err != nil {
		return o.failEpisode(ctx, episode, err)
	}
	segments := o.segmenter.Process(parsed.Segments)

	if err := o.checkShutdown(ctx); err != nil {
		return err
	}

	mapping, audits, err := o.stageIdentifySpeakers(ctx, episode, segments)
	if err != nil {
		return o.failEpisode(ctx, episode, err)
	}
	speakers.ApplyMapping(episode.PodcastID, episode.EpisodeID, segments, mapping)

	if err := o.checkShutdown(ctx); err != nil {
		return err
	}

	if err := o.stageEmitTranscript(ctx, episode, parsed.Metadata, segments, transcriptPath); err != nil {
		return o.failEpisode(ctx, episode, err)
	}

	if err := o.checkShutdown(ctx); err != nil {
		return err
	}

	result, err := o.stageExtract(ctx, episode, segments)
	if err != nil {
		return o.failEpisode(ctx, episode, err)
	}

	if err := o.checkShutdown(ctx); err != nil {
		return err
	}

	if err := o.stageStore(ctx, episode, segments, result, audits); err != nil {
		return o.failEpisode(ctx, episode, err)
	}

	moved, err := o.stageMove(ctx, episode, transcriptPath)
	if err != nil {
		return o.failEpisode(ctx, episode, err)
	}
	if !moved {
		// storage stands; the mover retries on next start
		return nil
	}

	return o.stageComplete(ctx, episode)
}

func (o *Orchestrator) checkShutdown(ctx context.Context) error {
	if o.ShuttingDown() {
		return ErrShutdown
	}
	return ctx.Err()
}

func (o *Orchestrator) failEpisode(ctx context.Context, episode *models.Episode, cause error) error {
	if errors.Is(cause, ErrShutdown) || errors.Is(cause, context.Canceled) {
		return cause
	}
	if err := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusFailed, cause.Error()); err != nil {
		log.Printf("[ERROR] Recording failure for episode %s: %v", episode.EpisodeID, err)
	}
	o.recorder.Observe(episode.PodcastID, metrics.Counters{EpisodesFailed: 1})
	return cause
}

// stageDiscover resolves the episode identity from the transcript file and
// registers it in the system database
func (o *Orchestrator) stageDiscover(ctx context.Context, podcastID, transcriptPath string) (*models.Episode, error) {
	data, err := os.ReadFile(transcriptPath)
	if err != nil {
		return nil, fmt.Errorf("reading transcript %s: %w", transcriptPath, err)
	}

	parsed, err := o.parser.Parse(string(data))
	if err != nil {
		return nil, err
	}

	meta := parsed.Metadata
	title := transcriptPath
	youtubeURL := ""
	if meta != nil {
		if meta.EpisodeTitle != "" {
			title = meta.EpisodeTitle
		}
		if meta.PodcastID != "" {
			podcastID = meta.PodcastID
		}
		youtubeURL = meta.YouTubeURL
	}

	episodeID := ""
	if meta != nil && meta.EpisodeID != "" {
		episodeID = meta.EpisodeID
	} else {
		episodeID = models.ComputeEpisodeID("", title, transcriptPath)
	}

	if _, err := o.registry.Get(podcastID); err != nil {
		return nil, err
	}

	episode := &models.Episode{
		EpisodeID:      episodeID,
		PodcastID:      podcastID,
		Title:          title,
		YouTubeURL:     youtubeURL,
		Status:         models.EpisodeStatusDiscovered,
		TranscriptPath: transcriptPath,
	}
	if err := o.episodes.Upsert(ctx, episode); err != nil {
		return nil, err
	}

	if !o.checkpoints.IsStageComplete(episodeID, models.StageDiscover) {
		payload, err := json.Marshal(episode)
		if err != nil {
			return nil, fmt.Errorf("marshaling episode: %w", err)
		}
		if err := o.checkpoints.SaveEpisodeProgress(episodeID, models.StageDiscover, payload); err != nil {
			return nil, err
		}
	}

	return episode, nil
}

// stageTranscribe obtains the raw transcript content, from the checkpoint
// when present
func (o *Orchestrator) stageTranscribe(ctx context.Context, episode *models.Episode, transcriptPath string) (string, error) {
	if payload, err := o.checkpoints.LoadEpisodeProgress(episode.EpisodeID, models.StageTranscribe); err != nil {
		return "", err
	} else if payload != nil {
		log.Printf("[DEBUG] Episode %s: transcribe checkpoint hit", episode.EpisodeID)
		return string(payload), nil
	}

	if err := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusTranscribing, ""); err != nil {
		return "", err
	}

	content, err := o.transcriber.Transcribe(ctx, transcriptPath)
	if err != nil {
		return "", err
	}

	if err := o.checkpoints.SaveEpisodeProgress(episode.EpisodeID, models.StageTranscribe, []byte(content)); err != nil {
		return "", err
	}
	if err := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusTranscribed, ""); err != nil {
		return "", err
	}
	return content, nil
}

func (o *Orchestrator) stageIdentifySpeakers(ctx context.Context, episode *models.Episode, segments []models.Segment) (speakers.Mapping, []models.SpeakerAudit, error) {
	if payload, err := o.checkpoints.LoadEpisodeProgress(episode.EpisodeID, models.StageIdentifySpeakers); err != nil {
		return speakers.Mapping{}, nil, err
	} else if payload != nil {
		var saved identifyPayload
		if err := json.Unmarshal(payload, &saved); err == nil {
			log.Printf("[DEBUG] Episode %s: identify_speakers checkpoint hit", episode.EpisodeID)
			return speakers.Mapping{
				Names:      saved.Names,
				Confidence: saved.Confidence,
				Sources:    saved.Sources,
			}, saved.Audits, nil
		}
	}

	entry, err := o.registry.Get(episode.PodcastID)
	if err != nil {
		return speakers.Mapping{}, nil, err
	}

	var mapping speakers.Mapping
	err = o.retryer.Do(ctx, "identify speakers", func(ctx context.Context) error {
		var idErr error
		mapping, idErr = o.identifier.Identify(ctx, speakers.Request{
			PodcastID:    episode.PodcastID,
			PodcastName:  entry.Name,
			EpisodeID:    episode.EpisodeID,
			EpisodeTitle: episode.Title,
			YouTubeURL:   episode.YouTubeURL,
			Segments:     segments,
		})
		return idErr
	})
	if err != nil {
		return speakers.Mapping{}, nil, err
	}

	// compute the audit records once, before the mapping mutates segments
	preview := make([]models.Segment, len(segments))
	copy(preview, segments)
	audits := speakers.ApplyMapping(episode.PodcastID, episode.EpisodeID, preview, mapping)

	payload, err := json.Marshal(identifyPayload{
		Names:      mapping.Names,
		Confidence: mapping.Confidence,
		Sources:    mapping.Sources,
		Audits:     audits,
	})
	if err != nil {
		return speakers.Mapping{}, nil, fmt.Errorf("marshaling speaker mapping: %w", err)
	}
	if err := o.checkpoints.SaveEpisodeProgress(episode.EpisodeID, models.StageIdentifySpeakers, payload); err != nil {
		return speakers.Mapping{}, nil, err
	}
	if err := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusSpeakersIdentified, ""); err != nil {
		return speakers.Mapping{}, nil, err
	}

	o.recorder.Observe(episode.PodcastID, metrics.Counters{SpeakersIdentified: int64(len(mapping.Names))})
	return mapping, audits, nil
}

// stageEmitTranscript rewrites the transcript file with identified speakers
// and embedded metadata
func (o *Orchestrator) stageEmitTranscript(ctx context.Context, episode *models.Episode, meta *transcript.Metadata, segments []models.Segment, transcriptPath string) error {
	if o.checkpoints.IsStageComplete(episode.EpisodeID, models.StageEmitTranscript) {
		log.Printf("[DEBUG] Episode %s: emit_transcript checkpoint hit", episode.EpisodeID)
		return nil
	}

	if meta == nil {
		meta = &transcript.Metadata{}
	}
	meta.PodcastID = episode.PodcastID
	meta.EpisodeID = episode.EpisodeID
	meta.EpisodeTitle = episode.Title
	if episode.YouTubeURL != "" {
		meta.YouTubeURL = episode.YouTubeURL
	}

	emitted, err := o.writer.Write(&transcript.Transcript{Metadata: meta, Segments: segments})
	if err != nil {
		return err
	}

	if err := renameio.WriteFile(transcriptPath, []byte(emitted), 0644); err != nil {
		return fmt.Errorf("writing final transcript: %w", err)
	}

	if err := o.checkpoints.SaveEpisodeProgress(episode.EpisodeID, models.StageEmitTranscript, []byte(transcriptPath)); err != nil {
		return err
	}
	return o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusTranscriptEmitted, "")
}

// stageExtract runs per-batch knowledge extraction with a checkpoint per
// batch, so a crash resumes after the last extracted batch
func (o *Orchestrator) stageExtract(ctx context.Context, episode *models.Episode, segments []models.Segment) (models.ExtractionResult, error) {
	var result models.ExtractionResult

	if payload, err := o.checkpoints.LoadEpisodeProgress(episode.EpisodeID, models.StageExtractKnowledge); err != nil {
		return result, err
	} else if payload != nil {
		if err := json.Unmarshal(payload, &result); err == nil {
			log.Printf("[DEBUG] Episode %s: extract_knowledge checkpoint hit", episode.EpisodeID)
			return result, nil
		}
	}

	if err := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusExtracting, ""); err != nil {
		return result, err
	}

	entry, err := o.registry.Get(episode.PodcastID)
	if err != nil {
		return result, err
	}

	fullText := (&transcript.Transcript{Segments: segments}).FullText()
	ectx := extraction.EpisodeContext{
		EpisodeID:    episode.EpisodeID,
		PodcastID:    episode.PodcastID,
		PodcastName:  entry.Name,
		EpisodeTitle: episode.Title,
		Transcript:   fullText,
	}

	for start := 0; start < len(segments); start += o.opts.BatchSize {
		if err := o.checkShutdown(ctx); err != nil {
			return result, err
		}

		end := start + o.opts.BatchSize
		if end > len(segments) {
			end = len(segments)
		}
		batch := segments[start:end]

		batchResult, err := o.extractBatch(ctx, episode, batch, start, ectx)
		if err != nil {
			if o.opts.SkipErrors && ctx.Err() == nil {
				log.Printf("[ERROR] Episode %s: skipping batch at segment %d: %v", episode.EpisodeID, start, err)
				continue
			}
			return result, err
		}
		result.Merge(batchResult)
	}

	// insights synthesize over the whole episode, not per batch
	entityContext := summarizeEntities(result.Entities)
	err = o.retryer.Do(ctx, "extract insights", func(ctx context.Context) error {
		insights, exErr := o.extractor.ExtractInsights(ctx, fullText, entityContext, ectx)
		if exErr != nil {
			return exErr
		}
		result.Insights = insights
		return nil
	})
	if err != nil {
		return result, err
	}

	payload, err := json.Marshal(&result)
	if err != nil {
		return result, fmt.Errorf("marshaling extraction result: %w", err)
	}
	if err := o.checkpoints.SaveEpisodeProgress(episode.EpisodeID, models.StageExtractKnowledge, payload); err != nil {
		return result, err
	}
	if err := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusExtracted, ""); err != nil {
		return result, err
	}

	o.recorder.Observe(episode.PodcastID, metrics.Counters{
		Segments:      int64(len(segments)),
		Entities:      int64(len(result.Entities)),
		Relationships: int64(len(result.Relationships)),
		Quotes:        int64(len(result.Quotes)),
		Insights:      int64(len(result.Insights)),
	})
	o.recorder.SetDiscoveredTypes(o.extractor.DiscoveredTypes())
	return result, nil
}

func (o *Orchestrator) extractBatch(ctx context.Context, episode *models.Episode, batch []models.Segment, batchIndex int, ectx extraction.EpisodeContext) (models.ExtractionResult, error) {
	var result models.ExtractionResult

	if payload, err := o.checkpoints.LoadSegmentProgress(episode.EpisodeID, models.StageExtractKnowledge, batchIndex); err != nil {
		return result, err
	} else if payload != nil {
		if err := json.Unmarshal(payload, &result); err == nil {
			return result, nil
		}
	}

	text := (&transcript.Transcript{Segments: batch}).FullText()

	err := o.retryer.Do(ctx, "extract batch", func(ctx context.Context) error {
		entities, exErr := o.extractor.ExtractEntities(ctx, text, ectx)
		if exErr != nil {
			return exErr
		}
		for i := range entities {
			entities[i].SegmentID = batch[0].ID
		}

		relationships, exErr := o.extractor.ExtractRelationships(ctx, text, entities, ectx)
		if exErr != nil {
			return exErr
		}

		quotes, exErr := o.extractor.ExtractQuotes(ctx, batch, ectx)
		if exErr != nil {
			return exErr
		}

		result = models.ExtractionResult{
			Entities:      entities,
			Relationships: relationships,
			Quotes:        quotes,
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	payload, err := json.Marshal(&result)
	if err != nil {
		return result, fmt.Errorf("marshaling batch result: %w", err)
	}
	if err := o.checkpoints.SaveSegmentProgress(episode.EpisodeID, models.StageExtractKnowledge, batchIndex, payload); err != nil {
		return result, err
	}
	return result, nil
}

func (o *Orchestrator) stageStore(ctx context.Context, episode *models.Episode, segments []models.Segment, result models.ExtractionResult, audits []models.SpeakerAudit) error {
	if o.checkpoints.IsStageComplete(episode.EpisodeID, models.StageStore) {
		log.Printf("[DEBUG] Episode %s: store checkpoint hit", episode.EpisodeID)
		return nil
	}

	entry, err := o.registry.Get(episode.PodcastID)
	if err != nil {
		return err
	}

	store, release, err := o.router.For(ctx, episode.PodcastID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := store.StorePodcast(ctx, entry.Name); err != nil {
		return err
	}

	duration := 0.0
	if len(segments) > 0 {
		duration = segments[len(segments)-1].EndTime
	}
	if _, err := store.StoreEpisode(ctx, graph.EpisodeRecord{
		EpisodeID:   episode.EpisodeID,
		Title:       episode.Title,
		Description: episode.Description,
		AudioURL:    episode.AudioURL,
		Duration:    duration,
	}); err != nil {
		return err
	}

	var stats graph.Stats
	segStats, err := store.StoreSegments(ctx, episode.EpisodeID, segments)
	if err != nil {
		return err
	}
	stats.Add(segStats)

	extractStats, err := store.StoreExtraction(ctx, episode.EpisodeID, result)
	if err != nil {
		return err
	}
	stats.Add(extractStats)

	if err := store.StoreAudits(ctx, audits); err != nil {
		return err
	}
	if o.auditLog != nil && len(audits) > 0 {
		if err := o.auditLog.Append(audits...); err != nil {
			log.Printf("[ERROR] Appending audit log for episode %s: %v", episode.EpisodeID, err)
		}
	}

	payload, err := json.Marshal(&stats)
	if err != nil {
		return fmt.Errorf("marshaling store stats: %w", err)
	}
	if err := o.checkpoints.SaveEpisodeProgress(episode.EpisodeID, models.StageStore, payload); err != nil {
		return err
	}
	return o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusStored, "")
}

// stageMove relocates the transcript to the processed directory. A move
// failure leaves storage intact; the episode is durably marked
// stored_not_moved so the mover retries on next start.
func (o *Orchestrator) stageMove(ctx context.Context, episode *models.Episode, transcriptPath string) (bool, error) {
	if o.checkpoints.IsStageComplete(episode.EpisodeID, models.StageMove) {
		log.Printf("[DEBUG] Episode %s: move checkpoint hit", episode.EpisodeID)
		return true, nil
	}

	target, err := o.mover.Move(transcriptPath)
	if err != nil {
		log.Printf("[ERROR] Moving transcript for episode %s: %v", episode.EpisodeID, err)
		if statusErr := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusStoredNotMoved, err.Error()); statusErr != nil {
			return false, statusErr
		}
		return false, nil
	}

	if err := o.episodes.Upsert(ctx, &models.Episode{
		EpisodeID:      episode.EpisodeID,
		PodcastID:      episode.PodcastID,
		Title:          episode.Title,
		TranscriptPath: transcriptPath,
		ProcessedPath:  target,
	}); err != nil {
		return false, err
	}
	if err := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusMoved, ""); err != nil {
		return false, err
	}

	if err := o.checkpoints.SaveEpisodeProgress(episode.EpisodeID, models.StageMove, []byte(target)); err != nil {
		return false, err
	}
	return true, nil
}

func (o *Orchestrator) stageComplete(ctx context.Context, episode *models.Episode) error {
	if !o.checkpoints.IsStageComplete(episode.EpisodeID, models.StageComplete) {
		if err := o.checkpoints.SaveEpisodeProgress(episode.EpisodeID, models.StageComplete, []byte("done")); err != nil {
			return err
		}
	}
	if err := o.episodes.SetStatus(ctx, episode.EpisodeID, models.EpisodeStatusCompleted, ""); err != nil {
		return err
	}
	o.recorder.Observe(episode.PodcastID, metrics.Counters{EpisodesProcessed: 1})
	log.Printf("[DEBUG] Episode %s completed", episode.EpisodeID)
	return nil
}

// RetryMove re-attempts the move for an episode stuck in stored_not_moved
func (o *Orchestrator) RetryMove(ctx context.Context, episodeID string) error {
	episode, err := o.episodes.Get(ctx, episodeID)
	if err != nil {
		return err
	}

	moved, err := o.stageMove(ctx, episode, episode.TranscriptPath)
	if err != nil {
		return err
	}
	if !moved {
		return fmt.Errorf("move retry failed for episode %s", episodeID)
	}
	return o.stageComplete(ctx, episode)
}

func summarizeEntities(entities []models.Entity) string {
	if len(entities) == 0 {
		return ""
	}
	names := make([]string, 0, len(entities))
	for i, ent := range entities {
		if i >= 25 {
			break
		}
		names = append(names, ent.Name)
	}
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}
