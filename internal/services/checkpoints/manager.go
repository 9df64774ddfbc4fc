// Package checkpoints makes each pipeline stage idempotent and resumable
// across crashes. Checkpoints are written atomically (temp + fsync + rename)
// with a sidecar metadata JSON carrying version, size, and checksum.
package checkpoints

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/pkg/locks"
)

const (
	episodesDir = "episodes"
	metadataDir = "metadata"
	segmentsDir = "segments"

	ckptExt   = ".ckpt"
	gzExt     = ".gz"
	lockFile  = "checkpoints.lock"
)

// Options configures the checkpoint manager
type Options struct {
	Dir string
	// CompressThreshold is the payload size in bytes above which checkpoints
	// are gzipped.
	CompressThreshold int
	// MaxAge is the staleness threshold; episodes whose newest checkpoint is
	// older restart from the beginning.
	MaxAge time.Duration
	// Distributed guards writes with an advisory file lock.
	Distributed bool
	Tracker     *locks.Tracker
}

// Manager owns the checkpoint directory. The orchestrator reads and requests
// writes but never touches checkpoint files directly.
type Manager struct {
	opts Options
	lock *locks.FileLock
}

// NewManager creates the directory layout and returns a manager
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("checkpoint directory must be set")
	}
	if opts.CompressThreshold <= 0 {
		opts.CompressThreshold = 4096
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 24 * time.Hour
	}

	for _, sub := range []string{episodesDir, metadataDir, segmentsDir} {
		if err := os.MkdirAll(filepath.Join(opts.Dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("creating checkpoint directory %s: %w", sub, err)
		}
	}

	m := &Manager{opts: opts}
	if opts.Distributed {
		m.lock = locks.NewFileLock(filepath.Join(opts.Dir, lockFile), opts.Tracker)
	}
	return m, nil
}

// SaveEpisodeProgress persists a stage payload for an episode
func (m *Manager) SaveEpisodeProgress(episodeID string, stage models.Stage, payload []byte) error {
	return m.save(m.episodePath(episodeID, stage), episodeID, stage, payload)
}

// SaveSegmentProgress persists a per-segment payload within a stage
func (m *Manager) SaveSegmentProgress(episodeID string, stage models.Stage, segmentIndex int, payload []byte) error {
	return m.save(m.segmentPath(episodeID, stage, segmentIndex), episodeID, stage, payload)
}

func (m *Manager) save(base, episodeID string, stage models.Stage, payload []byte) error {
	if m.lock != nil {
		if err := m.lock.Acquire(context.Background(), 30*time.Second); err != nil {
			return err
		}
		defer func() {
			if err := m.lock.Release(); err != nil {
				log.Printf("[ERROR] Releasing checkpoint lock: %v", err)
			}
		}()
	}

	checksum := sha256.Sum256(payload)
	compressed := len(payload) >= m.opts.CompressThreshold

	data := payload
	path := base
	if compressed {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(payload); err != nil {
			return fmt.Errorf("compressing checkpoint: %w", err)
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("compressing checkpoint: %w", err)
		}
		data = buf.Bytes()
		path = base + gzExt
	}

	// Replacing a previously-uncompressed checkpoint with a compressed one
	// (or vice versa) must not leave both forms behind
	if compressed {
		_ = os.Remove(base)
	} else {
		_ = os.Remove(base + gzExt)
	}

	// renameio writes to a temp file, fsyncs, and renames into place
	if err := renameio.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing checkpoint %s: %w", filepath.Base(path), err)
	}

	now := time.Now().UTC()
	meta := models.CheckpointMeta{
		Version:    models.CheckpointVersion,
		EpisodeID:  episodeID,
		Stage:      string(stage),
		CreatedAt:  now,
		UpdatedAt:  now,
		Compressed: compressed,
		SizeBytes:  int64(len(payload)),
		Checksum:   hex.EncodeToString(checksum[:]),
	}
	if existing, err := m.readMeta(episodeID, stage, base); err == nil && existing != nil {
		meta.CreatedAt = existing.CreatedAt
	}

	metaData, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint metadata: %w", err)
	}
	if err := renameio.WriteFile(m.metaPath(base), metaData, 0644); err != nil {
		return fmt.Errorf("writing checkpoint metadata: %w", err)
	}

	return nil
}

// LoadEpisodeProgress reads a stage payload. A missing checkpoint returns
// (nil, nil); a corrupt one is quarantined and also returns (nil, nil).
func (m *Manager) LoadEpisodeProgress(episodeID string, stage models.Stage) ([]byte, error) {
	return m.load(m.episodePath(episodeID, stage))
}

// LoadSegmentProgress reads a per-segment payload
func (m *Manager) LoadSegmentProgress(episodeID string, stage models.Stage, segmentIndex int) ([]byte, error) {
	return m.load(m.segmentPath(episodeID, stage, segmentIndex))
}

func (m *Manager) load(base string) ([]byte, error) {
	path := base
	compressed := false

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		path = base + gzExt
		compressed = true
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading checkpoint: %w", err)
	}

	payload := data
	if compressed {
		gz, gzErr := gzip.NewReader(bytes.NewReader(data))
		if gzErr != nil {
			m.quarantine(path)
			return nil, nil
		}
		payload, gzErr = io.ReadAll(gz)
		if gzErr != nil {
			m.quarantine(path)
			return nil, nil
		}
	}

	meta, err := m.readMetaByPath(m.metaPath(base))
	if err == nil && meta != nil && meta.Checksum != "" {
		sum := sha256.Sum256(payload)
		if hex.EncodeToString(sum[:]) != meta.Checksum {
			log.Printf("[ERROR] Checksum mismatch for %s, quarantining", filepath.Base(path))
			m.quarantine(path)
			return nil, nil
		}
		payload, err = migrate(meta.Version, payload)
		if err != nil {
			log.Printf("[ERROR] Migration failed for %s: %v", filepath.Base(path), err)
			m.quarantine(path)
			return nil, nil
		}
	}

	return payload, nil
}

// quarantine renames an unreadable checkpoint aside instead of deleting it
func (m *Manager) quarantine(path string) {
	target := filepath.Join(filepath.Dir(path),
		fmt.Sprintf("corrupted_%d_%s", time.Now().Unix(), filepath.Base(path)))
	if err := os.Rename(path, target); err != nil {
		log.Printf("[ERROR] Quarantining %s: %v", path, err)
	}
}

// GetEpisodeCheckpoints enumerates the stages with a checkpoint present
func (m *Manager) GetEpisodeCheckpoints(episodeID string) ([]models.Stage, error) {
	entries, err := os.ReadDir(filepath.Join(m.opts.Dir, episodesDir))
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}

	var stages []models.Stage
	seen := make(map[models.Stage]bool)
	prefix := episodeID + "_"
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) || strings.HasPrefix(name, "corrupted_") {
			continue
		}
		stageName := strings.TrimPrefix(name, prefix)
		stageName = strings.TrimSuffix(stageName, gzExt)
		stageName = strings.TrimSuffix(stageName, ckptExt)
		stage := models.Stage(stageName)
		if !seen[stage] {
			seen[stage] = true
			stages = append(stages, stage)
		}
	}
	return stages, nil
}

// IsStageComplete reports whether a stage checkpoint exists for the episode
func (m *Manager) IsStageComplete(episodeID string, stage models.Stage) bool {
	base := m.episodePath(episodeID, stage)
	if _, err := os.Stat(base); err == nil {
		return true
	}
	if _, err := os.Stat(base + gzExt); err == nil {
		return true
	}
	return false
}

// GetIncompleteEpisodes returns episode IDs that have some stage checkpoints
// but no complete marker
func (m *Manager) GetIncompleteEpisodes() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.opts.Dir, episodesDir))
	if err != nil {
		return nil, fmt.Errorf("listing checkpoints: %w", err)
	}

	stagesByEpisode := make(map[string]map[models.Stage]bool)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "corrupted_") {
			continue
		}
		episodeID, stage, ok := splitCheckpointName(name)
		if !ok {
			continue
		}
		if stagesByEpisode[episodeID] == nil {
			stagesByEpisode[episodeID] = make(map[models.Stage]bool)
		}
		stagesByEpisode[episodeID][stage] = true
	}

	var incomplete []string
	for episodeID, stages := range stagesByEpisode {
		if !stages[models.StageComplete] {
			incomplete = append(incomplete, episodeID)
		}
	}
	return incomplete, nil
}

// IsExpired reports whether the episode's newest checkpoint predates MaxAge.
// Expired episodes restart from the beginning rather than resuming.
func (m *Manager) IsExpired(episodeID string) bool {
	entries, err := os.ReadDir(filepath.Join(m.opts.Dir, episodesDir))
	if err != nil {
		return false
	}

	var newest time.Time
	prefix := episodeID + "_"
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}

	return !newest.IsZero() && time.Since(newest) > m.opts.MaxAge
}

// CleanOldCheckpoints removes checkpoint files older than the given number
// of days based on filesystem mtime. Returns the number of files removed.
func (m *Manager) CleanOldCheckpoints(days int) (int, error) {
	if days <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	removed := 0
	for _, sub := range []string{episodesDir, metadataDir, segmentsDir} {
		dir := filepath.Join(m.opts.Dir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("listing %s: %w", sub, err)
		}
		for _, entry := range entries {
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
					log.Printf("[ERROR] Removing old checkpoint %s: %v", entry.Name(), err)
					continue
				}
				removed++
			}
		}
	}

	if removed > 0 {
		log.Printf("[DEBUG] Removed %d checkpoint files older than %d days", removed, days)
	}
	return removed, nil
}

// RemoveEpisode deletes every checkpoint for an episode (used on restart
// after expiry)
func (m *Manager) RemoveEpisode(episodeID string) error {
	for _, sub := range []string{episodesDir, metadataDir, segmentsDir} {
		dir := filepath.Join(m.opts.Dir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("listing %s: %w", sub, err)
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), episodeID+"_") {
				if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
					return fmt.Errorf("removing %s: %w", entry.Name(), err)
				}
			}
		}
	}
	return nil
}

// Close is part of the pipeline's LIFO cleanup; the manager holds no open
// resources between operations
func (m *Manager) Close() error {
	return nil
}

func (m *Manager) episodePath(episodeID string, stage models.Stage) string {
	return filepath.Join(m.opts.Dir, episodesDir, fmt.Sprintf("%s_%s%s", episodeID, stage, ckptExt))
}

func (m *Manager) segmentPath(episodeID string, stage models.Stage, segmentIndex int) string {
	return filepath.Join(m.opts.Dir, segmentsDir, fmt.Sprintf("%s_%s_%d%s", episodeID, stage, segmentIndex, ckptExt))
}

func (m *Manager) metaPath(base string) string {
	name := strings.TrimSuffix(filepath.Base(base), ckptExt)
	return filepath.Join(m.opts.Dir, metadataDir, name+".json")
}

func (m *Manager) readMeta(episodeID string, stage models.Stage, base string) (*models.CheckpointMeta, error) {
	return m.readMetaByPath(m.metaPath(base))
}

func (m *Manager) readMetaByPath(path string) (*models.CheckpointMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var meta models.CheckpointMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// splitCheckpointName splits "<episode_id>_<stage>.ckpt[.gz]" by matching the
// known stage suffixes. Stage names may contain underscores, so a plain split
// would truncate episode IDs.
func splitCheckpointName(name string) (string, models.Stage, bool) {
	name = strings.TrimSuffix(name, gzExt)
	if !strings.HasSuffix(name, ckptExt) {
		return "", "", false
	}
	name = strings.TrimSuffix(name, ckptExt)
	for _, stage := range models.PipelineStages {
		suffix := "_" + string(stage)
		if strings.HasSuffix(name, suffix) && len(name) > len(suffix) {
			return strings.TrimSuffix(name, suffix), stage, true
		}
	}
	return "", "", false
}
