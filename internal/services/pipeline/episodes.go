package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/killallgit/podgraph/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrEpisodeNotFound is returned when an episode record does not exist
var ErrEpisodeNotFound = errors.New("episode not found")

// EpisodeRepository persists pipeline state for episodes in the system
// database
type EpisodeRepository interface {
	Upsert(ctx context.Context, episode *models.Episode) error
	Get(ctx context.Context, episodeID string) (*models.Episode, error)
	SetStatus(ctx context.Context, episodeID string, status models.EpisodeStatus, reason string) error
	ListByStatus(ctx context.Context, status models.EpisodeStatus) ([]*models.Episode, error)
}

type episodeRepository struct {
	db *gorm.DB
}

// NewEpisodeRepository creates an episode repository over the system database
func NewEpisodeRepository(db *gorm.DB) EpisodeRepository {
	return &episodeRepository{db: db}
}

func (r *episodeRepository) Upsert(ctx context.Context, episode *models.Episode) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "episode_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "description", "audio_url", "youtube_url",
			"transcript_path", "processed_path", "updated_at",
		}),
	}).Create(episode).Error
	if err != nil {
		return fmt.Errorf("upserting episode %s: %w", episode.EpisodeID, err)
	}
	return nil
}

func (r *episodeRepository) Get(ctx context.Context, episodeID string) (*models.Episode, error) {
	var episode models.Episode
	err := r.db.WithContext(ctx).Where("episode_id = ?", episodeID).First(&episode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEpisodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting episode %s: %w", episodeID, err)
	}
	return &episode, nil
}

func (r *episodeRepository) SetStatus(ctx context.Context, episodeID string, status models.EpisodeStatus, reason string) error {
	updates := map[string]interface{}{"status": status}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	result := r.db.WithContext(ctx).
		Model(&models.Episode{}).
		Where("episode_id = ?", episodeID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("updating episode %s status: %w", episodeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEpisodeNotFound
	}
	return nil
}

func (r *episodeRepository) ListByStatus(ctx context.Context, status models.EpisodeStatus) ([]*models.Episode, error) {
	var episodes []*models.Episode
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&episodes).Error
	if err != nil {
		return nil, fmt.Errorf("listing %s episodes: %w", status, err)
	}
	return episodes, nil
}
