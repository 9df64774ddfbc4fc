package graph

import (
	"context"
	"errors"

	"github.com/killallgit/podgraph/internal/models"
)

// Store errors
var (
	ErrNodeNotFound = errors.New("node not found")
	ErrMissingName  = errors.New("node properties must include a name")
)

// EpisodeRecord is the episode payload persisted as a graph node
type EpisodeRecord struct {
	EpisodeID   string
	Title       string
	Description string
	PublishedAt string
	AudioURL    string
	Duration    float64
}

// Stats counts what one store call wrote
type Stats struct {
	Entities      int
	Relationships int
	Quotes        int
	Insights      int
	Speakers      int
}

// Add accumulates another stats value
func (s *Stats) Add(other Stats) {
	s.Entities += other.Entities
	s.Relationships += other.Relationships
	s.Quotes += other.Quotes
	s.Insights += other.Insights
	s.Speakers += other.Speakers
}

// Store is the logical graph API. All writes are upserts keyed on
// (podcast_id, episode_id, normalized_name, type) for nodes and
// (source_id, target_id, type) for edges, so re-running an episode is a
// no-op beyond timestamp refreshes.
type Store interface {
	// Setup creates indexes and tables for the bound database; idempotent
	Setup(ctx context.Context) error

	CreateNode(ctx context.Context, nodeType string, properties models.Properties) (uint, error)
	CreateRelationship(ctx context.Context, sourceID, targetID uint, relType string, properties models.Properties) error
	UpdateNode(ctx context.Context, nodeID uint, properties models.Properties) error
	DeleteNode(ctx context.Context, nodeID uint) error
	GetNode(ctx context.Context, nodeID uint) (*models.Node, error)
	Query(ctx context.Context, statement string, params ...interface{}) ([]map[string]interface{}, error)

	StorePodcast(ctx context.Context, name string) (uint, error)
	StoreEpisode(ctx context.Context, episode EpisodeRecord) (uint, error)
	StoreSegments(ctx context.Context, episodeID string, segments []models.Segment) (Stats, error)
	StoreExtraction(ctx context.Context, episodeID string, result models.ExtractionResult) (Stats, error)
	StoreAudits(ctx context.Context, audits []models.SpeakerAudit) error
}
