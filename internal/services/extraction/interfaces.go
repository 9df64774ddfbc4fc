package extraction

import (
	"context"

	"github.com/killallgit/podgraph/internal/models"
)

// EpisodeContext carries the per-episode context passed through every
// extraction call. The transcript is used for prompt caching when it exceeds
// the configured minimum size.
type EpisodeContext struct {
	EpisodeID    string
	PodcastID    string
	PodcastName  string
	EpisodeTitle string
	Transcript   string
}

// Extractor produces entities, relationships, quotes, and insights from
// transcript segments. Malformed LLM responses yield empty lists, never
// errors; only transport-level failures surface.
type Extractor interface {
	ExtractEntities(ctx context.Context, text string, ectx EpisodeContext) ([]models.Entity, error)
	ExtractRelationships(ctx context.Context, text string, entities []models.Entity, ectx EpisodeContext) ([]models.Relationship, error)
	ExtractQuotes(ctx context.Context, segments []models.Segment, ectx EpisodeContext) ([]models.Quote, error)
	ExtractInsights(ctx context.Context, text string, entityContext string, ectx EpisodeContext) ([]models.Insight, error)
	DiscoveredTypes() []string
}
