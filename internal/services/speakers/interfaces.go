package speakers

import (
	"context"

	"github.com/killallgit/podgraph/internal/models"
)

// Request carries everything the cascade can draw on for one episode
type Request struct {
	PodcastID          string
	PodcastName        string
	EpisodeID          string
	EpisodeTitle       string
	EpisodeDescription string
	YouTubeURL         string
	Segments           []models.Segment
}

// Mapping is the cascade's output: generic label to identified name, with a
// confidence and source strategy per label
type Mapping struct {
	Names      map[string]string
	Confidence map[string]float64
	Sources    map[string]models.AuditSource
}

// Identifier maps generic speaker labels to real names
type Identifier interface {
	Identify(ctx context.Context, req Request) (Mapping, error)
}

// ChannelFetcher retrieves an external channel or video description for the
// channel-description strategy. Implementations must tolerate missing pages.
type ChannelFetcher interface {
	Description(ctx context.Context, url string) (string, error)
}
