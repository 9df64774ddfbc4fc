package speakers

import (
	"github.com/killallgit/podgraph/internal/models"
)

// ApplyMapping rewrites segment speaker labels in place and returns one
// audit record per changed label
func ApplyMapping(podcastID, episodeID string, segments []models.Segment, mapping Mapping) []models.SpeakerAudit {
	changed := make(map[string]bool)
	for i := range segments {
		name, ok := mapping.Names[segments[i].Speaker]
		if !ok || name == segments[i].Speaker {
			continue
		}
		changed[segments[i].Speaker] = true
		segments[i].Speaker = name
	}

	var audits []models.SpeakerAudit
	for old := range changed {
		audits = append(audits, models.SpeakerAudit{
			PodcastID:  podcastID,
			EpisodeID:  episodeID,
			OldLabel:   old,
			NewLabel:   mapping.Names[old],
			Source:     mapping.Sources[old],
			Confidence: mapping.Confidence[old],
		})
	}
	return audits
}
