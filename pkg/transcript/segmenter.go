package transcript

import (
	"strings"

	"github.com/killallgit/podgraph/internal/models"
)

// DefaultMinSegmentDuration is the combined-duration floor below which
// consecutive same-speaker segments are merged.
const DefaultMinSegmentDuration = 2.0

// Segmenter post-processes parsed segments: drops empties, merges short
// same-speaker runs, and renumbers IDs to be contiguous.
type Segmenter struct {
	minDuration float64
}

// NewSegmenter creates a segmenter with the given minimum duration in seconds
func NewSegmenter(minDuration float64) *Segmenter {
	if minDuration <= 0 {
		minDuration = DefaultMinSegmentDuration
	}
	return &Segmenter{minDuration: minDuration}
}

// Process applies the post-processing pipeline and returns new segments
func (s *Segmenter) Process(segments []models.Segment) []models.Segment {
	out := make([]models.Segment, 0, len(segments))

	for _, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}

		if len(out) > 0 {
			last := &out[len(out)-1]
			// Merge consecutive segments from the same speaker when the
			// combined duration stays under the floor
			if last.Speaker == seg.Speaker && (seg.EndTime-last.StartTime) < s.minDuration {
				last.Text = last.Text + " " + strings.TrimSpace(seg.Text)
				last.EndTime = seg.EndTime
				continue
			}
		}

		out = append(out, seg)
	}

	for i := range out {
		out[i].ID = i
	}

	return out
}
