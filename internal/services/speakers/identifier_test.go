package speakers

import (
	"context"
	"errors"
	"testing"

	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsGenericLabel(t *testing.T) {
	generic := []string{"Speaker 0", "Speaker 12", "Guest 1", "Host", "Co-host 2", "Guest (Expert)", " Speaker 3 "}
	for _, label := range generic {
		assert.True(t, IsGenericLabel(label), "expected %q to be generic", label)
	}

	named := []string{"Jensen Huang", "Lex Fridman", "", "The Narrator", "Speakerphone"}
	for _, label := range named {
		assert.False(t, IsGenericLabel(label), "expected %q not to be generic", label)
	}
}

type stubFetcher struct {
	description string
	err         error
	calls       int
}

func (s *stubFetcher) Description(ctx context.Context, url string) (string, error) {
	s.calls++
	return s.description, s.err
}

func segmentsFor(labels ...string) []models.Segment {
	segs := make([]models.Segment, 0, len(labels))
	for i, label := range labels {
		segs = append(segs, models.Segment{
			ID:      i + 1,
			Speaker: label,
			Text:    "Some discussion about the topic at hand.",
		})
	}
	return segs
}

func TestIdentifyFromDescription(t *testing.T) {
	id := NewIdentifier(nil, nil, Options{})

	mapping, err := id.Identify(context.Background(), Request{
		PodcastID:          "p1",
		EpisodeDescription: "Hosted by Lex Fridman. Guest: Andrej Karpathy.",
		Segments:           segmentsFor("Speaker 0", "Speaker 1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Lex Fridman", mapping.Names["Speaker 0"])
	assert.Equal(t, "Andrej Karpathy", mapping.Names["Speaker 1"])
	assert.Equal(t, models.AuditSourceDescription, mapping.Sources["Speaker 0"])
	assert.InDelta(t, 0.8, mapping.Confidence["Speaker 0"], 1e-9)
}

func TestIdentifyFromSelfIntroduction(t *testing.T) {
	id := NewIdentifier(nil, nil, Options{})

	segments := []models.Segment{
		{ID: 1, Speaker: "Speaker 0", Text: "Welcome back to the show everyone."},
		{ID: 2, Speaker: "Speaker 1", Text: "Thanks! I'm Grace Hopper, glad to be here."},
	}
	mapping, err := id.Identify(context.Background(), Request{PodcastID: "p1", Segments: segments})
	require.NoError(t, err)

	assert.Equal(t, "Grace Hopper", mapping.Names["Speaker 1"])
	assert.Equal(t, models.AuditSourcePattern, mapping.Sources["Speaker 1"])

	// nothing identified the first speaker, so it gets a role
	assert.Equal(t, "Primary Speaker", mapping.Names["Speaker 0"])
	assert.Equal(t, models.AuditSourceFallback, mapping.Sources["Speaker 0"])
}

func TestIdentifyFromClosingCredits(t *testing.T) {
	id := NewIdentifier(nil, nil, Options{})

	segments := segmentsFor("Speaker 0")
	segments = append(segments, models.Segment{
		ID: 2, Speaker: "Speaker 0", Text: "Thanks to our guest, John Smith. See you next week.",
	})
	mapping, err := id.Identify(context.Background(), Request{PodcastID: "p1", Segments: segments})
	require.NoError(t, err)

	assert.Equal(t, "John Smith", mapping.Names["Speaker 0"])
	assert.Equal(t, models.AuditSourceCredits, mapping.Sources["Speaker 0"])
}

func TestIdentifyFromChannelDescription(t *testing.T) {
	fetcher := &stubFetcher{description: "Hosted by Jane Doe. New episodes every Tuesday."}
	id := NewIdentifier(nil, fetcher, Options{})

	mapping, err := id.Identify(context.Background(), Request{
		PodcastID:  "p1",
		YouTubeURL: "https://youtube.com/@show",
		Segments:   segmentsFor("Speaker 0"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, "Jane Doe", mapping.Names["Speaker 0"])
	assert.Equal(t, models.AuditSourceChannel, mapping.Sources["Speaker 0"])
}

func TestChannelFetchFailureFallsThrough(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("404 not found")}
	id := NewIdentifier(nil, fetcher, Options{})

	mapping, err := id.Identify(context.Background(), Request{
		PodcastID:  "p1",
		YouTubeURL: "https://youtube.com/@gone",
		Segments:   segmentsFor("Speaker 0"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Host/Narrator", mapping.Names["Speaker 0"])
	assert.Equal(t, models.AuditSourceFallback, mapping.Sources["Speaker 0"])
}

func TestIdentifyViaLLM(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Identify the real names", `{"Speaker 0": "Barbara Liskov", "Speaker 1": "UNKNOWN"}`)
	id := NewIdentifier(mock, nil, Options{})

	mapping, err := id.Identify(context.Background(), Request{
		PodcastID: "p1",
		Segments:  segmentsFor("Speaker 0", "Speaker 1"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Barbara Liskov", mapping.Names["Speaker 0"])
	assert.Equal(t, models.AuditSourceLLM, mapping.Sources["Speaker 0"])

	// UNKNOWN answers fall through to the role fallback
	assert.Equal(t, "Speaker 2", mapping.Names["Speaker 1"])
	assert.Equal(t, models.AuditSourceFallback, mapping.Sources["Speaker 1"])
}

func TestLowConfidenceFallsBackToRole(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Identify the real names", `{"Speaker 0": "Barbara Liskov"}`)
	id := NewIdentifier(mock, nil, Options{ConfidenceThreshold: 0.8})

	mapping, err := id.Identify(context.Background(), Request{
		PodcastID: "p1",
		Segments:  segmentsFor("Speaker 0"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Host/Narrator", mapping.Names["Speaker 0"])
	assert.Equal(t, models.AuditSourceFallback, mapping.Sources["Speaker 0"])
}

func TestIdentifySkipsNamedSpeakers(t *testing.T) {
	id := NewIdentifier(nil, nil, Options{})

	mapping, err := id.Identify(context.Background(), Request{
		PodcastID: "p1",
		Segments:  segmentsFor("Lex Fridman", "Jensen Huang"),
	})
	require.NoError(t, err)
	assert.Empty(t, mapping.Names)
}

func TestCacheReusesIdentificationsAcrossEpisodes(t *testing.T) {
	id := NewIdentifier(nil, nil, Options{})

	first, err := id.Identify(context.Background(), Request{
		PodcastID: "p1",
		Segments: []models.Segment{
			{ID: 1, Speaker: "Speaker 0", Text: "Hi, I'm Lex Fridman and this is my podcast."},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "Lex Fridman", first.Names["Speaker 0"])

	// the second episode has no self-introduction, the cache carries it
	second, err := id.Identify(context.Background(), Request{
		PodcastID: "p1",
		Segments:  segmentsFor("Speaker 0"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Lex Fridman", second.Names["Speaker 0"])
	assert.Equal(t, models.AuditSourcePattern, second.Sources["Speaker 0"])

	// a different podcast does not share the cache
	other, err := id.Identify(context.Background(), Request{
		PodcastID: "p2",
		Segments:  segmentsFor("Speaker 0"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.AuditSourceFallback, other.Sources["Speaker 0"])
}

func TestRoleFallbacksAreNotCached(t *testing.T) {
	id := NewIdentifier(nil, nil, Options{})

	first, err := id.Identify(context.Background(), Request{
		PodcastID: "p1",
		Segments:  segmentsFor("Speaker 0"),
	})
	require.NoError(t, err)
	require.Equal(t, models.AuditSourceFallback, first.Sources["Speaker 0"])

	// the next episode carries a real signal; a cached fallback would mask it
	second, err := id.Identify(context.Background(), Request{
		PodcastID: "p1",
		Segments: []models.Segment{
			{ID: 1, Speaker: "Speaker 0", Text: "My name is Donald Knuth, welcome."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Donald Knuth", second.Names["Speaker 0"])
	assert.Equal(t, models.AuditSourcePattern, second.Sources["Speaker 0"])
}

func TestApplyMapping(t *testing.T) {
	segments := []models.Segment{
		{ID: 1, Speaker: "Speaker 0", Text: "a"},
		{ID: 2, Speaker: "Speaker 1", Text: "b"},
		{ID: 3, Speaker: "Speaker 0", Text: "c"},
		{ID: 4, Speaker: "Narrator", Text: "d"},
	}
	mapping := Mapping{
		Names: map[string]string{
			"Speaker 0": "Lex Fridman",
			"Speaker 1": "Speaker 1", // identity mapping, no audit
		},
		Confidence: map[string]float64{"Speaker 0": 0.9},
		Sources:    map[string]models.AuditSource{"Speaker 0": models.AuditSourcePattern},
	}

	audits := ApplyMapping("p1", "ep-1", segments, mapping)

	assert.Equal(t, "Lex Fridman", segments[0].Speaker)
	assert.Equal(t, "Lex Fridman", segments[2].Speaker)
	assert.Equal(t, "Speaker 1", segments[1].Speaker)
	assert.Equal(t, "Narrator", segments[3].Speaker)

	// one audit per changed label, not per segment
	require.Len(t, audits, 1)
	assert.Equal(t, "Speaker 0", audits[0].OldLabel)
	assert.Equal(t, "Lex Fridman", audits[0].NewLabel)
	assert.Equal(t, models.AuditSourcePattern, audits[0].Source)
}
