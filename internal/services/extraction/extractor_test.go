package extraction

import (
	"context"
	"testing"

	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEntityName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"NVIDIA Corp.", "nvidia"},
		{"Acme Inc", "acme"},
		{"OpenAI Inc.", "openai"},
		{"Café Müller", "cafe muller"},
		{"  Widgets   Company  ", "widgets"},
		{"Foo Co Ltd", "foo"},
		{"Inc", "inc"},
		{"Jensen Huang", "jensen huang"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeEntityName(tt.in), "input %q", tt.in)
	}
}

func newTestExtractor(mock *llm.MockClient, opts Options) Extractor {
	return NewExtractor(mock, nil, opts)
}

func TestExtractEntitiesValidation(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Extract named entities", `[
		{"name": "NVIDIA", "type": "Organization", "confidence": 1.5, "importance": 12},
		{"name": "X", "type": "Person", "confidence": 0.9, "importance": 5},
		{"name": "Jensen Huang", "type": "Person", "confidence": -0.2, "importance": 8},
		{"name": "nvidia corp", "type": "Organization", "confidence": 0.7, "importance": 3}
	]`)
	ex := newTestExtractor(mock, Options{})

	entities, err := ex.ExtractEntities(context.Background(), "excerpt", EpisodeContext{})
	require.NoError(t, err)
	require.Len(t, entities, 2)

	// "X" is too short; "nvidia corp" normalizes into the NVIDIA entry
	assert.Equal(t, "NVIDIA", entities[0].Name)
	assert.Equal(t, 1.0, entities[0].Confidence)
	assert.Equal(t, 10.0, entities[0].Importance)
	assert.Equal(t, "Jensen Huang", entities[1].Name)
	assert.Equal(t, 0.0, entities[1].Confidence)
}

func TestExtractEntitiesCapsByImportance(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Extract named entities", `[
		{"name": "Minor Topic", "type": "Topic", "confidence": 0.8, "importance": 2},
		{"name": "Major Topic", "type": "Topic", "confidence": 0.8, "importance": 9},
		{"name": "Middling Topic", "type": "Topic", "confidence": 0.8, "importance": 5}
	]`)
	ex := newTestExtractor(mock, Options{MaxEntitiesPerSegment: 2})

	entities, err := ex.ExtractEntities(context.Background(), "excerpt", EpisodeContext{})
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "Major Topic", entities[0].Name)
	assert.Equal(t, "Middling Topic", entities[1].Name)
}

func TestExtractEntitiesMalformedResponse(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Extract named entities", "Sure! Here are the entities you asked for.")
	ex := newTestExtractor(mock, Options{})

	entities, err := ex.ExtractEntities(context.Background(), "excerpt", EpisodeContext{})
	require.NoError(t, err)
	assert.Empty(t, entities)
}

func TestExtractEntitiesUnwrapsProse(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Extract named entities", "```json\n[{\"name\": \"CUDA\", \"type\": \"Technology\", \"confidence\": 0.9, \"importance\": 6}]\n```")
	ex := newTestExtractor(mock, Options{})

	entities, err := ex.ExtractEntities(context.Background(), "excerpt", EpisodeContext{})
	require.NoError(t, err)
	require.Len(t, entities, 1)
	assert.Equal(t, "CUDA", entities[0].Name)
}

func TestExtractRelationshipsFiltersUnknownEntities(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Identify relationships", `[
		{"source_name": "Jensen Huang", "target_name": "NVIDIA", "type": "FOUNDED", "confidence": 0.95},
		{"source_name": "Jensen Huang", "target_name": "Unknown Corp", "type": "WORKS_FOR", "confidence": 0.9}
	]`)
	ex := newTestExtractor(mock, Options{})

	entities := []models.Entity{
		{Name: "Jensen Huang", Type: "Person"},
		{Name: "NVIDIA", Type: "Organization"},
	}
	rels, err := ex.ExtractRelationships(context.Background(), "excerpt", entities, EpisodeContext{})
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, "FOUNDED", rels[0].Type)
}

func TestExtractRelationshipsCoOccurrenceFallback(t *testing.T) {
	mock := llm.NewMockClient()
	ex := newTestExtractor(mock, Options{})

	entities := []models.Entity{
		{Name: "A16Z", Type: "Organization"},
		{Name: "Marc Andreessen", Type: "Person"},
		{Name: "Software", Type: "Concept"},
	}
	rels, err := ex.ExtractRelationships(context.Background(), "excerpt", entities, EpisodeContext{})
	require.NoError(t, err)
	require.Len(t, rels, 3)
	for _, rel := range rels {
		assert.Equal(t, "CO_OCCURS", rel.Type)
		assert.Equal(t, 0.6, rel.Confidence)
	}
}

func TestExtractRelationshipsNeedsTwoEntities(t *testing.T) {
	mock := llm.NewMockClient()
	ex := newTestExtractor(mock, Options{})

	rels, err := ex.ExtractRelationships(context.Background(), "excerpt",
		[]models.Entity{{Name: "Lone Entity", Type: "Concept"}}, EpisodeContext{})
	require.NoError(t, err)
	assert.Nil(t, rels)
	assert.Equal(t, 0, mock.CallCount())
}

func TestExtractQuotesValidation(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("quotable statements", `[
		{"text": "Software is eating the world.", "speaker": "Marc", "timestamp": 120.5, "confidence": 0.9},
		{"text": "software   is eating the WORLD.", "speaker": "Marc", "timestamp": 121.0, "confidence": 0.8},
		{"text": "short", "speaker": "Marc", "timestamp": 5, "confidence": 0.9},
		{"text": "Negative timestamps get clamped here.", "speaker": "Ben", "timestamp": -3, "confidence": 0.7}
	]`)
	ex := newTestExtractor(mock, Options{})

	quotes, err := ex.ExtractQuotes(context.Background(),
		[]models.Segment{{ID: 1, Speaker: "Marc", Text: "hello"}}, EpisodeContext{})
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "Software is eating the world.", quotes[0].Text)
	assert.Equal(t, 0.0, quotes[1].Timestamp)
}

func TestExtractQuotesEmptySegments(t *testing.T) {
	mock := llm.NewMockClient()
	ex := newTestExtractor(mock, Options{})

	quotes, err := ex.ExtractQuotes(context.Background(), nil, EpisodeContext{})
	require.NoError(t, err)
	assert.Nil(t, quotes)
	assert.Equal(t, 0, mock.CallCount())
}

func TestExtractInsightsValidation(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("key insights", `[
		{"title": "AI compute demand", "description": "Training runs keep growing and supply has not caught up with demand.", "category": "TREND", "confidence": 0.9},
		{"title": "ai compute demand", "description": "Duplicate of the first insight with different casing in the title field.", "category": "trend", "confidence": 0.8},
		{"title": "Too thin", "description": "short", "category": "lesson", "confidence": 0.9},
		{"title": "Odd category", "description": "A perfectly fine insight carrying a category nobody has heard of.", "category": "galaxy-brain", "confidence": 0.7}
	]`)
	ex := newTestExtractor(mock, Options{})

	insights, err := ex.ExtractInsights(context.Background(), "excerpt", "", EpisodeContext{})
	require.NoError(t, err)
	require.Len(t, insights, 2)
	assert.Equal(t, "trend", insights[0].Category)
	assert.Equal(t, "observation", insights[1].Category)
}

func TestDiscoveredTypesSchemaless(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Extract named entities", `[
		{"name": "Transformer", "type": "Architecture", "confidence": 0.9, "importance": 7},
		{"name": "PyTorch", "type": "Framework", "confidence": 0.9, "importance": 6}
	]`)
	ex := newTestExtractor(mock, Options{SchemaMode: "schemaless"})

	_, err := ex.ExtractEntities(context.Background(), "excerpt", EpisodeContext{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Architecture", "Framework"}, ex.DiscoveredTypes())
}

func TestDiscoveredTypesEmptyInFixedMode(t *testing.T) {
	mock := llm.NewMockClient()
	mock.Script("Extract named entities", `[{"name": "NVIDIA", "type": "Organization", "confidence": 0.9, "importance": 7}]`)
	ex := newTestExtractor(mock, Options{SchemaMode: "fixed"})

	_, err := ex.ExtractEntities(context.Background(), "excerpt", EpisodeContext{})
	require.NoError(t, err)
	assert.Empty(t, ex.DiscoveredTypes())
}
