// Package extraction turns transcript text into entities, relationships,
// quotes, and insights via prompted LLM completions. It supports a fixed
// schema with enumerated types, a schemaless mode with open types, and a
// mixed migration mode where the storage layer dual-writes.
package extraction

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/llm"
)

// Options configures the extractor
type Options struct {
	// SchemaMode is one of fixed, schemaless, mixed. Mixed extraction uses
	// open types; the compatible store writes them under both schemas.
	SchemaMode            string
	Model                 string
	Temperature           float64
	MaxEntitiesPerSegment int
	MinInsightLength      int
	MinQuoteLength        int
}

type extractor struct {
	client llm.Client
	cache  *llm.CacheManager
	opts   Options

	mu         sync.Mutex
	discovered map[string]bool
}

// NewExtractor creates an extractor over an LLM client. The cache manager is
// optional; without it every prompt carries the excerpt inline.
func NewExtractor(client llm.Client, cache *llm.CacheManager, opts Options) Extractor {
	if opts.MaxEntitiesPerSegment <= 0 {
		opts.MaxEntitiesPerSegment = 50
	}
	if opts.MinInsightLength <= 0 {
		opts.MinInsightLength = 20
	}
	if opts.MinQuoteLength <= 0 {
		opts.MinQuoteLength = 10
	}
	return &extractor{
		client:     client,
		cache:      cache,
		opts:       opts,
		discovered: make(map[string]bool),
	}
}

func (e *extractor) schemaless() bool {
	return e.opts.SchemaMode == "schemaless" || e.opts.SchemaMode == "mixed"
}

// complete runs one prompt through the client, resolving a prompt-cache ID
// for the episode when available
func (e *extractor) complete(ctx context.Context, prompt string, ectx EpisodeContext) (string, error) {
	req := llm.Request{
		Model:       e.opts.Model,
		Prompt:      prompt,
		PodcastID:   ectx.PodcastID,
		Temperature: e.opts.Temperature,
	}
	if e.cache != nil && ectx.EpisodeID != "" {
		req.CachedContentID = e.cache.CachedContentID(ctx, ectx.PodcastID, ectx.EpisodeID, e.opts.Model, ectx.Transcript)
	}

	resp, err := e.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (e *extractor) ExtractEntities(ctx context.Context, text string, ectx EpisodeContext) ([]models.Entity, error) {
	raw, err := e.complete(ctx, buildEntityPrompt(text, e.schemaless()), ectx)
	if err != nil {
		return nil, err
	}

	var entities []models.Entity
	if !decodeArray(raw, &entities, "entities") {
		return nil, nil
	}

	entities = e.validateEntities(entities)

	if e.schemaless() {
		e.mu.Lock()
		for _, ent := range entities {
			e.discovered[ent.Type] = true
		}
		e.mu.Unlock()
	}

	return entities, nil
}

func (e *extractor) ExtractRelationships(ctx context.Context, text string, entities []models.Entity, ectx EpisodeContext) ([]models.Relationship, error) {
	if len(entities) < 2 {
		return nil, nil
	}

	raw, err := e.complete(ctx, buildRelationshipPrompt(text, entities, e.schemaless()), ectx)
	if err != nil {
		return nil, err
	}

	var rels []models.Relationship
	if !decodeArray(raw, &rels, "relationships") {
		rels = nil
	}
	rels = e.validateRelationships(rels, entities)

	// When extraction finds nothing but multiple entities share the segment,
	// record their co-occurrence at low confidence so the graph still links
	// them.
	if len(rels) == 0 {
		rels = coOccurrences(entities)
	}

	return rels, nil
}

func (e *extractor) ExtractQuotes(ctx context.Context, segments []models.Segment, ectx EpisodeContext) ([]models.Quote, error) {
	if len(segments) == 0 {
		return nil, nil
	}

	raw, err := e.complete(ctx, buildQuotePrompt(segments), ectx)
	if err != nil {
		return nil, err
	}

	var quotes []models.Quote
	if !decodeArray(raw, &quotes, "quotes") {
		return nil, nil
	}
	return e.validateQuotes(quotes), nil
}

func (e *extractor) ExtractInsights(ctx context.Context, text string, entityContext string, ectx EpisodeContext) ([]models.Insight, error) {
	raw, err := e.complete(ctx, buildInsightPrompt(text, entityContext), ectx)
	if err != nil {
		return nil, err
	}

	var insights []models.Insight
	if !decodeArray(raw, &insights, "insights") {
		return nil, nil
	}
	return e.validateInsights(insights), nil
}

// DiscoveredTypes returns the entity types seen so far in schemaless mode,
// sorted for stable output
func (e *extractor) DiscoveredTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	types := make([]string, 0, len(e.discovered))
	for t := range e.discovered {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (e *extractor) validateEntities(entities []models.Entity) []models.Entity {
	type key struct {
		name string
		typ  string
	}
	merged := make(map[key]int)
	out := make([]models.Entity, 0, len(entities))

	for _, ent := range entities {
		ent.Name = strings.TrimSpace(ent.Name)
		ent.Type = strings.TrimSpace(ent.Type)
		if len(ent.Name) < 2 || ent.Type == "" {
			continue
		}
		ent.Confidence = clamp(ent.Confidence, 0, 1)
		ent.Importance = clamp(ent.Importance, 0, 10)

		k := key{name: NormalizeEntityName(ent.Name), typ: ent.Type}
		if idx, ok := merged[k]; ok {
			if ent.Confidence > out[idx].Confidence {
				out[idx].Confidence = ent.Confidence
			}
			if ent.Importance > out[idx].Importance {
				out[idx].Importance = ent.Importance
			}
			continue
		}
		merged[k] = len(out)
		out = append(out, ent)
	}

	if len(out) > e.opts.MaxEntitiesPerSegment {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Importance > out[j].Importance
		})
		out = out[:e.opts.MaxEntitiesPerSegment]
	}
	return out
}

func (e *extractor) validateRelationships(rels []models.Relationship, entities []models.Entity) []models.Relationship {
	known := make(map[string]bool, len(entities))
	for _, ent := range entities {
		known[NormalizeEntityName(ent.Name)] = true
	}

	out := make([]models.Relationship, 0, len(rels))
	for _, rel := range rels {
		rel.SourceName = strings.TrimSpace(rel.SourceName)
		rel.TargetName = strings.TrimSpace(rel.TargetName)
		rel.Type = strings.TrimSpace(rel.Type)
		if rel.SourceName == "" || rel.TargetName == "" || rel.Type == "" {
			continue
		}
		if !known[NormalizeEntityName(rel.SourceName)] || !known[NormalizeEntityName(rel.TargetName)] {
			continue
		}
		rel.Confidence = clamp(rel.Confidence, 0, 1)
		out = append(out, rel)
	}
	return out
}

func (e *extractor) validateQuotes(quotes []models.Quote) []models.Quote {
	seen := make(map[string]bool)
	out := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		q.Text = strings.TrimSpace(q.Text)
		if len(q.Text) < e.opts.MinQuoteLength {
			continue
		}
		norm := strings.ToLower(strings.Join(strings.Fields(q.Text), " "))
		if seen[norm] {
			continue
		}
		seen[norm] = true
		q.Confidence = clamp(q.Confidence, 0, 1)
		if q.Timestamp < 0 {
			q.Timestamp = 0
		}
		out = append(out, q)
	}
	return out
}

func (e *extractor) validateInsights(insights []models.Insight) []models.Insight {
	seen := make(map[string]bool)
	out := make([]models.Insight, 0, len(insights))
	for _, ins := range insights {
		ins.Title = strings.TrimSpace(ins.Title)
		ins.Description = strings.TrimSpace(ins.Description)
		if ins.Title == "" || len(ins.Description) < e.opts.MinInsightLength {
			continue
		}
		titleKey := strings.ToLower(ins.Title)
		if seen[titleKey] {
			continue
		}
		seen[titleKey] = true
		ins.Category = normalizeCategory(ins.Category)
		ins.Confidence = clamp(ins.Confidence, 0, 1)
		out = append(out, ins)
	}
	return out
}

// coOccurrences links every entity pair in the segment at confidence 0.6
func coOccurrences(entities []models.Entity) []models.Relationship {
	var rels []models.Relationship
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			rels = append(rels, models.Relationship{
				SourceName: entities[i].Name,
				TargetName: entities[j].Name,
				Type:       "CO_OCCURS",
				Confidence: 0.6,
			})
		}
	}
	return rels
}

func normalizeCategory(category string) string {
	lower := strings.ToLower(strings.TrimSpace(category))
	for _, known := range models.InsightCategories {
		if lower == known {
			return known
		}
	}
	return "observation"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// extractJSONArray returns the substring between the first '[' and the last
// ']' so completions wrapped in prose or code fences still parse
func extractJSONArray(raw string) (string, bool) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return "", false
	}
	return raw[start : end+1], true
}

// decodeArray parses a JSON array out of a completion. Returns false on any
// parse failure; callers treat that as a zero-extraction outcome.
func decodeArray(raw string, out interface{}, what string) bool {
	body, ok := extractJSONArray(raw)
	if !ok {
		log.Printf("[DEBUG] No JSON array found in %s response (%d bytes)", what, len(raw))
		return false
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		log.Printf("[DEBUG] Failed to parse %s response: %v", what, err)
		return false
	}
	return true
}
