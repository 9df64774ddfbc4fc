package extraction

import (
	"fmt"
	"strings"

	"github.com/killallgit/podgraph/internal/models"
)

const entityPromptFixed = `Extract named entities from this podcast transcript excerpt.

Allowed entity types: %s.

Return ONLY a JSON array. Each element:
{"name": "...", "type": "...", "description": "...", "confidence": 0.0-1.0, "importance": 0-10}

Excerpt:
%s`

const entityPromptSchemaless = `Extract named entities from this podcast transcript excerpt.

Choose whatever entity type best describes each entity (a single PascalCase word).

Return ONLY a JSON array. Each element:
{"name": "...", "type": "...", "description": "...", "confidence": 0.0-1.0, "importance": 0-10}

Excerpt:
%s`

const relationshipPromptFixed = `Identify relationships between these entities based on the transcript excerpt.

Entities: %s

Allowed relationship types: %s.

Return ONLY a JSON array. Each element:
{"source_name": "...", "target_name": "...", "type": "...", "confidence": 0.0-1.0}

Excerpt:
%s`

const relationshipPromptSchemaless = `Identify relationships between these entities based on the transcript excerpt.

Entities: %s

Use whatever relationship type best describes each connection (UPPER_SNAKE_CASE).

Return ONLY a JSON array. Each element:
{"source_name": "...", "target_name": "...", "type": "...", "confidence": 0.0-1.0}

Excerpt:
%s`

const quotePrompt = `Find notable, quotable statements in these transcript segments. Only include verbatim quotes worth remembering.

Return ONLY a JSON array. Each element:
{"text": "...", "speaker": "...", "timestamp": seconds, "context": "...", "confidence": 0.0-1.0}

Segments:
%s`

const insightPrompt = `Identify key insights, lessons, or takeaways from this podcast transcript excerpt.%s

Known categories: %s. Use the closest match.

Return ONLY a JSON array. Each element:
{"title": "...", "description": "...", "category": "...", "confidence": 0.0-1.0}

Excerpt:
%s`

func buildEntityPrompt(text string, schemaless bool) string {
	if schemaless {
		return fmt.Sprintf(entityPromptSchemaless, text)
	}
	return fmt.Sprintf(entityPromptFixed, strings.Join(models.FixedEntityTypes, ", "), text)
}

func buildRelationshipPrompt(text string, entities []models.Entity, schemaless bool) string {
	names := make([]string, 0, len(entities))
	for _, e := range entities {
		names = append(names, fmt.Sprintf("%s (%s)", e.Name, e.Type))
	}
	list := strings.Join(names, ", ")
	if schemaless {
		return fmt.Sprintf(relationshipPromptSchemaless, list, text)
	}
	return fmt.Sprintf(relationshipPromptFixed, list, strings.Join(models.FixedRelationshipTypes, ", "), text)
}

func buildQuotePrompt(segments []models.Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		speaker := seg.Speaker
		if speaker == "" {
			speaker = "Unknown"
		}
		fmt.Fprintf(&sb, "[%.1fs] %s: %s\n", seg.StartTime, speaker, seg.Text)
	}
	return fmt.Sprintf(quotePrompt, sb.String())
}

func buildInsightPrompt(text, entityContext string) string {
	ctx := ""
	if entityContext != "" {
		ctx = fmt.Sprintf("\n\nEntities already identified: %s.", entityContext)
	}
	return fmt.Sprintf(insightPrompt, ctx, strings.Join(models.InsightCategories, ", "), text)
}
