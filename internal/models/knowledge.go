package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Properties carries open-ended attributes on extracted records and graph nodes
type Properties map[string]interface{}

// Value implements driver.Valuer interface for Properties
func (p Properties) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner interface for Properties
func (p *Properties) Scan(value interface{}) error {
	if value == nil {
		*p = make(Properties)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(bytes, p)
}

// Entity is a named thing discovered in a transcript segment.
// Type is enumerated in fixed-schema mode and free-form in schemaless mode.
type Entity struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Description string     `json:"description,omitempty"`
	Confidence  float64    `json:"confidence"` // [0,1]
	Importance  float64    `json:"importance"` // [0,10]
	Properties  Properties `json:"properties,omitempty"`
	SegmentID   int        `json:"segment_id"`
}

// Relationship connects two entities by name
type Relationship struct {
	SourceName string     `json:"source_name"`
	TargetName string     `json:"target_name"`
	Type       string     `json:"type"`
	Confidence float64    `json:"confidence"`
	Properties Properties `json:"properties,omitempty"`
}

// Quote is a notable verbatim statement attributed to a speaker
type Quote struct {
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
	Timestamp  float64 `json:"timestamp"`
	Context    string  `json:"context,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Insight is a synthesized takeaway from the episode
type Insight struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Confidence  float64 `json:"confidence"`
}

// ExtractionResult aggregates everything extracted from a segment batch
type ExtractionResult struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
	Quotes        []Quote        `json:"quotes"`
	Insights      []Insight      `json:"insights"`
}

// Merge appends another result into this one
func (r *ExtractionResult) Merge(other ExtractionResult) {
	r.Entities = append(r.Entities, other.Entities...)
	r.Relationships = append(r.Relationships, other.Relationships...)
	r.Quotes = append(r.Quotes, other.Quotes...)
	r.Insights = append(r.Insights, other.Insights...)
}

// FixedEntityTypes enumerates the entity types allowed in fixed-schema mode
var FixedEntityTypes = []string{
	"Person", "Organization", "Concept", "Technology",
	"Product", "Location", "Event", "Topic",
}

// FixedRelationshipTypes enumerates the relationship types allowed in fixed-schema mode
var FixedRelationshipTypes = []string{
	"WORKS_FOR", "FOUNDED", "CREATED", "DISCUSSES",
	"RELATED_TO", "LOCATED_IN", "PART_OF", "CO_OCCURS",
}

// InsightCategories enumerates the known insight categories; unknown ones
// normalize to "observation".
var InsightCategories = []string{
	"observation", "prediction", "recommendation", "lesson", "trend",
}
