package graph

import (
	"fmt"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
)

// fixedSchema files nodes under their enumerated type as the label
type fixedSchema struct{}

func (fixedSchema) label(nodeType string) string {
	return nodeType
}

func (fixedSchema) decorate(nodeType string, props models.Properties) models.Properties {
	return props
}

func (fixedSchema) setupIndexes(db *database.DB) error {
	// the composite label/name index covers fixed-schema lookups; nothing
	// beyond the model-level indexes is required
	return nil
}

// schemalessSchema files every node under one generic label and carries the
// discovered type in a property
type schemalessSchema struct{}

func (schemalessSchema) label(nodeType string) string {
	return models.SchemalessLabel
}

func (schemalessSchema) decorate(nodeType string, props models.Properties) models.Properties {
	out := make(models.Properties, len(props)+1)
	for k, v := range props {
		out[k] = v
	}
	out[models.TypeProperty] = nodeType
	return out
}

func (schemalessSchema) setupIndexes(db *database.DB) error {
	stmt := fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS idx_nodes_type_property ON nodes (json_extract(properties, '$.%s'), name)",
		models.TypeProperty)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("creating schemaless type index: %w", err)
	}
	return nil
}

// NewFixedStore creates a fixed-schema store bound to one database and podcast
func NewFixedStore(db *database.DB, podcastID string) Store {
	return newStore(db, podcastID, fixedSchema{})
}

// NewSchemalessStore creates a schemaless store bound to one database and podcast
func NewSchemalessStore(db *database.DB, podcastID string) Store {
	return newStore(db, podcastID, schemalessSchema{})
}
