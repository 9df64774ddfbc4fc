package models

import (
	"time"

	"gorm.io/gorm"
)

// SchemalessLabel is the shared label under which the schemaless store files
// every node; the discovered type lives in the node's TypeProperty.
const SchemalessLabel = "Node"

// TypeProperty is the property key carrying the discovered type on
// schemaless nodes.
const TypeProperty = "_type"

// Node is a graph node persisted in a podcast's database
type Node struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	Label     string         `json:"label" gorm:"index:idx_nodes_label_name;index:idx_nodes_upsert,unique;not null"`
	Name      string         `json:"name" gorm:"index:idx_nodes_label_name;index"`
	PodcastID string         `json:"podcast_id" gorm:"index:idx_nodes_upsert,unique"`
	EpisodeID string         `json:"episode_id" gorm:"index:idx_nodes_upsert,unique"`
	// NormalizedName and NodeType complete the upsert key; the surface form stays in Name
	NormalizedName string     `json:"normalized_name" gorm:"index:idx_nodes_upsert,unique"`
	NodeType       string     `json:"node_type" gorm:"index:idx_nodes_upsert,unique;index"`
	Properties     Properties `json:"properties" gorm:"type:json"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// Edge is a directed relationship between two nodes
type Edge struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	SourceID   uint           `json:"source_id" gorm:"index:idx_edges_upsert,unique;not null"`
	TargetID   uint           `json:"target_id" gorm:"index:idx_edges_upsert,unique;not null"`
	EdgeType   string         `json:"edge_type" gorm:"index:idx_edges_upsert,unique;not null"`
	Properties Properties     `json:"properties" gorm:"type:json"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for Node
func (Node) TableName() string {
	return "nodes"
}

// TableName specifies the table name for Edge
func (Edge) TableName() string {
	return "edges"
}
