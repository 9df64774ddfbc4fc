// Package graph persists extracted knowledge into per-podcast graph
// databases. Nodes and edges live in relational tables with upsert keys, so
// repeated runs converge instead of duplicating.
package graph

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/extraction"
)

// schema decides how a discovered type maps onto node labels and properties
type schema interface {
	label(nodeType string) string
	decorate(nodeType string, props models.Properties) models.Properties
	setupIndexes(db *database.DB) error
}

// store implements Store over one bound database for one podcast
type store struct {
	db        *database.DB
	podcastID string
	sch       schema
}

func newStore(db *database.DB, podcastID string, sch schema) *store {
	return &store{db: db, podcastID: podcastID, sch: sch}
}

func (s *store) Setup(ctx context.Context) error {
	if err := s.db.AutoMigrate(&models.Node{}, &models.Edge{}, &models.SpeakerAudit{}); err != nil {
		return err
	}
	return s.sch.setupIndexes(s.db)
}

// upsertNode writes a node keyed on (podcast_id, episode_id, normalized_name,
// node_type) and returns its ID
func (s *store) upsertNode(ctx context.Context, episodeID, nodeType, name string, props models.Properties) (uint, error) {
	if name == "" {
		return 0, ErrMissingName
	}

	node := models.Node{
		Label:          s.sch.label(nodeType),
		Name:           name,
		PodcastID:      s.podcastID,
		EpisodeID:      episodeID,
		NormalizedName: extraction.NormalizeEntityName(name),
		NodeType:       nodeType,
		Properties:     s.sch.decorate(nodeType, props),
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "label"}, {Name: "podcast_id"}, {Name: "episode_id"},
			{Name: "normalized_name"}, {Name: "node_type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"name", "properties", "updated_at"}),
	}).Create(&node).Error
	if err != nil {
		return 0, fmt.Errorf("upserting node %s/%s: %w", nodeType, name, err)
	}

	if node.ID == 0 {
		// conflict path; fetch the surviving row's ID
		var existing models.Node
		err = s.db.WithContext(ctx).
			Where("label = ? AND podcast_id = ? AND episode_id = ? AND normalized_name = ? AND node_type = ?",
				node.Label, s.podcastID, episodeID, node.NormalizedName, nodeType).
			First(&existing).Error
		if err != nil {
			return 0, fmt.Errorf("resolving upserted node %s/%s: %w", nodeType, name, err)
		}
		node.ID = existing.ID
	}
	return node.ID, nil
}

func (s *store) upsertEdge(ctx context.Context, sourceID, targetID uint, relType string, props models.Properties) error {
	edge := models.Edge{
		SourceID:   sourceID,
		TargetID:   targetID,
		EdgeType:   relType,
		Properties: props,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}, {Name: "target_id"}, {Name: "edge_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"properties", "updated_at"}),
	}).Create(&edge).Error
	if err != nil {
		return fmt.Errorf("upserting edge %d-[%s]->%d: %w", sourceID, relType, targetID, err)
	}
	return nil
}

func (s *store) CreateNode(ctx context.Context, nodeType string, properties models.Properties) (uint, error) {
	name, _ := properties["name"].(string)
	episodeID, _ := properties["episode_id"].(string)
	return s.upsertNode(ctx, episodeID, nodeType, name, properties)
}

func (s *store) CreateRelationship(ctx context.Context, sourceID, targetID uint, relType string, properties models.Properties) error {
	return s.upsertEdge(ctx, sourceID, targetID, relType, properties)
}

func (s *store) UpdateNode(ctx context.Context, nodeID uint, properties models.Properties) error {
	result := s.db.WithContext(ctx).Model(&models.Node{}).
		Where("id = ?", nodeID).
		Update("properties", properties)
	if result.Error != nil {
		return fmt.Errorf("updating node %d: %w", nodeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *store) DeleteNode(ctx context.Context, nodeID uint) error {
	if err := s.db.WithContext(ctx).
		Where("source_id = ? OR target_id = ?", nodeID, nodeID).
		Delete(&models.Edge{}).Error; err != nil {
		return fmt.Errorf("deleting edges of node %d: %w", nodeID, err)
	}
	result := s.db.WithContext(ctx).Delete(&models.Node{}, nodeID)
	if result.Error != nil {
		return fmt.Errorf("deleting node %d: %w", nodeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNodeNotFound
	}
	return nil
}

func (s *store) GetNode(ctx context.Context, nodeID uint) (*models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).First(&node, nodeID).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading node %d: %w", nodeID, err)
	}
	return &node, nil
}

func (s *store) Query(ctx context.Context, statement string, params ...interface{}) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	if err := s.db.WithContext(ctx).Raw(statement, params...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

func (s *store) StorePodcast(ctx context.Context, name string) (uint, error) {
	return s.upsertNode(ctx, "", "Podcast", name, models.Properties{"name": name})
}

func (s *store) StoreEpisode(ctx context.Context, episode EpisodeRecord) (uint, error) {
	props := models.Properties{
		"name":         episode.Title,
		"episode_id":   episode.EpisodeID,
		"description":  episode.Description,
		"published_at": episode.PublishedAt,
		"audio_url":    episode.AudioURL,
		"duration":     episode.Duration,
	}
	episodeNodeID, err := s.upsertNode(ctx, episode.EpisodeID, "Episode", episode.Title, props)
	if err != nil {
		return 0, err
	}

	// link from the podcast node when one exists
	var podcastNode models.Node
	err = s.db.WithContext(ctx).
		Where("label = ? AND podcast_id = ? AND node_type = ?", s.sch.label("Podcast"), s.podcastID, "Podcast").
		First(&podcastNode).Error
	if err == nil {
		if err := s.upsertEdge(ctx, podcastNode.ID, episodeNodeID, "HAS_EPISODE", nil); err != nil {
			return 0, err
		}
	} else if err != gorm.ErrRecordNotFound {
		return 0, fmt.Errorf("resolving podcast node: %w", err)
	}

	return episodeNodeID, nil
}

func (s *store) StoreSegments(ctx context.Context, episodeID string, segments []models.Segment) (Stats, error) {
	var stats Stats

	episodeNodeID, err := s.episodeNodeID(ctx, episodeID)
	if err != nil {
		return stats, err
	}

	seen := make(map[string]bool)
	for _, seg := range segments {
		if seg.Speaker == "" || seen[seg.Speaker] {
			continue
		}
		seen[seg.Speaker] = true

		speakerID, err := s.upsertNode(ctx, episodeID, "Speaker", seg.Speaker, models.Properties{"name": seg.Speaker})
		if err != nil {
			return stats, err
		}
		if episodeNodeID != 0 {
			if err := s.upsertEdge(ctx, speakerID, episodeNodeID, "SPOKE_IN", nil); err != nil {
				return stats, err
			}
		}
		stats.Speakers++
	}
	return stats, nil
}

func (s *store) StoreExtraction(ctx context.Context, episodeID string, result models.ExtractionResult) (Stats, error) {
	var stats Stats

	episodeNodeID, err := s.episodeNodeID(ctx, episodeID)
	if err != nil {
		return stats, err
	}

	entityIDs := make(map[string]uint, len(result.Entities))
	for _, ent := range result.Entities {
		props := models.Properties{
			"name":        ent.Name,
			"confidence":  ent.Confidence,
			"importance":  ent.Importance,
			"description": ent.Description,
		}
		for k, v := range ent.Properties {
			props[k] = v
		}
		nodeID, err := s.upsertNode(ctx, episodeID, ent.Type, ent.Name, props)
		if err != nil {
			return stats, err
		}
		entityIDs[extraction.NormalizeEntityName(ent.Name)] = nodeID
		stats.Entities++

		if episodeNodeID != 0 {
			if err := s.upsertEdge(ctx, episodeNodeID, nodeID, "MENTIONS", nil); err != nil {
				return stats, err
			}
		}
	}

	for _, rel := range result.Relationships {
		sourceID, okS := entityIDs[extraction.NormalizeEntityName(rel.SourceName)]
		targetID, okT := entityIDs[extraction.NormalizeEntityName(rel.TargetName)]
		if !okS || !okT {
			log.Printf("[DEBUG] Skipping relationship %s-[%s]->%s: endpoint not stored",
				rel.SourceName, rel.Type, rel.TargetName)
			continue
		}
		props := models.Properties{"confidence": rel.Confidence}
		for k, v := range rel.Properties {
			props[k] = v
		}
		if err := s.upsertEdge(ctx, sourceID, targetID, rel.Type, props); err != nil {
			return stats, err
		}
		stats.Relationships++
	}

	for _, quote := range result.Quotes {
		name := quote.Text
		if len(name) > 80 {
			name = name[:80]
		}
		quoteID, err := s.upsertNode(ctx, episodeID, "Quote", name, models.Properties{
			"name":       name,
			"text":       quote.Text,
			"speaker":    quote.Speaker,
			"timestamp":  quote.Timestamp,
			"context":    quote.Context,
			"confidence": quote.Confidence,
		})
		if err != nil {
			return stats, err
		}
		if episodeNodeID != 0 {
			if err := s.upsertEdge(ctx, quoteID, episodeNodeID, "QUOTED_FROM", nil); err != nil {
				return stats, err
			}
		}
		if speakerID, ok := entityIDs[extraction.NormalizeEntityName(quote.Speaker)]; ok {
			if err := s.upsertEdge(ctx, quoteID, speakerID, "SAID_BY", nil); err != nil {
				return stats, err
			}
		}
		stats.Quotes++
	}

	for _, insight := range result.Insights {
		insightID, err := s.upsertNode(ctx, episodeID, "Insight", insight.Title, models.Properties{
			"name":        insight.Title,
			"description": insight.Description,
			"category":    insight.Category,
			"confidence":  insight.Confidence,
		})
		if err != nil {
			return stats, err
		}
		if episodeNodeID != 0 {
			if err := s.upsertEdge(ctx, insightID, episodeNodeID, "DERIVED_FROM", nil); err != nil {
				return stats, err
			}
		}
		stats.Insights++
	}

	return stats, nil
}

// StoreAudits mirrors speaker-mapping audit records into the podcast's
// database. Each episode's records are replaced wholesale so a re-run after
// a lost checkpoint does not accumulate duplicates.
func (s *store) StoreAudits(ctx context.Context, audits []models.SpeakerAudit) error {
	if len(audits) == 0 {
		return nil
	}

	episodeIDs := make([]string, 0, 1)
	seen := make(map[string]bool)
	for i := range audits {
		audits[i].PodcastID = s.podcastID
		if !seen[audits[i].EpisodeID] {
			seen[audits[i].EpisodeID] = true
			episodeIDs = append(episodeIDs, audits[i].EpisodeID)
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().
			Where("podcast_id = ? AND episode_id IN ?", s.podcastID, episodeIDs).
			Delete(&models.SpeakerAudit{}).Error; err != nil {
			return err
		}
		return tx.Create(&audits).Error
	})
	if err != nil {
		return fmt.Errorf("storing speaker audits: %w", err)
	}
	return nil
}

func (s *store) episodeNodeID(ctx context.Context, episodeID string) (uint, error) {
	var node models.Node
	err := s.db.WithContext(ctx).
		Where("label = ? AND podcast_id = ? AND episode_id = ? AND node_type = ?",
			s.sch.label("Episode"), s.podcastID, episodeID, "Episode").
		First(&node).Error
	if err == gorm.ErrRecordNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("resolving episode node %s: %w", episodeID, err)
	}
	return node.ID, nil
}
