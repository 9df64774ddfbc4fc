package graph

import (
	"context"
	"log"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
)

// CompatibleStore composes the fixed and schemaless stores. Reads go to the
// schema selected by the feature flag; in migration mode every write runs
// against both schemas per statement. A secondary-write failure or a count
// divergence is logged to the migration log but never rolled back.
type CompatibleStore struct {
	primary      Store
	secondary    Store
	migration    bool
	migrationLog *log.Logger
}

// CompatibleOptions configures the compatible store
type CompatibleOptions struct {
	// UseSchemaless selects the schemaless store for reads and as the
	// primary write target
	UseSchemaless bool
	// Migration enables dual writes to the other schema
	Migration    bool
	MigrationLog *log.Logger
}

// NewCompatibleStore creates the dual-schema store over one database
func NewCompatibleStore(db *database.DB, podcastID string, opts CompatibleOptions) *CompatibleStore {
	fixed := NewFixedStore(db, podcastID)
	schemaless := NewSchemalessStore(db, podcastID)

	primary, secondary := fixed, schemaless
	if opts.UseSchemaless {
		primary, secondary = schemaless, fixed
	}

	migLog := opts.MigrationLog
	if migLog == nil {
		migLog = log.Default()
	}

	return &CompatibleStore{
		primary:      primary,
		secondary:    secondary,
		migration:    opts.Migration,
		migrationLog: migLog,
	}
}

func (c *CompatibleStore) Setup(ctx context.Context) error {
	if err := c.primary.Setup(ctx); err != nil {
		return err
	}
	if c.migration {
		return c.secondary.Setup(ctx)
	}
	return nil
}

func (c *CompatibleStore) CreateNode(ctx context.Context, nodeType string, properties models.Properties) (uint, error) {
	id, err := c.primary.CreateNode(ctx, nodeType, properties)
	if err != nil {
		return 0, err
	}
	if c.migration {
		secondaryID, secErr := c.secondary.CreateNode(ctx, nodeType, properties)
		if secErr != nil {
			c.migrationLog.Printf("[MIGRATION] Secondary node write failed for %s: %v", nodeType, secErr)
		} else if secondaryID != id {
			c.migrationLog.Printf("[MIGRATION] Node ID mismatch for %s %v: primary=%d secondary=%d",
				nodeType, properties["name"], id, secondaryID)
		}
	}
	return id, nil
}

func (c *CompatibleStore) CreateRelationship(ctx context.Context, sourceID, targetID uint, relType string, properties models.Properties) error {
	return c.primary.CreateRelationship(ctx, sourceID, targetID, relType, properties)
}

func (c *CompatibleStore) UpdateNode(ctx context.Context, nodeID uint, properties models.Properties) error {
	return c.primary.UpdateNode(ctx, nodeID, properties)
}

func (c *CompatibleStore) DeleteNode(ctx context.Context, nodeID uint) error {
	return c.primary.DeleteNode(ctx, nodeID)
}

func (c *CompatibleStore) GetNode(ctx context.Context, nodeID uint) (*models.Node, error) {
	return c.primary.GetNode(ctx, nodeID)
}

// Query translates fixed-schema label references to schemaless form when the
// schemaless store backs reads, then standardizes the rows
func (c *CompatibleStore) Query(ctx context.Context, statement string, params ...interface{}) ([]map[string]interface{}, error) {
	if st, ok := c.primary.(*store); ok {
		if _, isSchemaless := st.sch.(schemalessSchema); isSchemaless {
			statement = TranslateQuery(statement)
		}
	}
	rows, err := c.primary.Query(ctx, statement, params...)
	if err != nil {
		return nil, err
	}
	return StandardizeRows(rows), nil
}

func (c *CompatibleStore) StorePodcast(ctx context.Context, name string) (uint, error) {
	id, err := c.primary.StorePodcast(ctx, name)
	if err != nil {
		return 0, err
	}
	if c.migration {
		if _, secErr := c.secondary.StorePodcast(ctx, name); secErr != nil {
			c.migrationLog.Printf("[MIGRATION] Secondary podcast write failed for %s: %v", name, secErr)
		}
	}
	return id, nil
}

func (c *CompatibleStore) StoreEpisode(ctx context.Context, episode EpisodeRecord) (uint, error) {
	id, err := c.primary.StoreEpisode(ctx, episode)
	if err != nil {
		return 0, err
	}
	if c.migration {
		if _, secErr := c.secondary.StoreEpisode(ctx, episode); secErr != nil {
			c.migrationLog.Printf("[MIGRATION] Secondary episode write failed for %s: %v", episode.EpisodeID, secErr)
		}
	}
	return id, nil
}

func (c *CompatibleStore) StoreSegments(ctx context.Context, episodeID string, segments []models.Segment) (Stats, error) {
	stats, err := c.primary.StoreSegments(ctx, episodeID, segments)
	if err != nil {
		return stats, err
	}
	if c.migration {
		secStats, secErr := c.secondary.StoreSegments(ctx, episodeID, segments)
		c.compareStats("segments", episodeID, stats, secStats, secErr)
	}
	return stats, nil
}

func (c *CompatibleStore) StoreExtraction(ctx context.Context, episodeID string, result models.ExtractionResult) (Stats, error) {
	stats, err := c.primary.StoreExtraction(ctx, episodeID, result)
	if err != nil {
		return stats, err
	}
	if c.migration {
		secStats, secErr := c.secondary.StoreExtraction(ctx, episodeID, result)
		c.compareStats("extraction", episodeID, stats, secStats, secErr)
	}
	return stats, nil
}

func (c *CompatibleStore) StoreAudits(ctx context.Context, audits []models.SpeakerAudit) error {
	// audits are rows, not schema-shaped nodes; one write suffices
	return c.primary.StoreAudits(ctx, audits)
}

func (c *CompatibleStore) compareStats(what, episodeID string, primary, secondary Stats, secErr error) {
	if secErr != nil {
		c.migrationLog.Printf("[MIGRATION] Secondary %s write failed for episode %s: %v", what, episodeID, secErr)
		return
	}
	if primary != secondary {
		c.migrationLog.Printf("[MIGRATION] %s count mismatch for episode %s: primary=%+v secondary=%+v",
			what, episodeID, primary, secondary)
	}
}
