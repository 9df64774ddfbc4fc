package graph

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/registry"
)

// RouterOptions configures per-podcast store routing
type RouterOptions struct {
	// SchemaMode is one of fixed, schemaless, mixed
	SchemaMode string
	// Migration enables dual writes in mixed mode
	Migration    bool
	MigrationLog *log.Logger
}

// Router hands out a store bound to the right database for a podcast. The
// connection pool is shared across databases, so switching podcast context
// is cheap. Schema setup runs once per database per process.
type Router struct {
	registry *registry.Registry
	manager  *database.Manager
	opts     RouterOptions

	mu    sync.Mutex
	setup map[string]bool
}

// NewRouter creates a router over a registry and a database manager
func NewRouter(reg *registry.Registry, manager *database.Manager, opts RouterOptions) *Router {
	return &Router{
		registry: reg,
		manager:  manager,
		opts:     opts,
		setup:    make(map[string]bool),
	}
}

// For leases a store for one podcast. The release function must be called on
// every exit path. An empty podcast ID is refused when isolation is on.
func (r *Router) For(ctx context.Context, podcastID string) (Store, func(), error) {
	if podcastID == "" {
		if r.registry.Isolation() {
			return nil, nil, registry.ErrNoPodcastContext
		}
		return nil, nil, fmt.Errorf("podcast id is required")
	}

	databaseID, err := r.registry.DatabaseFor(podcastID)
	if err != nil {
		return nil, nil, err
	}

	db, release, err := r.manager.Session(ctx, databaseID)
	if err != nil {
		return nil, nil, err
	}

	store := r.buildStore(db, podcastID)

	if err := r.ensureSetup(ctx, databaseID, store); err != nil {
		release()
		return nil, nil, err
	}

	return store, release, nil
}

func (r *Router) buildStore(db *database.DB, podcastID string) Store {
	switch r.opts.SchemaMode {
	case "schemaless":
		return NewSchemalessStore(db, podcastID)
	case "mixed":
		return NewCompatibleStore(db, podcastID, CompatibleOptions{
			UseSchemaless: true,
			Migration:     r.opts.Migration,
			MigrationLog:  r.opts.MigrationLog,
		})
	default:
		return NewFixedStore(db, podcastID)
	}
}

func (r *Router) ensureSetup(ctx context.Context, databaseID string, store Store) error {
	r.mu.Lock()
	done := r.setup[databaseID]
	r.mu.Unlock()
	if done {
		return nil
	}

	if err := store.Setup(ctx); err != nil {
		return fmt.Errorf("setting up database %s: %w", databaseID, err)
	}

	r.mu.Lock()
	r.setup[databaseID] = true
	r.mu.Unlock()
	return nil
}
