package graph

import (
	"context"
	"testing"
	"time"

	"github.com/killallgit/podgraph/internal/database"
	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const routerRegistry = `version: "1"
podcasts:
  - id: acquired
    name: Acquired
    enabled: true
    database:
      uri: sqlite://
      database_name: podcast_acquired
  - id: lex-fridman
    name: Lex Fridman Podcast
    enabled: true
    database:
      uri: sqlite://
      database_name: podcast_lex
`

func testRouter(t *testing.T, mode string) (*Router, *database.Manager) {
	t.Helper()
	reg, err := registry.Parse([]byte(routerRegistry), true)
	require.NoError(t, err)

	manager := database.NewManager(database.ManagerOptions{
		DataDir:        t.TempDir(),
		MaxConnections: 4,
		AcquireTimeout: 5 * time.Second,
	})
	t.Cleanup(func() { manager.Close() })

	return NewRouter(reg, manager, RouterOptions{SchemaMode: mode}), manager
}

func TestRouterIsolatesPodcasts(t *testing.T) {
	router, _ := testRouter(t, "fixed")
	ctx := context.Background()

	s1, release1, err := router.For(ctx, "acquired")
	require.NoError(t, err)
	_, err = s1.StorePodcast(ctx, "Acquired")
	require.NoError(t, err)
	release1()

	// the other podcast's database starts empty
	s2, release2, err := router.For(ctx, "lex-fridman")
	require.NoError(t, err)
	defer release2()

	rows, err := s2.Query(ctx, "SELECT COUNT(*) AS n FROM nodes")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 0, rows[0]["n"])
}

func TestRouterRequiresPodcastContext(t *testing.T) {
	router, _ := testRouter(t, "fixed")

	_, _, err := router.For(context.Background(), "")
	assert.ErrorIs(t, err, registry.ErrNoPodcastContext)
}

func TestRouterRejectsUnknownPodcast(t *testing.T) {
	router, _ := testRouter(t, "fixed")

	_, _, err := router.For(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, registry.ErrPodcastNotFound)
}

func TestRouterBuildsStorePerSchemaMode(t *testing.T) {
	ctx := context.Background()

	fixed, _ := testRouter(t, "fixed")
	s, release, err := fixed.For(ctx, "acquired")
	require.NoError(t, err)
	release()
	_, isCompatible := s.(*CompatibleStore)
	assert.False(t, isCompatible)

	mixed, _ := testRouter(t, "mixed")
	s, release, err = mixed.For(ctx, "acquired")
	require.NoError(t, err)
	release()
	_, isCompatible = s.(*CompatibleStore)
	assert.True(t, isCompatible)
}

func TestRouterSchemalessMode(t *testing.T) {
	router, _ := testRouter(t, "schemaless")
	ctx := context.Background()

	s, release, err := router.For(ctx, "acquired")
	require.NoError(t, err)
	defer release()

	id, err := s.CreateNode(ctx, "Framework", models.Properties{"name": "PyTorch"})
	require.NoError(t, err)

	node, err := s.GetNode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.SchemalessLabel, node.Label)
}
