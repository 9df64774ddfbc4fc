package checkpoints

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/killallgit/podgraph/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	m, err := NewManager(opts)
	require.NoError(t, err)
	return m
}

func TestNewManagerRequiresDir(t *testing.T) {
	_, err := NewManager(Options{})
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := testManager(t, Options{})
	payload := []byte(`{"content":"transcript text"}`)

	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageTranscribe, payload))

	loaded, err := m.LoadEpisodeProgress("ep-1", models.StageTranscribe)
	require.NoError(t, err)
	assert.Equal(t, payload, loaded)
}

func TestLoadMissingReturnsNil(t *testing.T) {
	m := testManager(t, Options{})
	loaded, err := m.LoadEpisodeProgress("no-such-episode", models.StageTranscribe)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestLargePayloadIsCompressed(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, Options{Dir: dir, CompressThreshold: 100})

	payload := bytes.Repeat([]byte("abcdefgh"), 100)
	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageExtractKnowledge, payload))

	_, err := os.Stat(filepath.Join(dir, "episodes", "ep-1_extract_knowledge.ckpt.gz"))
	require.NoError(t, err)

	loaded, err := m.LoadEpisodeProgress("ep-1", models.StageExtractKnowledge)
	require.NoError(t, err)
	assert.Equal(t, payload, loaded)
}

func TestRewriteSwitchesCompressionForm(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, Options{Dir: dir, CompressThreshold: 100})

	big := bytes.Repeat([]byte("x"), 500)
	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageStore, big))
	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageStore, []byte("tiny")))

	// the stale compressed form is removed
	_, err := os.Stat(filepath.Join(dir, "episodes", "ep-1_store.ckpt.gz"))
	assert.True(t, os.IsNotExist(err))

	loaded, err := m.LoadEpisodeProgress("ep-1", models.StageStore)
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), loaded)
}

func TestCorruptCheckpointIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, Options{Dir: dir})

	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageTranscribe, []byte("good data")))

	// flip bytes behind the manager's back
	path := filepath.Join(dir, "episodes", "ep-1_transcribe.ckpt")
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0644))

	loaded, err := m.LoadEpisodeProgress("ep-1", models.StageTranscribe)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	entries, err := os.ReadDir(filepath.Join(dir, "episodes"))
	require.NoError(t, err)
	found := false
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "corrupted_") {
			found = true
		}
	}
	assert.True(t, found, "corrupt checkpoint should be renamed aside")
}

func TestCorruptGzipIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, Options{Dir: dir, CompressThreshold: 10})

	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageTranscribe, []byte("payload over threshold")))

	path := filepath.Join(dir, "episodes", "ep-1_transcribe.ckpt.gz")
	require.NoError(t, os.WriteFile(path, []byte("not gzip at all"), 0644))

	loaded, err := m.LoadEpisodeProgress("ep-1", models.StageTranscribe)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSegmentProgress(t *testing.T) {
	m := testManager(t, Options{})

	require.NoError(t, m.SaveSegmentProgress("ep-1", models.StageExtractKnowledge, 5, []byte("batch five")))

	loaded, err := m.LoadSegmentProgress("ep-1", models.StageExtractKnowledge, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("batch five"), loaded)

	missing, err := m.LoadSegmentProgress("ep-1", models.StageExtractKnowledge, 10)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetEpisodeCheckpoints(t *testing.T) {
	m := testManager(t, Options{})

	require.NoError(t, m.SaveEpisodeProgress("ep_with_underscores", models.StageDiscover, []byte("a")))
	require.NoError(t, m.SaveEpisodeProgress("ep_with_underscores", models.StageTranscribe, []byte("b")))

	stages, err := m.GetEpisodeCheckpoints("ep_with_underscores")
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.Stage{models.StageDiscover, models.StageTranscribe}, stages)

	assert.True(t, m.IsStageComplete("ep_with_underscores", models.StageDiscover))
	assert.False(t, m.IsStageComplete("ep_with_underscores", models.StageStore))
}

func TestGetIncompleteEpisodes(t *testing.T) {
	m := testManager(t, Options{})

	require.NoError(t, m.SaveEpisodeProgress("ep-done", models.StageDiscover, []byte("a")))
	require.NoError(t, m.SaveEpisodeProgress("ep-done", models.StageComplete, []byte("done")))
	require.NoError(t, m.SaveEpisodeProgress("ep-partial", models.StageDiscover, []byte("a")))

	incomplete, err := m.GetIncompleteEpisodes()
	require.NoError(t, err)
	assert.Equal(t, []string{"ep-partial"}, incomplete)
}

func TestIsExpired(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, Options{Dir: dir, MaxAge: time.Hour})

	assert.False(t, m.IsExpired("ep-1"), "no checkpoints is not expired")

	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageDiscover, []byte("a")))
	assert.False(t, m.IsExpired("ep-1"))

	// age the file past MaxAge
	old := time.Now().Add(-2 * time.Hour)
	path := filepath.Join(dir, "episodes", "ep-1_discover.ckpt")
	require.NoError(t, os.Chtimes(path, old, old))
	assert.True(t, m.IsExpired("ep-1"))

	// a fresh checkpoint for a later stage un-expires the set
	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageTranscribe, []byte("b")))
	assert.False(t, m.IsExpired("ep-1"))
}

func TestRemoveEpisode(t *testing.T) {
	m := testManager(t, Options{})

	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageDiscover, []byte("a")))
	require.NoError(t, m.SaveSegmentProgress("ep-1", models.StageExtractKnowledge, 0, []byte("b")))
	require.NoError(t, m.SaveEpisodeProgress("ep-2", models.StageDiscover, []byte("keep")))

	require.NoError(t, m.RemoveEpisode("ep-1"))

	loaded, err := m.LoadEpisodeProgress("ep-1", models.StageDiscover)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	kept, err := m.LoadEpisodeProgress("ep-2", models.StageDiscover)
	require.NoError(t, err)
	assert.Equal(t, []byte("keep"), kept)
}

func TestCleanOldCheckpoints(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, Options{Dir: dir})

	require.NoError(t, m.SaveEpisodeProgress("ep-old", models.StageDiscover, []byte("a")))
	require.NoError(t, m.SaveEpisodeProgress("ep-new", models.StageDiscover, []byte("b")))

	old := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{
		filepath.Join(dir, "episodes", "ep-old_discover.ckpt"),
		filepath.Join(dir, "metadata", "ep-old_discover.json"),
	} {
		require.NoError(t, os.Chtimes(p, old, old))
	}

	removed, err := m.CleanOldCheckpoints(7)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = m.CleanOldCheckpoints(0)
	require.Error(t, err)

	kept, err := m.LoadEpisodeProgress("ep-new", models.StageDiscover)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), kept)
}

func TestDistributedLockGuardsWrites(t *testing.T) {
	dir := t.TempDir()
	m := testManager(t, Options{Dir: dir, Distributed: true})

	require.NoError(t, m.SaveEpisodeProgress("ep-1", models.StageDiscover, []byte("locked write")))

	loaded, err := m.LoadEpisodeProgress("ep-1", models.StageDiscover)
	require.NoError(t, err)
	assert.Equal(t, []byte("locked write"), loaded)
}

func TestSplitCheckpointName(t *testing.T) {
	id, stage, ok := splitCheckpointName("abc_def_discover.ckpt")
	require.True(t, ok)
	assert.Equal(t, "abc_def", id)
	assert.Equal(t, models.StageDiscover, stage)

	// multi-word stages keep the full episode ID intact
	id, stage, ok = splitCheckpointName("ep1_extract_knowledge.ckpt.gz")
	require.True(t, ok)
	assert.Equal(t, "ep1", id)
	assert.Equal(t, models.StageExtractKnowledge, stage)

	id, stage, ok = splitCheckpointName("ep_2_identify_speakers.ckpt")
	require.True(t, ok)
	assert.Equal(t, "ep_2", id)
	assert.Equal(t, models.StageIdentifySpeakers, stage)

	_, _, ok = splitCheckpointName("README.md")
	assert.False(t, ok)
	_, _, ok = splitCheckpointName("unknownstage.ckpt")
	assert.False(t, ok)
}
