package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoverPreservesRelativePath(t *testing.T) {
	inputDir := t.TempDir()
	processedDir := t.TempDir()
	m := NewMover(inputDir, processedDir)

	source := filepath.Join(inputDir, "acquired", "2026", "episode.vtt")
	require.NoError(t, os.MkdirAll(filepath.Dir(source), 0755))
	require.NoError(t, os.WriteFile(source, []byte("WEBVTT\n"), 0644))

	target, err := m.Move(source)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(processedDir, "acquired", "2026", "episode.vtt"), target)

	moved, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, []byte("WEBVTT\n"), moved)

	_, err = os.Stat(source)
	assert.True(t, os.IsNotExist(err))
}

func TestMoverFlattensOutsidePaths(t *testing.T) {
	inputDir := t.TempDir()
	processedDir := t.TempDir()
	m := NewMover(inputDir, processedDir)

	elsewhere := filepath.Join(t.TempDir(), "stray.vtt")
	require.NoError(t, os.WriteFile(elsewhere, []byte("WEBVTT\n"), 0644))

	target, err := m.Move(elsewhere)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(processedDir, "stray.vtt"), target)
}

func TestMoverMissingSource(t *testing.T) {
	m := NewMover(t.TempDir(), t.TempDir())

	_, err := m.Move(filepath.Join(t.TempDir(), "gone.vtt"))
	require.Error(t, err)
}
