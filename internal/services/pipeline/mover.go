package pipeline

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Mover relocates processed transcript files from the inbox directory to the
// processed directory, preserving relative path structure.
type Mover struct {
	inputDir     string
	processedDir string
}

// NewMover creates a mover between the two directories
func NewMover(inputDir, processedDir string) *Mover {
	return &Mover{inputDir: inputDir, processedDir: processedDir}
}

// Move relocates one file and returns its new path. Rename is attempted
// first; cross-device moves fall back to copy-and-remove.
func (m *Mover) Move(sourcePath string) (string, error) {
	rel, err := filepath.Rel(m.inputDir, sourcePath)
	if err != nil || strings.HasPrefix(rel, "..") {
		// files outside the inbox keep only their base name
		rel = filepath.Base(sourcePath)
	}

	target := filepath.Join(m.processedDir, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("creating processed directory: %w", err)
	}

	if err := os.Rename(sourcePath, target); err == nil {
		log.Printf("[DEBUG] Moved %s to %s", sourcePath, target)
		return target, nil
	}

	if err := copyFile(sourcePath, target); err != nil {
		return "", fmt.Errorf("moving %s: %w", sourcePath, err)
	}
	if err := os.Remove(sourcePath); err != nil {
		return "", fmt.Errorf("removing source after copy: %w", err)
	}

	log.Printf("[DEBUG] Moved %s to %s", sourcePath, target)
	return target, nil
}

func copyFile(source, target string) error {
	src, err := os.Open(source)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
