package checkpoints

import (
	"archive/zip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ExportCheckpoints writes the checkpoints for the given episodes into a zip
// archive. An empty episode list exports everything.
func (m *Manager) ExportCheckpoints(target string, episodeIDs []string) error {
	wanted := make(map[string]bool, len(episodeIDs))
	for _, id := range episodeIDs {
		wanted[id] = true
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	count := 0
	for _, sub := range []string{episodesDir, metadataDir, segmentsDir} {
		dir := filepath.Join(m.opts.Dir, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("listing %s: %w", sub, err)
		}
		for _, entry := range entries {
			name := entry.Name()
			if strings.HasPrefix(name, "corrupted_") || name == lockFile {
				continue
			}
			if len(wanted) > 0 {
				idx := strings.Index(name, "_")
				if idx <= 0 || !wanted[name[:idx]] {
					// episode IDs may contain underscores; fall back to a
					// prefix scan
					matched := false
					for id := range wanted {
						if strings.HasPrefix(name, id+"_") {
							matched = true
							break
						}
					}
					if !matched {
						continue
					}
				}
			}
			if err := addToZip(zw, filepath.Join(dir, name), filepath.Join(sub, name)); err != nil {
				return err
			}
			count++
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	log.Printf("[DEBUG] Exported %d checkpoint files to %s", count, target)
	return nil
}

// ImportCheckpoints extracts a previously exported archive into the
// checkpoint directory. Existing files are overwritten.
func (m *Manager) ImportCheckpoints(source string) error {
	zr, err := zip.OpenReader(source)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer zr.Close()

	count := 0
	for _, file := range zr.File {
		// reject paths escaping the checkpoint directory
		clean := filepath.Clean(file.Name)
		if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
			return fmt.Errorf("archive entry %q escapes checkpoint directory", file.Name)
		}
		sub := strings.SplitN(clean, string(filepath.Separator), 2)[0]
		if sub != episodesDir && sub != metadataDir && sub != segmentsDir {
			continue
		}

		target := filepath.Join(m.opts.Dir, clean)
		if err := extractFromZip(file, target); err != nil {
			return err
		}
		count++
	}

	log.Printf("[DEBUG] Imported %d checkpoint files from %s", count, source)
	return nil
}

func addToZip(zw *zip.Writer, path, name string) error {
	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("adding %s to archive: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("writing %s to archive: %w", name, err)
	}
	return nil
}

func extractFromZip(file *zip.File, target string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry %s: %w", file.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(src, 1<<30)); err != nil {
		return fmt.Errorf("extracting %s: %w", file.Name, err)
	}
	return nil
}
