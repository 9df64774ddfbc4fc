// Package registry loads the podcast registry file and routes each
// podcast_id to its dedicated database.
package registry

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Registry errors
var (
	ErrPodcastNotFound  = errors.New("podcast not found in registry")
	ErrNoPodcastContext = errors.New("no podcast context set")
)

var podcastIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DatabaseRef points a podcast at its logical database
type DatabaseRef struct {
	URI          string `yaml:"uri"`
	DatabaseName string `yaml:"database_name"`
}

// Entry is one podcast in the registry file
type Entry struct {
	ID       string      `yaml:"id"`
	Name     string      `yaml:"name"`
	Enabled  bool        `yaml:"enabled"`
	FeedURL  string      `yaml:"feed_url,omitempty"`
	Database DatabaseRef `yaml:"database"`
}

// File is the on-disk registry document
type File struct {
	Version  string  `yaml:"version"`
	Podcasts []Entry `yaml:"podcasts"`
}

// Registry holds the validated (podcast_id -> database) routing table
type Registry struct {
	file      File
	byID      map[string]Entry
	isolation bool
}

// Load reads and validates a registry file. When isolation is enabled, two
// distinct podcast IDs must map to distinct databases.
func Load(path string, isolation bool) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading podcast registry %s: %w", path, err)
	}
	return Parse(data, isolation)
}

// Parse validates registry bytes
func Parse(data []byte, isolation bool) (*Registry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing podcast registry: %w", err)
	}

	r := &Registry{
		file:      file,
		byID:      make(map[string]Entry, len(file.Podcasts)),
		isolation: isolation,
	}

	seenDB := make(map[string]string)
	for _, entry := range file.Podcasts {
		if !podcastIDPattern.MatchString(entry.ID) {
			return nil, fmt.Errorf("invalid podcast id %q: must match %s", entry.ID, podcastIDPattern)
		}
		if _, dup := r.byID[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate podcast id %q", entry.ID)
		}
		if entry.Database.DatabaseName == "" {
			return nil, fmt.Errorf("podcast %q has no database_name", entry.ID)
		}
		if isolation {
			if other, dup := seenDB[entry.Database.DatabaseName]; dup {
				return nil, fmt.Errorf("podcasts %q and %q share database %q with isolation enabled",
					other, entry.ID, entry.Database.DatabaseName)
			}
			seenDB[entry.Database.DatabaseName] = entry.ID
		}
		r.byID[entry.ID] = entry
	}

	return r, nil
}

// Serialize renders the registry back to YAML
func (r *Registry) Serialize() ([]byte, error) {
	data, err := yaml.Marshal(&r.file)
	if err != nil {
		return nil, fmt.Errorf("serializing podcast registry: %w", err)
	}
	return data, nil
}

// Get returns the entry for a podcast ID
func (r *Registry) Get(podcastID string) (Entry, error) {
	entry, ok := r.byID[podcastID]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrPodcastNotFound, podcastID)
	}
	return entry, nil
}

// DatabaseFor returns the database name for a podcast ID
func (r *Registry) DatabaseFor(podcastID string) (string, error) {
	entry, err := r.Get(podcastID)
	if err != nil {
		return "", err
	}
	return entry.Database.DatabaseName, nil
}

// Enabled returns all enabled podcasts in file order
func (r *Registry) Enabled() []Entry {
	var out []Entry
	for _, entry := range r.file.Podcasts {
		if entry.Enabled {
			out = append(out, entry)
		}
	}
	return out
}

// All returns every entry in file order
func (r *Registry) All() []Entry {
	return append([]Entry(nil), r.file.Podcasts...)
}

// Isolation reports whether per-podcast isolation is enforced
func (r *Registry) Isolation() bool {
	return r.isolation
}
