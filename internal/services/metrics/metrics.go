// Package metrics accumulates per-run and per-podcast counters and persists
// them to a JSON file on an interval and at shutdown.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/renameio/v2"
)

// maxSamples bounds the response-time window used for avg/P95
const maxSamples = 1000

// Counters is one rollup of processing activity
type Counters struct {
	EpisodesProcessed  int64 `json:"episodes_processed"`
	EpisodesFailed     int64 `json:"episodes_failed"`
	Segments           int64 `json:"segments"`
	Entities           int64 `json:"entities"`
	Relationships      int64 `json:"relationships"`
	Quotes             int64 `json:"quotes"`
	Insights           int64 `json:"insights"`
	SpeakersIdentified int64 `json:"speakers_identified"`
	LLMCalls           int64 `json:"llm_calls"`
	LLMTimeouts        int64 `json:"llm_timeouts"`
	LLMErrors          int64 `json:"llm_errors"`
	CacheHits          int64 `json:"cache_hits"`
	CacheAttempts      int64 `json:"cache_attempts"`
}

func (c *Counters) add(other Counters) {
	c.EpisodesProcessed += other.EpisodesProcessed
	c.EpisodesFailed += other.EpisodesFailed
	c.Segments += other.Segments
	c.Entities += other.Entities
	c.Relationships += other.Relationships
	c.Quotes += other.Quotes
	c.Insights += other.Insights
	c.SpeakersIdentified += other.SpeakersIdentified
	c.LLMCalls += other.LLMCalls
	c.LLMTimeouts += other.LLMTimeouts
	c.LLMErrors += other.LLMErrors
	c.CacheHits += other.CacheHits
	c.CacheAttempts += other.CacheAttempts
}

// Snapshot is what lands in the metrics file
type Snapshot struct {
	StartedAt       time.Time            `json:"started_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Run             Counters             `json:"run"`
	Podcasts        map[string]Counters  `json:"podcasts"`
	AvgResponseMs   float64              `json:"avg_response_ms"`
	P95ResponseMs   float64              `json:"p95_response_ms"`
	DiscoveredTypes []string             `json:"discovered_types,omitempty"`
}

// Recorder accumulates counters and flushes them to disk
type Recorder struct {
	path      string
	startedAt time.Time

	mu         sync.Mutex
	run        Counters
	perPodcast map[string]*Counters
	durations  []float64
	discovered []string

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewRecorder creates a recorder writing to the given metrics file path
func NewRecorder(path string) *Recorder {
	return &Recorder{
		path:       path,
		startedAt:  time.Now().UTC(),
		perPodcast: make(map[string]*Counters),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Observe merges a delta into the run rollup and the podcast's rollup
func (r *Recorder) Observe(podcastID string, delta Counters) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.run.add(delta)
	if podcastID != "" {
		if r.perPodcast[podcastID] == nil {
			r.perPodcast[podcastID] = &Counters{}
		}
		r.perPodcast[podcastID].add(delta)
	}
}

// RecordLLMCall records one completion's duration and outcome
func (r *Recorder) RecordLLMCall(podcastID string, duration time.Duration, err error) {
	delta := Counters{LLMCalls: 1}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			delta.LLMTimeouts = 1
		} else {
			delta.LLMErrors = 1
		}
	}
	r.Observe(podcastID, delta)

	r.mu.Lock()
	r.durations = append(r.durations, float64(duration.Milliseconds()))
	if len(r.durations) > maxSamples {
		r.durations = r.durations[len(r.durations)-maxSamples:]
	}
	r.mu.Unlock()
}

// RecordCacheAttempt records a prompt-cache lookup
func (r *Recorder) RecordCacheAttempt(podcastID string, hit bool) {
	delta := Counters{CacheAttempts: 1}
	if hit {
		delta.CacheHits = 1
	}
	r.Observe(podcastID, delta)
}

// SetDiscoveredTypes replaces the schemaless discovered-types set
func (r *Recorder) SetDiscoveredTypes(types []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = append([]string(nil), types...)
}

// Snapshot returns a consistent copy of the current counters
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := Snapshot{
		StartedAt:       r.startedAt,
		UpdatedAt:       time.Now().UTC(),
		Run:             r.run,
		Podcasts:        make(map[string]Counters, len(r.perPodcast)),
		DiscoveredTypes: append([]string(nil), r.discovered...),
	}
	for id, c := range r.perPodcast {
		snap.Podcasts[id] = *c
	}
	snap.AvgResponseMs, snap.P95ResponseMs = summarize(r.durations)
	return snap
}

// Flush writes the snapshot atomically to the metrics file
func (r *Recorder) Flush() error {
	if r.path == "" {
		return nil
	}
	snap := r.Snapshot()
	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metrics: %w", err)
	}
	if err := renameio.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("writing metrics file: %w", err)
	}
	return nil
}

// Start flushes on the given interval until Stop is called
func (r *Recorder) Start(interval time.Duration) {
	if interval <= 0 || r.path == "" {
		close(r.done)
		return
	}
	go func() {
		defer close(r.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.Flush(); err != nil {
					log.Printf("[ERROR] Flushing metrics: %v", err)
				}
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts the flush loop and writes a final snapshot. Idempotent.
func (r *Recorder) Stop() {
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		if err := r.Flush(); err != nil {
			log.Printf("[ERROR] Final metrics flush: %v", err)
		}
	})
}

func summarize(durations []float64) (avg, p95 float64) {
	if len(durations) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), durations...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, d := range sorted {
		sum += d
	}
	avg = sum / float64(len(sorted))

	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	p95 = sorted[idx]
	return avg, p95
}
