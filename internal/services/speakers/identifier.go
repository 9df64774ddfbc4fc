// Package speakers replaces generic diarization labels (Speaker 0, Guest
// Expert) with real names using a cascade of increasingly expensive
// strategies: episode description, self-introductions, closing credits, an
// external channel description, and finally an LLM prompt.
package speakers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/killallgit/podgraph/internal/models"
	"github.com/killallgit/podgraph/internal/services/llm"
)

// genericLabelPattern matches placeholder speaker labels emitted by upstream
// diarization
var genericLabelPattern = regexp.MustCompile(`^(Speaker|Guest|Host|Co-host)(\s*\d+| \(.*\))?$`)

// IsGenericLabel reports whether a speaker label is a diarization placeholder
func IsGenericLabel(label string) bool {
	return genericLabelPattern.MatchString(strings.TrimSpace(label))
}

var (
	// proper-noun phrase after a role marker in episode descriptions
	descriptionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)host(?:ed by|s?):?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
		regexp.MustCompile(`(?i)guests?:?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
		regexp.MustCompile(`(?i)(?:join us as we welcome|welcoming|featuring)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
	}

	selfIntroPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:I'm|I am)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
		regexp.MustCompile(`[Mm]y name is\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
		regexp.MustCompile(`[Tt]his is\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
	}

	creditsPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)thanks to our guest,?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
		regexp.MustCompile(`(?i)produced by\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
		regexp.MustCompile(`(?i)your host,?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,2})`),
	}
)

// strategy confidences; anything below Options.ConfidenceThreshold falls
// back to a descriptive role
const (
	confSelfIntro   = 0.9
	confDescription = 0.8
	confCredits     = 0.75
	confChannel     = 0.7
	confLLM         = 0.75
	confFallback    = 0.5
)

// closingCreditsWindow is how many trailing segments the credits scan reads
const closingCreditsWindow = 10

// maxSampleUtterances bounds the per-speaker sample in the LLM prompt
const maxSampleUtterances = 5

// Options configures the identifier
type Options struct {
	Model               string
	ConfidenceThreshold float64
}

type identifier struct {
	client  llm.Client
	fetcher ChannelFetcher
	opts    Options

	mu    sync.Mutex
	cache map[string]map[string]cachedMapping
}

type cachedMapping struct {
	name       string
	confidence float64
	source     models.AuditSource
}

// NewIdentifier creates the cascade. The LLM client and channel fetcher are
// both optional; nil skips the corresponding strategy.
func NewIdentifier(client llm.Client, fetcher ChannelFetcher, opts Options) Identifier {
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = 0.7
	}
	return &identifier{
		client:  client,
		fetcher: fetcher,
		opts:    opts,
		cache:   make(map[string]map[string]cachedMapping),
	}
}

func (id *identifier) Identify(ctx context.Context, req Request) (Mapping, error) {
	mapping := Mapping{
		Names:      make(map[string]string),
		Confidence: make(map[string]float64),
		Sources:    make(map[string]models.AuditSource),
	}

	labels := genericLabels(req.Segments)
	if len(labels) == 0 {
		return mapping, nil
	}

	// stable host identifications are reused across a podcast's episodes
	remaining := id.applyCached(req.PodcastID, labels, &mapping)

	if len(remaining) > 0 {
		remaining = id.tryDescription(req, remaining, &mapping)
	}
	if len(remaining) > 0 {
		remaining = id.trySelfIntro(req, remaining, &mapping)
	}
	if len(remaining) > 0 {
		remaining = id.tryCredits(req, remaining, &mapping)
	}
	if len(remaining) > 0 {
		remaining = id.tryChannel(ctx, req, remaining, &mapping)
	}
	if len(remaining) > 0 {
		var err error
		remaining, err = id.tryLLM(ctx, req, remaining, &mapping)
		if err != nil {
			return mapping, err
		}
	}

	id.applyRoleFallback(labels, remaining, &mapping)
	id.storeCached(req.PodcastID, mapping)

	return mapping, nil
}

// genericLabels collects the distinct placeholder labels in first-appearance
// order
func genericLabels(segments []models.Segment) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, seg := range segments {
		if seg.Speaker == "" || seen[seg.Speaker] || !IsGenericLabel(seg.Speaker) {
			continue
		}
		seen[seg.Speaker] = true
		labels = append(labels, seg.Speaker)
	}
	return labels
}

func (id *identifier) applyCached(podcastID string, labels []string, mapping *Mapping) []string {
	id.mu.Lock()
	defer id.mu.Unlock()

	cached := id.cache[podcastID]
	if cached == nil {
		return labels
	}

	var remaining []string
	for _, label := range labels {
		if hit, ok := cached[label]; ok {
			mapping.Names[label] = hit.name
			mapping.Confidence[label] = hit.confidence
			mapping.Sources[label] = hit.source
			continue
		}
		remaining = append(remaining, label)
	}
	return remaining
}

func (id *identifier) storeCached(podcastID string, mapping Mapping) {
	id.mu.Lock()
	defer id.mu.Unlock()

	if id.cache[podcastID] == nil {
		id.cache[podcastID] = make(map[string]cachedMapping)
	}
	for label, name := range mapping.Names {
		// role fallbacks are positional, not identities; do not pin them
		// across episodes
		if mapping.Sources[label] == models.AuditSourceFallback {
			continue
		}
		id.cache[podcastID][label] = cachedMapping{
			name:       name,
			confidence: mapping.Confidence[label],
			source:     mapping.Sources[label],
		}
	}
}

func (id *identifier) tryDescription(req Request, labels []string, mapping *Mapping) []string {
	names := matchAll(descriptionPatterns, req.EpisodeDescription)
	return assignInOrder(labels, names, confDescription, models.AuditSourceDescription, mapping)
}

// trySelfIntro searches each speaker's own utterances for an introduction
func (id *identifier) trySelfIntro(req Request, labels []string, mapping *Mapping) []string {
	var remaining []string
	for _, label := range labels {
		name := ""
		for _, seg := range req.Segments {
			if seg.Speaker != label {
				continue
			}
			for _, pattern := range selfIntroPatterns {
				if m := pattern.FindStringSubmatch(seg.Text); m != nil {
					name = m[1]
					break
				}
			}
			if name != "" {
				break
			}
		}
		if name != "" {
			mapping.Names[label] = name
			mapping.Confidence[label] = confSelfIntro
			mapping.Sources[label] = models.AuditSourcePattern
			continue
		}
		remaining = append(remaining, label)
	}
	return remaining
}

func (id *identifier) tryCredits(req Request, labels []string, mapping *Mapping) []string {
	start := len(req.Segments) - closingCreditsWindow
	if start < 0 {
		start = 0
	}
	var tail strings.Builder
	for _, seg := range req.Segments[start:] {
		tail.WriteString(seg.Text)
		tail.WriteString(" ")
	}

	names := matchAll(creditsPatterns, tail.String())
	return assignInOrder(labels, names, confCredits, models.AuditSourceCredits, mapping)
}

func (id *identifier) tryChannel(ctx context.Context, req Request, labels []string, mapping *Mapping) []string {
	if id.fetcher == nil || req.YouTubeURL == "" {
		return labels
	}

	description, err := id.fetcher.Description(ctx, req.YouTubeURL)
	if err != nil {
		log.Printf("[DEBUG] Channel description fetch failed for %s: %v", req.YouTubeURL, err)
		return labels
	}

	names := matchAll(descriptionPatterns, description)
	return assignInOrder(labels, names, confChannel, models.AuditSourceChannel, mapping)
}

func (id *identifier) tryLLM(ctx context.Context, req Request, labels []string, mapping *Mapping) ([]string, error) {
	if id.client == nil {
		return labels, nil
	}

	prompt := buildIdentificationPrompt(req, labels, mapping)
	resp, err := id.client.Complete(ctx, llm.Request{Model: id.opts.Model, Prompt: prompt, PodcastID: req.PodcastID})
	if err != nil {
		return labels, fmt.Errorf("speaker identification call failed: %w", err)
	}

	names := parseLLMMapping(resp.Text)

	var remaining []string
	for _, label := range labels {
		name, ok := names[label]
		if !ok || len(name) < 2 || strings.EqualFold(name, "UNKNOWN") {
			remaining = append(remaining, label)
			continue
		}
		mapping.Names[label] = name
		mapping.Confidence[label] = confLLM
		mapping.Sources[label] = models.AuditSourceLLM
	}
	return remaining, nil
}

// applyRoleFallback maps anything still unresolved, or resolved below the
// confidence threshold, onto a descriptive role
func (id *identifier) applyRoleFallback(all, unresolved []string, mapping *Mapping) {
	for label, conf := range mapping.Confidence {
		if conf < id.opts.ConfidenceThreshold {
			unresolved = append(unresolved, label)
		}
	}

	for _, label := range unresolved {
		mapping.Names[label] = roleFor(label, all)
		mapping.Confidence[label] = confFallback
		mapping.Sources[label] = models.AuditSourceFallback
	}
}

func roleFor(label string, all []string) string {
	if len(all) == 1 {
		return "Host/Narrator"
	}
	for i, l := range all {
		if l == label {
			if i == 0 {
				return "Primary Speaker"
			}
			return fmt.Sprintf("Speaker %d", i+1)
		}
	}
	return "Primary Speaker"
}

func matchAll(patterns []*regexp.Regexp, text string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, pattern := range patterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			name := strings.TrimSpace(m[1])
			if len(name) >= 2 && !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// assignInOrder pairs extracted names with labels in appearance order
func assignInOrder(labels, names []string, confidence float64, source models.AuditSource, mapping *Mapping) []string {
	var remaining []string
	for i, label := range labels {
		if i < len(names) {
			mapping.Names[label] = names[i]
			mapping.Confidence[label] = confidence
			mapping.Sources[label] = source
			continue
		}
		remaining = append(remaining, label)
	}
	return remaining
}

func buildIdentificationPrompt(req Request, labels []string, mapping *Mapping) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Identify the real names of the speakers in this podcast episode.\n\n")
	fmt.Fprintf(&sb, "Podcast: %s\nEpisode: %s\n", req.PodcastName, req.EpisodeTitle)
	if req.EpisodeDescription != "" {
		fmt.Fprintf(&sb, "Description: %s\n", req.EpisodeDescription)
	}
	if len(mapping.Names) > 0 {
		keys := make([]string, 0, len(mapping.Names))
		for k := range mapping.Names {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Already identified: ")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s = %s", k, mapping.Names[k])
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\nSample utterances per speaker:\n")
	for _, label := range labels {
		count := 0
		for _, seg := range req.Segments {
			if seg.Speaker != label {
				continue
			}
			fmt.Fprintf(&sb, "%s: %s\n", label, seg.Text)
			count++
			if count >= maxSampleUtterances {
				break
			}
		}
	}

	sb.WriteString("\nReturn ONLY a JSON object mapping each label to a name, ")
	sb.WriteString(`e.g. {"Speaker 0": "Jane Doe"}. Use "UNKNOWN" when unsure.`)
	return sb.String()
}

func parseLLMMapping(raw string) map[string]string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil
	}
	var names map[string]string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &names); err != nil {
		log.Printf("[DEBUG] Failed to parse speaker identification response: %v", err)
		return nil
	}
	return names
}
