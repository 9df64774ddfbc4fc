package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/killallgit/podgraph/internal/models"
)

// Parser errors
var (
	ErrMalformedTranscript = errors.New("malformed transcript")
)

// Metadata holds the JSON object carried in a transcript's NOTE block
type Metadata struct {
	PodcastID    string `json:"podcast_id"`
	EpisodeID    string `json:"episode_id"`
	EpisodeTitle string `json:"episode_title"`
	YouTubeURL   string `json:"youtube_url,omitempty"`
}

// Transcript represents a parsed transcript with segments and metadata
type Transcript struct {
	Metadata *Metadata
	Segments []models.Segment
}

// FullText joins all segment texts with single spaces
func (t *Transcript) FullText() string {
	var builder strings.Builder
	for _, seg := range t.Segments {
		if builder.Len() > 0 {
			builder.WriteString(" ")
		}
		builder.WriteString(seg.Text)
	}
	return builder.String()
}

// Duration returns the end time of the last segment in seconds
func (t *Transcript) Duration() float64 {
	if len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].EndTime
}

// Parser handles parsing the time-coded transcript format
type Parser struct{}

// NewParser creates a new transcript parser
func NewParser() *Parser {
	return &Parser{}
}

// Regular expressions for cue parsing
var (
	timestampRegex = regexp.MustCompile(`(\d{2,}:\d{2}:\d{2}\.\d{3})\s*-->\s*(\d{2,}:\d{2}:\d{2}\.\d{3})`)
	voiceTagRegex  = regexp.MustCompile(`^<v\s+([^>]+)>`)
)

// Parse parses transcript content. The WEBVTT header marker is required;
// its absence fails with ErrMalformedTranscript.
func (p *Parser) Parse(content string) (*Transcript, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	headerSeen := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "WEBVTT") {
			headerSeen = true
		}
		break
	}
	if !headerSeen {
		return nil, fmt.Errorf("%w: missing WEBVTT header", ErrMalformedTranscript)
	}

	if !strings.Contains(content, "-->") {
		return nil, fmt.Errorf("%w: no cue separator found", ErrMalformedTranscript)
	}

	transcript := &Transcript{}

	var current *models.Segment
	var textBuilder strings.Builder
	inNote := false
	var noteBuilder strings.Builder

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.TrimSpace(textBuilder.String())
		transcript.Segments = append(transcript.Segments, *current)
		textBuilder.Reset()
		current = nil
	}

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "WEBVTT") {
			continue
		}

		if strings.HasPrefix(line, "NOTE") {
			flush()
			inNote = true
			noteBuilder.Reset()
			rest := strings.TrimSpace(strings.TrimPrefix(line, "NOTE"))
			if rest != "" {
				noteBuilder.WriteString(rest)
			}
			continue
		}

		if inNote {
			if line == "" {
				inNote = false
				p.parseNoteMetadata(noteBuilder.String(), transcript)
				continue
			}
			if noteBuilder.Len() > 0 {
				noteBuilder.WriteString("\n")
			}
			noteBuilder.WriteString(line)
			continue
		}

		if matches := timestampRegex.FindStringSubmatch(line); matches != nil {
			flush()

			start, err := parseTimestamp(matches[1])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedTranscript, err)
			}
			end, err := parseTimestamp(matches[2])
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformedTranscript, err)
			}

			current = &models.Segment{
				StartTime: start,
				EndTime:   end,
			}
			continue
		}

		if current != nil && line != "" && !strings.Contains(line, "-->") {
			text := line
			if matches := voiceTagRegex.FindStringSubmatch(text); matches != nil {
				if current.Speaker == "" {
					current.Speaker = strings.TrimSpace(matches[1])
				}
				text = voiceTagRegex.ReplaceAllString(text, "")
				text = strings.TrimSuffix(text, "</v>")
			}
			if textBuilder.Len() > 0 {
				textBuilder.WriteString(" ")
			}
			textBuilder.WriteString(unescapeCueText(strings.TrimSpace(text)))
		}
	}

	// A trailing NOTE block without a blank line after it
	if inNote {
		p.parseNoteMetadata(noteBuilder.String(), transcript)
	}

	flush()

	for i := range transcript.Segments {
		transcript.Segments[i].ID = i
	}

	warnOverlaps(transcript.Segments)

	return transcript, nil
}

// parseNoteMetadata tries to decode a NOTE block body as the metadata JSON
// object. Non-JSON NOTE blocks are ignored.
func (p *Parser) parseNoteMetadata(body string, t *Transcript) {
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "{") {
		return
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(body), &meta); err != nil {
		log.Printf("[DEBUG] Ignoring unparseable NOTE metadata: %v", err)
		return
	}
	if t.Metadata == nil {
		t.Metadata = &meta
	}
}

// warnOverlaps logs overlapping segments; they are allowed but unusual
func warnOverlaps(segments []models.Segment) {
	for i := 1; i < len(segments); i++ {
		if segments[i].StartTime < segments[i-1].EndTime {
			log.Printf("[DEBUG] Overlapping segments %d and %d (%.3f < %.3f)",
				i-1, i, segments[i].StartTime, segments[i-1].EndTime)
		}
	}
}

// parseTimestamp parses HH:MM:SS.mmm into seconds
func parseTimestamp(timestamp string) (float64, error) {
	parts := strings.Split(timestamp, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timestamp: %s", timestamp)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hours in timestamp: %s", timestamp)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minutes in timestamp: %s", timestamp)
	}

	secParts := strings.Split(parts[2], ".")
	seconds, err := strconv.Atoi(secParts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid seconds in timestamp: %s", timestamp)
	}
	milliseconds := 0
	if len(secParts) > 1 {
		milliseconds, err = strconv.Atoi(secParts[1])
		if err != nil {
			return 0, fmt.Errorf("invalid milliseconds in timestamp: %s", timestamp)
		}
	}

	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(milliseconds)/1000, nil
}

// unescapeCueText reverses the cue-text escaping applied on emit
func unescapeCueText(text string) string {
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&amp;", "&")
	return text
}
