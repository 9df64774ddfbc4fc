package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Writer emits the transcript file format consumed by Parser
type Writer struct{}

// NewWriter creates a new transcript writer
func NewWriter() *Writer {
	return &Writer{}
}

// Write renders a transcript to its file representation. A NOTE block with
// the metadata JSON is emitted when metadata is present.
func (w *Writer) Write(t *Transcript) (string, error) {
	var builder strings.Builder
	builder.WriteString("WEBVTT\n\n")

	if t.Metadata != nil {
		meta, err := json.Marshal(t.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshaling transcript metadata: %w", err)
		}
		builder.WriteString("NOTE\n")
		builder.Write(meta)
		builder.WriteString("\n\n")
	}

	for _, seg := range t.Segments {
		builder.WriteString(formatTimestamp(seg.StartTime))
		builder.WriteString(" --> ")
		builder.WriteString(formatTimestamp(seg.EndTime))
		builder.WriteString("\n")
		if seg.Speaker != "" {
			// The voice tag itself is never escaped, only the cue text
			builder.WriteString(fmt.Sprintf("<v %s>", seg.Speaker))
		}
		builder.WriteString(escapeCueText(seg.Text))
		builder.WriteString("\n\n")
	}

	return builder.String(), nil
}

// formatTimestamp renders seconds as HH:MM:SS.mmm
func formatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(seconds*1000 + 0.5)
	h := millis / 3600000
	m := (millis % 3600000) / 60000
	s := (millis % 60000) / 1000
	ms := millis % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// escapeCueText escapes &, < and > in cue text
func escapeCueText(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}
