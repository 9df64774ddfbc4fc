package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// Podcast represents a configured podcast feed routed to its own database
type Podcast struct {
	gorm.Model
	PodcastID   string `json:"podcast_id" gorm:"uniqueIndex;not null"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description"`
	FeedURL     string `json:"feed_url"`
	Enabled     bool   `json:"enabled" gorm:"default:true"`
	DatabaseID  string `json:"database_id" gorm:"not null"`
}

// EpisodeStatus tracks where an episode is in the processing pipeline
type EpisodeStatus string

const (
	EpisodeStatusNew                EpisodeStatus = "new"
	EpisodeStatusDiscovered         EpisodeStatus = "discovered"
	EpisodeStatusTranscribing       EpisodeStatus = "transcribing"
	EpisodeStatusTranscribed        EpisodeStatus = "transcribed"
	EpisodeStatusSpeakersIdentified EpisodeStatus = "speakers_identified"
	EpisodeStatusTranscriptEmitted  EpisodeStatus = "transcript_emitted"
	EpisodeStatusExtracting         EpisodeStatus = "extracting"
	EpisodeStatusExtracted          EpisodeStatus = "extracted"
	EpisodeStatusStored             EpisodeStatus = "stored"
	EpisodeStatusStoredNotMoved     EpisodeStatus = "stored_not_moved"
	EpisodeStatusMoved              EpisodeStatus = "moved"
	EpisodeStatusCompleted          EpisodeStatus = "completed"
	EpisodeStatusFailed             EpisodeStatus = "failed"
)

// IsTerminal returns true if the episode is in a terminal state
func (s EpisodeStatus) IsTerminal() bool {
	return s == EpisodeStatusCompleted || s == EpisodeStatusFailed
}

// Episode represents a podcast episode moving through the pipeline
type Episode struct {
	gorm.Model
	// EpisodeID is a content-addressed hash, stable across re-runs of the same feed
	EpisodeID   string `json:"episode_id" gorm:"uniqueIndex;not null"`
	PodcastID   string `json:"podcast_id" gorm:"index;not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	GUID        string `json:"guid"`
	AudioURL    string `json:"audio_url"`
	YouTubeURL  string `json:"youtube_url"`
	Duration    *int   `json:"duration"` // Duration in seconds, nullable

	PublishedAt time.Time `json:"published_at"`

	// Pipeline state
	Status         EpisodeStatus `json:"status" gorm:"default:'new';index"`
	FailureReason  string        `json:"failure_reason,omitempty"`
	TranscriptPath string        `json:"transcript_path,omitempty"`
	ProcessedPath  string        `json:"processed_path,omitempty"`
}

// ComputeEpisodeID derives the stable content-addressed episode identifier.
// The GUID wins when present; otherwise title and audio URL are hashed together.
func ComputeEpisodeID(guid, title, audioURL string) string {
	h := sha256.New()
	if guid != "" {
		h.Write([]byte(guid))
	} else {
		h.Write([]byte(title))
		h.Write([]byte{0})
		h.Write([]byte(audioURL))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Segment is a time-coded utterance within an episode
type Segment struct {
	ID        int     `json:"id"`
	StartTime float64 `json:"start_time"` // seconds
	EndTime   float64 `json:"end_time"`   // seconds
	Speaker   string  `json:"speaker,omitempty"`
	Text      string  `json:"text"`
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	return s.EndTime - s.StartTime
}

// TableName specifies the table name for Podcast
func (Podcast) TableName() string {
	return "podcasts"
}

// TableName specifies the table name for Episode
func (Episode) TableName() string {
	return "episodes"
}
