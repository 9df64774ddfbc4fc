package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditSource says which identification strategy produced a speaker mapping
type AuditSource string

const (
	AuditSourcePattern     AuditSource = "pattern"
	AuditSourceCredits     AuditSource = "credits"
	AuditSourceDescription AuditSource = "description"
	AuditSourceChannel     AuditSource = "channel"
	AuditSourceLLM         AuditSource = "llm"
	AuditSourceFallback    AuditSource = "fallback"
)

// SpeakerAudit is an append-only record of a speaker-label remapping
// applied to stored data
type SpeakerAudit struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	EpisodeID  string         `json:"episode_id" gorm:"index;not null"`
	PodcastID  string         `json:"podcast_id" gorm:"index"`
	OldLabel   string         `json:"old_label" gorm:"not null"`
	NewLabel   string         `json:"new_label" gorm:"not null"`
	Source     AuditSource    `json:"source"`
	Confidence float64        `json:"confidence"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for SpeakerAudit
func (SpeakerAudit) TableName() string {
	return "speaker_audits"
}
