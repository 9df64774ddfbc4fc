package models

import "time"

// CheckpointVersion is the current checkpoint payload format version.
// Older versions are migrated on load through the registered migrations.
const CheckpointVersion = "3.0"

// Stage names an individually checkpointed step of the per-episode pipeline
type Stage string

const (
	StageDiscover         Stage = "discover"
	StageTranscribe       Stage = "transcribe"
	StageIdentifySpeakers Stage = "identify_speakers"
	StageEmitTranscript   Stage = "emit_transcript"
	StageExtractKnowledge Stage = "extract_knowledge"
	StageStore            Stage = "store"
	StageMove             Stage = "move"
	StageComplete         Stage = "complete"
)

// PipelineStages lists the stages in execution order
var PipelineStages = []Stage{
	StageDiscover,
	StageTranscribe,
	StageIdentifySpeakers,
	StageEmitTranscript,
	StageExtractKnowledge,
	StageStore,
	StageMove,
	StageComplete,
}

// CheckpointMeta is the sidecar metadata JSON written next to each checkpoint
type CheckpointMeta struct {
	Version    string    `json:"version"`
	EpisodeID  string    `json:"episode_id"`
	Stage      string    `json:"stage"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Compressed bool      `json:"compressed"`
	SizeBytes  int64     `json:"size_bytes"`
	Checksum   string    `json:"checksum"`
}
