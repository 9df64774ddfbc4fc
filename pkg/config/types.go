package config

import "time"

// Config represents the application configuration structure
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Podcast      PodcastConfig      `mapstructure:"podcast"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Processing   ProcessingConfig   `mapstructure:"processing"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	Keys         KeysConfig         `mapstructure:"keys"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	Checkpoints  CheckpointsConfig  `mapstructure:"checkpoints"`
	Extraction   ExtractionConfig   `mapstructure:"extraction"`
	Speakers     SpeakersConfig     `mapstructure:"speakers"`
	Graph        GraphConfig        `mapstructure:"graph"`
	Transcript   TranscriptConfig   `mapstructure:"transcript"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Locks        LocksConfig        `mapstructure:"locks"`
}

// PodcastConfig controls per-podcast routing
type PodcastConfig struct {
	Mode       string `mapstructure:"mode"` // single | multi
	ConfigPath string `mapstructure:"config_path"`
	Isolation  bool   `mapstructure:"isolation"`
}

// StorageConfig holds filesystem locations
type StorageConfig struct {
	DataDir      string `mapstructure:"data_dir"`
	InputDir     string `mapstructure:"input_dir"`
	ProcessedDir string `mapstructure:"processed_dir"`
}

// ProcessingConfig holds worker pool and batch settings
type ProcessingConfig struct {
	Workers          int           `mapstructure:"workers"`
	MaxQueueSize     int           `mapstructure:"max_queue_size"`
	JobTimeout       time.Duration `mapstructure:"job_timeout"`
	RetryAttempts    int           `mapstructure:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	SkipErrors       bool          `mapstructure:"skip_errors"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	JobRetentionDays int           `mapstructure:"job_retention_days"`
}

// GeminiConfig holds LLM provider settings
type GeminiConfig struct {
	Model           string        `mapstructure:"model"`
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Temperature     float64       `mapstructure:"temperature"`
	UseMock         bool          `mapstructure:"use_mock"`
}

// KeysConfig holds API key manager settings
type KeysConfig struct {
	StatePath              string                     `mapstructure:"state_path"`
	MaxConsecutiveFailures int                        `mapstructure:"max_consecutive_failures"`
	Limits                 map[string]ModelLimitsSpec `mapstructure:"limits"`
}

// ModelLimitsSpec mirrors the per-model limit entries under keys.limits
type ModelLimitsSpec struct {
	RPM int `mapstructure:"rpm"`
	TPM int `mapstructure:"tpm"`
	RPD int `mapstructure:"rpd"`
	TPD int `mapstructure:"tpd"`
}

// RateLimitingConfig holds caller-side limiter and breaker settings
type RateLimitingConfig struct {
	Rate             float64       `mapstructure:"rate"`
	Burst            int           `mapstructure:"burst"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
}

// CheckpointsConfig holds checkpoint manager settings
type CheckpointsConfig struct {
	Dir               string        `mapstructure:"dir"`
	CompressThreshold int           `mapstructure:"compress_threshold"`
	MaxAge            time.Duration `mapstructure:"max_age"`
	RetentionDays     int           `mapstructure:"retention_days"`
	Distributed       bool          `mapstructure:"distributed"`
}

// ExtractionConfig holds knowledge extractor settings
type ExtractionConfig struct {
	MaxEntitiesPerSegment     int           `mapstructure:"max_entities_per_segment"`
	MinInsightLength          int           `mapstructure:"min_insight_length"`
	MinQuoteLength            int           `mapstructure:"min_quote_length"`
	BatchSize                 int           `mapstructure:"batch_size"`
	CacheTTL                  time.Duration `mapstructure:"cache_ttl"`
	MinTranscriptSizeForCache int           `mapstructure:"min_transcript_size_for_cache"`
}

// SpeakersConfig holds speaker identifier settings
type SpeakersConfig struct {
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	CreditsWindow       int     `mapstructure:"credits_window"`
	SampleUtterances    int     `mapstructure:"sample_utterances"`
}

// GraphConfig holds graph storage settings
type GraphConfig struct {
	SchemaMode     string        `mapstructure:"schema_mode"` // fixed | schemaless | mixed
	MigrationMode  bool          `mapstructure:"migration_mode"`
	MaxConnections int           `mapstructure:"max_connections"`
	MinConnections int           `mapstructure:"min_connections"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// TranscriptConfig holds parser and segmenter settings
type TranscriptConfig struct {
	MinSegmentDuration float64 `mapstructure:"min_segment_duration"`
}

// MetricsConfig holds metrics persistence settings
type MetricsConfig struct {
	Path          string        `mapstructure:"path"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	AuditLogPath  string        `mapstructure:"audit_log_path"`
}

// LocksConfig holds deadlock observer settings
type LocksConfig struct {
	HoldWarning  time.Duration `mapstructure:"hold_warning"`
	ScanInterval time.Duration `mapstructure:"scan_interval"`
}
