package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	once    sync.Once
	initErr error
)

// Init initializes the configuration system.
// This should be called once at application startup.
func Init() error {
	once.Do(func() {
		// A .env file is optional; ignore the error when it is absent
		_ = godotenv.Load()

		// Set default values
		setDefaults()

		// Set up environment variable reading for overrides
		viper.SetEnvPrefix("PODGRAPH")
		viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		viper.AutomaticEnv()

		// The documented environment contract wins over the prefixed form
		bindLegacyEnv()

		// Load config from fixed location (cleaned for safety)
		configPath := filepath.Clean("./config/settings.yaml")
		if explicit := os.Getenv("PODCAST_CONFIG_PATH"); explicit != "" {
			// PODCAST_CONFIG_PATH points at the podcast registry, whose directory
			// may also hold settings.yaml
			if candidate := filepath.Join(filepath.Dir(explicit), "settings.yaml"); fileExists(candidate) {
				configPath = candidate
			}
		}
		viper.SetConfigFile(configPath)

		// Try to read the config file
		if err := viper.ReadInConfig(); err != nil {
			// If the config file doesn't exist, just use defaults and env vars
			if !os.IsNotExist(err) {
				initErr = fmt.Errorf("error reading config file %s: %w", configPath, err)
				return
			}
		}

		// Validate the configuration
		if err := validate(); err != nil {
			initErr = fmt.Errorf("invalid configuration: %w", err)
		}
	})

	return initErr
}

// GetConfig returns the current configuration as a struct.
// Init() must be called before using this.
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// APIKeys returns the configured Gemini API keys in index order.
// GEMINI_API_KEY_1..N are read until the first gap; when no numbered key is
// present, GEMINI_API_KEY is used as a single-key fallback.
func APIKeys() []string {
	var keys []string
	for i := 1; ; i++ {
		key := os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i))
		if key == "" {
			break
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// bindLegacyEnv maps the documented bare environment variables onto viper keys
func bindLegacyEnv() {
	pairs := map[string]string{
		"podcast.mode":        "PODCAST_MODE",
		"podcast.config_path": "PODCAST_CONFIG_PATH",
		"storage.data_dir":    "PODCAST_DATA_DIR",
		"storage.input_dir":   "VTT_INPUT_DIR",
		"storage.processed_dir": "PROCESSED_DIR",
	}
	for key, env := range pairs {
		if v := os.Getenv(env); v != "" {
			viper.Set(key, v)
		}
	}
}

// validate validates the configuration using Viper values
func validate() error {
	mode := viper.GetString("podcast.mode")
	if mode != "single" && mode != "multi" {
		return fmt.Errorf("invalid podcast mode: %s (must be single or multi)", mode)
	}

	schemaMode := viper.GetString("graph.schema_mode")
	switch schemaMode {
	case "fixed", "schemaless", "mixed":
	default:
		return fmt.Errorf("unknown graph schema mode: %s", schemaMode)
	}

	if viper.GetString("storage.data_dir") == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}

	// Auto-correct invalid worker count
	if viper.GetInt("processing.workers") <= 0 {
		viper.Set("processing.workers", 2)
	}

	// Auto-correct invalid queue size
	if viper.GetInt("processing.max_queue_size") <= 0 {
		viper.Set("processing.max_queue_size", 100)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// setDefaults sets default configuration values
func setDefaults() {
	// Environment defaults
	viper.SetDefault("environment", "development")

	// Podcast routing defaults
	viper.SetDefault("podcast.mode", "single")
	viper.SetDefault("podcast.config_path", "./config/podcasts.yaml")
	viper.SetDefault("podcast.isolation", true)

	// Storage defaults
	viper.SetDefault("storage.data_dir", "./data")
	viper.SetDefault("storage.input_dir", "./data/inbox")
	viper.SetDefault("storage.processed_dir", "./data/processed")

	// Processing defaults
	viper.SetDefault("processing.workers", 2)
	viper.SetDefault("processing.max_queue_size", 100)
	viper.SetDefault("processing.job_timeout", 30*time.Minute)
	viper.SetDefault("processing.retry_attempts", 3)
	viper.SetDefault("processing.retry_delay", 5*time.Second)
	viper.SetDefault("processing.skip_errors", true)
	viper.SetDefault("processing.poll_interval", 1*time.Second)
	viper.SetDefault("processing.job_retention_days", 30)

	// Gemini defaults
	viper.SetDefault("gemini.model", "gemini-2.0-flash")
	viper.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.timeout", 2*time.Minute)
	viper.SetDefault("gemini.max_output_tokens", 8192)
	viper.SetDefault("gemini.temperature", 0.2)
	viper.SetDefault("gemini.use_mock", false)

	// Key manager defaults
	viper.SetDefault("keys.state_path", "./data/key_state.json")
	viper.SetDefault("keys.max_consecutive_failures", 3)
	viper.SetDefault("keys.limits.default.rpm", 15)
	viper.SetDefault("keys.limits.default.tpm", 1000000)
	viper.SetDefault("keys.limits.default.rpd", 1500)
	viper.SetDefault("keys.limits.default.tpd", 50000000)

	// Caller-side rate limiting defaults
	viper.SetDefault("rate_limiting.rate", 2.0)
	viper.SetDefault("rate_limiting.burst", 4)
	viper.SetDefault("rate_limiting.failure_threshold", 5)
	viper.SetDefault("rate_limiting.recovery_timeout", 30*time.Second)

	// Checkpoint defaults
	viper.SetDefault("checkpoints.dir", "./data/checkpoints")
	viper.SetDefault("checkpoints.compress_threshold", 4096)
	viper.SetDefault("checkpoints.max_age", 24*time.Hour)
	viper.SetDefault("checkpoints.retention_days", 7)
	viper.SetDefault("checkpoints.distributed", false)

	// Extraction defaults
	viper.SetDefault("extraction.max_entities_per_segment", 50)
	viper.SetDefault("extraction.min_insight_length", 20)
	viper.SetDefault("extraction.min_quote_length", 10)
	viper.SetDefault("extraction.batch_size", 5)
	viper.SetDefault("extraction.cache_ttl", 1*time.Hour)
	viper.SetDefault("extraction.min_transcript_size_for_cache", 32768)

	// Speaker identification defaults
	viper.SetDefault("speakers.confidence_threshold", 0.7)
	viper.SetDefault("speakers.credits_window", 10)
	viper.SetDefault("speakers.sample_utterances", 5)

	// Graph storage defaults
	viper.SetDefault("graph.schema_mode", "fixed")
	viper.SetDefault("graph.migration_mode", false)
	viper.SetDefault("graph.max_connections", 10)
	viper.SetDefault("graph.min_connections", 1)
	viper.SetDefault("graph.acquire_timeout", 10*time.Second)

	// Segmenter defaults
	viper.SetDefault("transcript.min_segment_duration", 2.0)

	// Metrics defaults
	viper.SetDefault("metrics.path", "./data/metrics.json")
	viper.SetDefault("metrics.flush_interval", 1*time.Minute)
	viper.SetDefault("metrics.audit_log_path", "./data/speaker_audit.log")

	// Deadlock observer defaults
	viper.SetDefault("locks.hold_warning", 30*time.Second)
	viper.SetDefault("locks.scan_interval", 10*time.Second)
}
