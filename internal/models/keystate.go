package models

import "time"

// KeyStatus represents the availability of an API key
type KeyStatus string

const (
	KeyStatusAvailable     KeyStatus = "available"
	KeyStatusRateLimited   KeyStatus = "rate_limited"
	KeyStatusQuotaExceeded KeyStatus = "quota_exceeded"
	KeyStatusError         KeyStatus = "error"
)

// ModelUsage tracks request and token counts for one model on one key
type ModelUsage struct {
	Requests int `json:"requests"`
	Tokens   int `json:"tokens"`
}

// KeyState holds the per-key counters and status guarded by the key manager
type KeyState struct {
	Index               int                   `json:"index"`
	KeyName             string                `json:"key_name"` // masked, e.g. "key_1 (abcd…)"
	Status              KeyStatus             `json:"status"`
	ConsecutiveFailures int                   `json:"consecutive_failures"`
	LastUsed            time.Time             `json:"last_used"`
	RequestsToday       int                   `json:"requests_today"`
	TokensToday         int                   `json:"tokens_today"`
	RequestsThisMinute  int                   `json:"requests_this_minute"`
	TokensThisMinute    int                   `json:"tokens_this_minute"`
	LastMinuteReset     time.Time             `json:"last_minute_reset"`
	LastDailyReset      time.Time             `json:"last_daily_reset"`
	ModelUsage          map[string]ModelUsage `json:"model_usage"`
	LastError           string                `json:"last_error,omitempty"`
}

// KeyStateFile is the on-disk document, atomically replaced on each write
type KeyStateFile struct {
	CurrentIndex int        `json:"current_index"`
	LastReset    string     `json:"last_reset"` // YYYY-MM-DD
	KeyStates    []KeyState `json:"key_states"`
}

// ModelLimits are the per-model quota limits with a "default" fallback entry
type ModelLimits struct {
	RPM int `json:"rpm" mapstructure:"rpm"` // requests per minute
	TPM int `json:"tpm" mapstructure:"tpm"` // tokens per minute
	RPD int `json:"rpd" mapstructure:"rpd"` // requests per day
	TPD int `json:"tpd" mapstructure:"tpd"` // tokens per day
}
