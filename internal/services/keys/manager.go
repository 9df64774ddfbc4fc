package keys

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/killallgit/podgraph/internal/models"
)

const dayFormat = "2006-01-02"

// Error-text patterns that classify provider failures
var (
	quotaPatterns     = []string{"quota", "exceeded your current quota", "resource_exhausted", "daily limit"}
	rateLimitPatterns = []string{"rate limit", "429", "too many requests", "resource has been exhausted"}
)

// Options configures the key manager
type Options struct {
	StatePath              string
	MaxConsecutiveFailures int
	// Limits maps model name to its quota limits; the "default" entry is
	// the fallback for unlisted models.
	Limits map[string]models.ModelLimits
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

// manager implements Manager with a single mutex guarding the key table
type manager struct {
	mu    sync.Mutex
	opts  Options
	keys  []string
	state []models.KeyState
	next  int
}

// NewManager initializes the key table from the configured keys and restores
// persisted state. A state file predating today triggers the daily reset
// before the first selection.
func NewManager(apiKeys []string, opts Options) (Manager, error) {
	if len(apiKeys) == 0 {
		return nil, ErrNoKeys
	}
	if opts.MaxConsecutiveFailures <= 0 {
		opts.MaxConsecutiveFailures = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	m := &manager{opts: opts, keys: apiKeys}

	now := opts.Now()
	m.state = make([]models.KeyState, len(apiKeys))
	for i, key := range apiKeys {
		m.state[i] = models.KeyState{
			Index:           i,
			KeyName:         MaskKey(i, key),
			Status:          models.KeyStatusAvailable,
			LastMinuteReset: now,
			LastDailyReset:  now,
			ModelUsage:      make(map[string]models.ModelUsage),
		}
	}

	if err := m.restore(); err != nil {
		log.Printf("[ERROR] Could not restore key state, starting fresh: %v", err)
	}

	m.mu.Lock()
	m.resetCountersLocked()
	m.mu.Unlock()

	if err := m.Flush(); err != nil {
		return nil, fmt.Errorf("persisting initial key state: %w", err)
	}

	return m, nil
}

// MaskKey builds the masked display name for a key, e.g. "key_1 (abcd…)"
func MaskKey(index int, key string) string {
	prefix := key
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return fmt.Sprintf("key_%d (%s…)", index+1, prefix)
}

func (m *manager) GetNextKey(model string) (string, int, error) {
	return m.selectKey(model, 0)
}

func (m *manager) GetAvailableKeyForQuota(model string, tokensNeeded int) (string, int, error) {
	return m.selectKey(model, tokensNeeded)
}

// selectKey walks the table round-robin from the cursor, skipping keys that
// are unavailable or over a limit for the model.
func (m *manager) selectKey(model string, tokensNeeded int) (string, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetCountersLocked()
	limits := m.limitsFor(model)

	for offset := 0; offset < len(m.state); offset++ {
		i := (m.next + offset) % len(m.state)
		ks := &m.state[i]

		if ks.Status != models.KeyStatusAvailable {
			continue
		}
		if limits.RPM > 0 && ks.RequestsThisMinute >= limits.RPM {
			continue
		}
		if limits.RPD > 0 && ks.RequestsToday >= limits.RPD {
			continue
		}
		if limits.TPM > 0 && ks.TokensThisMinute >= limits.TPM {
			continue
		}
		if tokensNeeded > 0 && limits.TPD > 0 && ks.TokensToday+tokensNeeded > limits.TPD {
			continue
		}

		m.next = (i + 1) % len(m.state)
		return m.keys[i], i, nil
	}

	return "", -1, ErrNoKeyAvailable
}

func (m *manager) MarkKeySuccess(index int) error {
	m.mu.Lock()
	if err := m.checkIndex(index); err != nil {
		m.mu.Unlock()
		return err
	}

	ks := &m.state[index]
	ks.Status = models.KeyStatusAvailable
	ks.ConsecutiveFailures = 0
	ks.LastUsed = m.opts.Now()
	ks.LastError = ""
	m.mu.Unlock()

	return m.Flush()
}

func (m *manager) MarkKeyFailure(index int, errText string) error {
	m.mu.Lock()
	if err := m.checkIndex(index); err != nil {
		m.mu.Unlock()
		return err
	}

	ks := &m.state[index]
	ks.ConsecutiveFailures++
	ks.LastError = errText

	lower := strings.ToLower(errText)
	switch {
	case matchesAny(lower, quotaPatterns):
		ks.Status = models.KeyStatusQuotaExceeded
	case matchesAny(lower, rateLimitPatterns):
		ks.Status = models.KeyStatusRateLimited
	case ks.ConsecutiveFailures >= m.opts.MaxConsecutiveFailures:
		ks.Status = models.KeyStatusError
	}

	log.Printf("[DEBUG] Key %s failure #%d (status now %s): %s",
		ks.KeyName, ks.ConsecutiveFailures, ks.Status, truncate(errText, 120))
	m.mu.Unlock()

	return m.Flush()
}

func (m *manager) UpdateKeyUsage(index int, tokensUsed int, model string) error {
	m.mu.Lock()
	if err := m.checkIndex(index); err != nil {
		m.mu.Unlock()
		return err
	}

	m.resetCountersLocked()

	ks := &m.state[index]
	ks.RequestsThisMinute++
	ks.TokensThisMinute += tokensUsed
	ks.RequestsToday++
	ks.TokensToday += tokensUsed

	usage := ks.ModelUsage[model]
	usage.Requests++
	usage.Tokens += tokensUsed
	ks.ModelUsage[model] = usage
	m.mu.Unlock()

	return m.Flush()
}

func (m *manager) Snapshot() []models.KeyState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// snapshotLocked deep-copies the key table, including the per-model usage
// maps, so callers can hand the slice out of the lock. Callers hold the mutex.
func (m *manager) snapshotLocked() []models.KeyState {
	out := make([]models.KeyState, len(m.state))
	for i, ks := range m.state {
		copied := ks
		copied.ModelUsage = make(map[string]models.ModelUsage, len(ks.ModelUsage))
		for k, v := range ks.ModelUsage {
			copied.ModelUsage[k] = v
		}
		out[i] = copied
	}
	return out
}

// Flush writes the key-state file atomically (temp + rename)
func (m *manager) Flush() error {
	m.mu.Lock()
	file := models.KeyStateFile{
		CurrentIndex: m.next,
		LastReset:    m.opts.Now().Format(dayFormat),
		KeyStates:    m.snapshotLocked(),
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling key state: %w", err)
	}

	if dir := filepath.Dir(m.opts.StatePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating key state directory: %w", err)
		}
	}

	if err := renameio.WriteFile(m.opts.StatePath, data, 0644); err != nil {
		return fmt.Errorf("writing key state file: %w", err)
	}
	return nil
}

func (m *manager) Close() error {
	return m.Flush()
}

// restore loads the persisted key-state file when present. Counters are
// merged by index; keys added since the last run keep fresh state.
func (m *manager) restore() error {
	data, err := os.ReadFile(m.opts.StatePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading key state file: %w", err)
	}

	var file models.KeyStateFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing key state file: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if file.CurrentIndex >= 0 && file.CurrentIndex < len(m.state) {
		m.next = file.CurrentIndex
	}
	for _, saved := range file.KeyStates {
		if saved.Index < 0 || saved.Index >= len(m.state) {
			continue
		}
		if saved.ModelUsage == nil {
			saved.ModelUsage = make(map[string]models.ModelUsage)
		}
		saved.KeyName = m.state[saved.Index].KeyName
		m.state[saved.Index] = saved
	}
	return nil
}

// resetCountersLocked applies the minute and daily resets. Callers hold the mutex.
func (m *manager) resetCountersLocked() {
	now := m.opts.Now()
	for i := range m.state {
		ks := &m.state[i]

		if now.Sub(ks.LastMinuteReset) > time.Minute {
			ks.RequestsThisMinute = 0
			ks.TokensThisMinute = 0
			ks.LastMinuteReset = now
		}

		if now.Format(dayFormat) != ks.LastDailyReset.Format(dayFormat) && now.After(ks.LastDailyReset) {
			ks.RequestsToday = 0
			ks.TokensToday = 0
			ks.ModelUsage = make(map[string]models.ModelUsage)
			ks.LastDailyReset = now
			// Quota statuses are daily; give the key another chance
			if ks.Status == models.KeyStatusQuotaExceeded || ks.Status == models.KeyStatusRateLimited {
				ks.Status = models.KeyStatusAvailable
				ks.ConsecutiveFailures = 0
			}
		}
	}
}

func (m *manager) limitsFor(model string) models.ModelLimits {
	if limits, ok := m.opts.Limits[model]; ok {
		return limits
	}
	return m.opts.Limits["default"]
}

func (m *manager) checkIndex(index int) error {
	if index < 0 || index >= len(m.state) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	return nil
}

func matchesAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
