package keys

import (
	"errors"

	"github.com/killallgit/podgraph/internal/models"
)

// Manager errors
var (
	ErrNoKeyAvailable = errors.New("no API key available")
	ErrInvalidIndex   = errors.New("key index out of range")
	ErrNoKeys         = errors.New("no API keys configured")
)

// Manager selects usable API keys honoring per-model RPM/TPM/RPD quotas.
// It is shared across parallel callers; every operation is safe for
// concurrent use.
type Manager interface {
	// GetNextKey selects the next usable key in round-robin order for the
	// model. Fails with ErrNoKeyAvailable when every key is ineligible.
	GetNextKey(model string) (key string, index int, err error)

	// GetAvailableKeyForQuota is GetNextKey with an additional check that
	// the key's daily token budget can absorb tokensNeeded.
	GetAvailableKeyForQuota(model string, tokensNeeded int) (key string, index int, err error)

	// MarkKeySuccess resets failure state and stamps last-used.
	MarkKeySuccess(index int) error

	// MarkKeyFailure classifies the error text and transitions the key's
	// status accordingly.
	MarkKeyFailure(index int, errText string) error

	// UpdateKeyUsage adds to the key's minute, day, and per-model counters.
	UpdateKeyUsage(index int, tokensUsed int, model string) error

	// Snapshot returns a consistent copy of all key states.
	Snapshot() []models.KeyState

	// Flush persists the key-state table to disk.
	Flush() error

	// Close flushes state and releases resources. Idempotent.
	Close() error
}
