package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/killallgit/podgraph/internal/models"
)

// AuditLog appends speaker-mapping audit records to a durable JSON-lines
// file. The graph mirror is written separately by the storage layer.
type AuditLog struct {
	mu   sync.Mutex
	file *os.File
}

// OpenAuditLog opens (or creates) the audit log for appending
func OpenAuditLog(path string) (*AuditLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &AuditLog{file: f}, nil
}

// Append writes one record per line and syncs
func (a *AuditLog) Append(records ...models.SpeakerAudit) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, record := range records {
		line, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("marshaling audit record: %w", err)
		}
		if _, err := a.file.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("appending audit record: %w", err)
		}
	}
	return a.file.Sync()
}

// Close closes the underlying file. Idempotent.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
