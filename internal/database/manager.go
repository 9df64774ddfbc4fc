package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"
)

// Manager errors
var (
	ErrAcquireTimeout = errors.New("timed out acquiring database session")
	ErrManagerClosed  = errors.New("database manager is closed")
)

// ManagerOptions configures the shared database manager
type ManagerOptions struct {
	DataDir        string
	MaxConnections int
	MinConnections int
	AcquireTimeout time.Duration
	Verbose        bool
}

// Manager addresses multiple logical databases by name. Handles are opened
// lazily and cached, so switching podcast context never churns connections;
// concurrent sessions across all databases are bounded by MaxConnections.
type Manager struct {
	opts   ManagerOptions
	mu     sync.Mutex
	open   map[string]*DB
	sem    chan struct{}
	closed bool
}

// NewManager creates a database manager rooted at the data directory
func NewManager(opts ManagerOptions) *Manager {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 10
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 10 * time.Second
	}
	return &Manager{
		opts: opts,
		open: make(map[string]*DB),
		sem:  make(chan struct{}, opts.MaxConnections),
	}
}

// Get returns the cached handle for a logical database, opening it on demand
func (m *Manager) Get(databaseID string) (*DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	if db, ok := m.open[databaseID]; ok {
		return db, nil
	}

	path := filepath.Join(m.opts.DataDir, databaseID+".db")
	db, err := Initialize(path, m.opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", databaseID, err)
	}

	m.open[databaseID] = db
	log.Printf("[DEBUG] Opened database %s at %s", databaseID, path)
	return db, nil
}

// Session leases a bounded session on a logical database. The returned
// release function must be called on every exit path.
func (m *Manager) Session(ctx context.Context, databaseID string) (*DB, func(), error) {
	timer := time.NewTimer(m.opts.AcquireTimeout)
	defer timer.Stop()

	select {
	case m.sem <- struct{}{}:
	case <-timer.C:
		return nil, nil, ErrAcquireTimeout
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	db, err := m.Get(databaseID)
	if err != nil {
		<-m.sem
		return nil, nil, err
	}

	var once sync.Once
	release := func() {
		once.Do(func() { <-m.sem })
	}
	return db, release, nil
}

// Close closes every open handle. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	for id, db := range m.open {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing database %s: %w", id, err)
		}
	}
	m.open = make(map[string]*DB)
	return firstErr
}
