package locks

import (
	"log"
	"sync"
	"time"
)

// Tracker observes resource acquisitions and logs a warning when a hold
// exceeds the configured threshold. It never forcibly releases anything.
type Tracker struct {
	mu          sync.Mutex
	held        map[string]time.Time
	holdWarning time.Duration
	stopChan    chan struct{}
	wg          sync.WaitGroup
	started     bool
}

// NewTracker creates a tracker that warns after holdWarning
func NewTracker(holdWarning time.Duration) *Tracker {
	if holdWarning <= 0 {
		holdWarning = 30 * time.Second
	}
	return &Tracker{
		held:        make(map[string]time.Time),
		holdWarning: holdWarning,
		stopChan:    make(chan struct{}),
	}
}

// Acquired records that a named resource is now held
func (t *Tracker) Acquired(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.held[name] = time.Now()
}

// Released records that a named resource was released
func (t *Tracker) Released(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.held, name)
}

// Start begins the periodic scan in a goroutine
func (t *Tracker) Start(scanInterval time.Duration) {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	if scanInterval <= 0 {
		scanInterval = 10 * time.Second
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(scanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopChan:
				return
			case <-ticker.C:
				t.scan()
			}
		}
	}()
}

// Stop stops the observer goroutine
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	t.mu.Unlock()

	close(t.stopChan)
	t.wg.Wait()
}

func (t *Tracker) scan() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for name, since := range t.held {
		if held := now.Sub(since); held > t.holdWarning {
			log.Printf("[ERROR] Resource %s held for %s (threshold %s) - possible deadlock",
				name, held.Round(time.Second), t.holdWarning)
		}
	}
}
