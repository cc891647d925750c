// Package cache holds the in-process TTL caches used for browser sessions,
// revoked tokens and rate limiting, and the manager that sweeps them.
package cache

import (
	"sync"
	"time"

	"dompet/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// Cleaner is anything holding entries that expire.
type Cleaner interface {
	// CleanExpired drops expired entries and returns how many it dropped.
	CleanExpired() int
}

// Manager periodically sweeps every registered Cleaner.
type Manager struct {
	mu      sync.Mutex
	caches  []Cleaner
	logger  *log.Logger
	stop    chan struct{}
	done    chan struct{}
	started bool
	once    sync.Once
}

// NewManager creates a cache manager. A nil logger uses the default.
func NewManager(logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Manager{
		logger: logger.WithComponent(log.ComponentApp),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register adds caches to the sweep. Nil entries are ignored.
func (m *Manager) Register(caches ...Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range caches {
		if c != nil {
			m.caches = append(m.caches, c)
		}
	}
}

// Sweep cleans every registered cache once and returns the total removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// StartCleanup begins periodic cleanup of all registered caches. Calling it
// more than once has no effect.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("Cache cleanup completed", "entries_removed", n)
			}
		case <-m.stop:
			return
		}
	}
}

// Stop ends the cleanup goroutine and waits for it. Safe to call more than
// once, and before StartCleanup.
func (m *Manager) Stop() {
	m.once.Do(func() {
		m.mu.Lock()
		started := m.started
		m.started = true // a later StartCleanup must not spawn
		m.mu.Unlock()

		close(m.stop)
		if started {
			<-m.done
		}
	})
}
