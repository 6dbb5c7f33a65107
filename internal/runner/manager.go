package runner

import (
	"fmt"
	"log/slog"
	"sync"
)

// Manager owns the set of named pools the job engine submits work to.
type Manager struct {
	mu     sync.Mutex
	pools  map[string]*Pool
	logger *slog.Logger
}

// NewManager returns an empty pool manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{pools: make(map[string]*Pool), logger: logger}
}

// CreatePool registers a new named pool. It is idempotent for pools that
// were shut down: recreating a still-live pool with the same name is
// rejected.
func (m *Manager) CreatePool(name string, maxConcurrent int, defaultTimeoutMs int64) (*Pool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.pools[name]; ok {
		existing.mu.Lock()
		stopped := existing.stopped
		existing.mu.Unlock()
		if !stopped {
			return nil, fmt.Errorf("pool %s already exists and is running", name)
		}
	}

	pool := newPool(name, maxConcurrent, defaultTimeoutMs, m.logger)
	m.pools[name] = pool
	return pool, nil
}

// Pool returns the named pool, or nil if it has not been created.
func (m *Manager) Pool(name string) *Pool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pools[name]
}

// ShutdownAll shuts down every registered pool.
func (m *Manager) ShutdownAll(drain bool) {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	for _, p := range pools {
		p.Shutdown(drain)
	}
}
