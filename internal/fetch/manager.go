package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Manager is a frozen registry of named Fetchers, mirroring
// DataFetchManager: fetchers are registered once at startup and looked
// up by name on every job.
type Manager struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
	log      *slog.Logger
}

// NewManager returns an empty Manager.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{fetchers: make(map[string]Fetcher), log: log}
}

// Register adds a fetcher under name, overwriting any existing
// registration for that name.
func (m *Manager) Register(name string, f Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchers[name] = f
}

// Unregister removes a fetcher registration.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fetchers, name)
}

// IsRegistered reports whether a fetcher is registered under name.
func (m *Manager) IsRegistered(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.fetchers[name]
	return ok
}

// RegisteredDatasets returns the currently registered fetcher names.
func (m *Manager) RegisteredDatasets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.fetchers))
	for name := range m.fetchers {
		names = append(names, name)
	}
	return names
}

// FetchDataset runs the named fetcher. It reports false (never an
// error) when the fetcher is unregistered, panics, or returns an
// error, matching fetch_manager.py's try/except-and-return-False
// contract; the underlying error is still logged.
func (m *Manager) FetchDataset(ctx context.Context, name, dateFrom, dateTo string, geometry json.RawMessage) (ok bool) {
	m.mu.RLock()
	f, registered := m.fetchers[name]
	m.mu.RUnlock()

	if !registered {
		m.log.Warn("fetch: dataset not registered", "dataset", name)
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			m.log.Error("fetch: fetcher panicked", "dataset", name, "panic", fmt.Sprint(r))
			ok = false
		}
	}()

	if err := f.FetchData(ctx, dateFrom, dateTo, geometry); err != nil {
		m.log.Error("fetch: dataset fetch failed", "dataset", name, "error", err)
		return false
	}
	return true
}
