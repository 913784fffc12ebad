package directory

import (
	"context"
	"sync"

	"github.com/hallwayapps/browsergate/pkg/models"
)

// Memory is the in-process Directory used for single-instance deployments
// and tests. Affinity routing still works against it as long as only one
// persistent backend process exists.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]models.Session
}

// NewMemory creates an empty in-memory directory.
func NewMemory() *Memory {
	return &Memory{recs: make(map[string]models.Session)}
}

func (m *Memory) Put(_ context.Context, rec models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.recs[rec.TabID]; ok {
		if existing.BackendSessionID != "" && rec.BackendSessionID != "" &&
			existing.BackendSessionID != rec.BackendSessionID {
			return ErrBackendIDConflict
		}
		if rec.BackendSessionID == "" {
			rec.BackendSessionID = existing.BackendSessionID
		}
		if rec.DebugURL == "" {
			rec.DebugURL = existing.DebugURL
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = existing.CreatedAt
		}
	}
	m.recs[rec.TabID] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, tabID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.recs[tabID]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (m *Memory) UpdateStatus(_ context.Context, tabID string, status models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[tabID]
	if !ok {
		return nil
	}
	rec.Status = status
	m.recs[tabID] = rec
	return nil
}

func (m *Memory) CacheDebugURL(_ context.Context, tabID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.recs[tabID]
	if !ok {
		return nil
	}
	rec.DebugURL = url
	m.recs[tabID] = rec
	return nil
}

func (m *Memory) Delete(_ context.Context, tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.recs, tabID)
	return nil
}

func (m *Memory) List(_ context.Context) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Session, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
