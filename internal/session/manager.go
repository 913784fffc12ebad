// Package session tracks active browser controllers by tab id and reconciles
// them with the durable session directory.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/hallwayapps/browsergate/internal/browser"
	"github.com/hallwayapps/browsergate/internal/directory"
	"github.com/hallwayapps/browsergate/internal/provision"
	"github.com/hallwayapps/browsergate/pkg/models"
)

const maxConcurrentSessions = 25

type entry struct {
	controller *browser.Controller
	createdAt  time.Time
}

// Manager is the in-process registry of live controllers. Creation for one
// tab id is deduplicated: concurrent first-requests converge on a single
// backend session instead of racing.
type Manager struct {
	prov provision.Provisioner
	dir  directory.Directory
	log  *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry

	creating singleflight.Group
	slots    *semaphore.Weighted
}

// NewManager creates an empty registry.
func NewManager(prov provision.Provisioner, dir directory.Directory, log *zap.Logger) *Manager {
	return &Manager{
		prov:    prov,
		dir:     dir,
		log:     log,
		entries: make(map[string]*entry),
		slots:   semaphore.NewWeighted(maxConcurrentSessions),
	}
}

// GetController returns the live controller for a tab, if this process holds
// one. Pure lookup; it never creates.
func (m *Manager) GetController(tabID string) (*browser.Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[tabID]
	if !ok {
		return nil, false
	}
	return e.controller, true
}

// CreateSession creates or returns the controller for a tab. If the
// directory already records a running backend session, reattachment is
// attempted first; reattachment failure degrades to a fresh launch.
func (m *Manager) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*browser.Controller, error) {
	if existing, ok := m.GetController(req.TabID); ok {
		return existing, nil
	}

	v, err, _ := m.creating.Do(req.TabID, func() (any, error) {
		// Re-check under the flight: a concurrent caller may have finished.
		if existing, ok := m.GetController(req.TabID); ok {
			return existing, nil
		}
		return m.create(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*browser.Controller), nil
}

func (m *Manager) create(ctx context.Context, req models.CreateSessionRequest) (*browser.Controller, error) {
	if !m.slots.TryAcquire(1) {
		return nil, fmt.Errorf("session limit reached (%d concurrent)", maxConcurrentSessions)
	}
	release := func() { m.slots.Release(1) }

	ctl := browser.NewController(req.TabID, m.prov, m.log)

	opts := browser.LaunchOptions{
		Cookies:    req.Cookies,
		DefaultURL: req.DefaultURL,
		Headless:   req.Headless == nil || *req.Headless,
	}

	// Cold-start affinity: a running directory record means another process
	// (or a previous life of this one) already provisioned a backend
	// session. Try to resume it before provisioning a new one.
	rec, err := m.dir.Get(ctx, req.TabID)
	if err != nil {
		release()
		return nil, fmt.Errorf("directory lookup: %w", err)
	}
	if rec != nil && rec.Status == models.StatusRunning && rec.BackendSessionID != "" {
		if ep, err := m.prov.Describe(ctx, rec.BackendSessionID); err == nil {
			reattach := opts
			reattach.Endpoint = ep
			reattach.DefaultURL = "" // the resumed page keeps its location
			if _, err := ctl.Launch(ctx, reattach); err == nil {
				m.register(req.TabID, ctl)
				return ctl, nil
			}
			ctl = browser.NewController(req.TabID, m.prov, m.log)
		}
		// The backend no longer honors the recorded id. Treat it as no
		// session and fall through to a fresh launch.
		m.log.Warn("reattachment failed, launching fresh session",
			zap.String("tab_id", req.TabID),
			zap.String("backend_session_id", rec.BackendSessionID))
		if err := m.dir.Delete(ctx, req.TabID); err != nil {
			m.log.Warn("stale directory record delete failed", zap.Error(err))
		}
	} else if rec != nil && rec.Status != models.StatusRunning {
		// Closed and expired records keep their backend id, which is immutable
		// in the directory. Clear the record so the fresh launch can record a
		// new one instead of colliding with the old.
		if err := m.dir.Delete(ctx, req.TabID); err != nil {
			release()
			return nil, fmt.Errorf("clear stale record: %w", err)
		}
	}

	if err := m.dir.Put(ctx, models.Session{
		TabID:     req.TabID,
		Status:    models.StatusInitializing,
		CreatedAt: time.Now(),
	}); err != nil {
		release()
		return nil, fmt.Errorf("record session: %w", err)
	}

	endpoint, err := ctl.Launch(ctx, opts)
	if err != nil {
		_ = m.dir.Delete(ctx, req.TabID)
		release()
		return nil, err
	}

	if err := m.dir.Put(ctx, models.Session{
		TabID:            req.TabID,
		BackendSessionID: endpoint.ID,
		Status:           models.StatusRunning,
		CreatedAt:        time.Now(),
		DebugURL:         endpoint.DebugURL,
	}); err != nil {
		ctl.Close(ctx)
		_ = m.dir.Delete(ctx, req.TabID)
		release()
		return nil, fmt.Errorf("record session: %w", err)
	}

	m.register(req.TabID, ctl)
	return ctl, nil
}

func (m *Manager) register(tabID string, ctl *browser.Controller) {
	m.mu.Lock()
	m.entries[tabID] = &entry{controller: ctl, createdAt: time.Now()}
	m.mu.Unlock()
}

// CloseSession tears down the controller and directory record for a tab.
// Idempotent: closing an unknown or already-closed tab is not an error.
func (m *Manager) CloseSession(ctx context.Context, tabID string) {
	m.mu.Lock()
	e, ok := m.entries[tabID]
	if ok {
		delete(m.entries, tabID)
	}
	m.mu.Unlock()

	if ok {
		e.controller.Close(ctx)
		m.slots.Release(1)
	}

	if err := m.dir.UpdateStatus(ctx, tabID, models.StatusClosed); err != nil {
		m.log.Warn("directory status update failed", zap.String("tab_id", tabID), zap.Error(err))
	}
}

// Purge removes a dead session from both local memory and the directory, so
// the next request for the tab starts clean. Used after a detected backend
// disconnect; the backend session itself is already gone.
func (m *Manager) Purge(ctx context.Context, tabID string) {
	m.mu.Lock()
	e, ok := m.entries[tabID]
	if ok {
		delete(m.entries, tabID)
	}
	m.mu.Unlock()

	if ok {
		e.controller.Close(ctx)
		m.slots.Release(1)
	}

	if err := m.dir.Delete(ctx, tabID); err != nil {
		m.log.Warn("directory purge failed", zap.String("tab_id", tabID), zap.Error(err))
	}
	m.log.Info("purged expired session", zap.String("tab_id", tabID))
}

// CloseAll tears down every controller. Best-effort: one stuck close never
// prevents the rest from closing. Used at process shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for tabID, e := range entries {
		e.controller.Close(ctx)
		m.slots.Release(1)
		if err := m.dir.UpdateStatus(ctx, tabID, models.StatusClosed); err != nil {
			m.log.Warn("directory status update failed", zap.String("tab_id", tabID), zap.Error(err))
		}
	}
}

// ListSessions enumerates active sessions for diagnostics, ordered by tab id.
func (m *Manager) ListSessions() []models.SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.SessionInfo, 0, len(m.entries))
	for tabID, e := range m.entries {
		out = append(out, models.SessionInfo{
			TabID:            tabID,
			BackendSessionID: e.controller.BackendSessionID(),
			CreatedAt:        e.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TabID < out[j].TabID })
	return out
}
