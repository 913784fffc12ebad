// Package api is the route layer: it validates requests, resolves the target
// controller, classifies failures and is the only layer allowed to apply
// side effects (the stale-session purge) in response to a failure class.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hallwayapps/browsergate/internal/browser"
	"github.com/hallwayapps/browsergate/internal/directory"
	"github.com/hallwayapps/browsergate/internal/logbuf"
	"github.com/hallwayapps/browsergate/internal/provision"
	"github.com/hallwayapps/browsergate/internal/proxy"
	"github.com/hallwayapps/browsergate/internal/session"
	"github.com/hallwayapps/browsergate/pkg/models"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	mgr   *session.Manager
	dir   directory.Directory
	prov  provision.Provisioner
	fwd   *proxy.Forwarder
	debug *proxy.DebugProxy
	logs  *logbuf.Buffer
	log   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(mgr *session.Manager, dir directory.Directory, prov provision.Provisioner,
	fwd *proxy.Forwarder, debug *proxy.DebugProxy, logs *logbuf.Buffer, log *zap.Logger) *Handler {
	return &Handler{
		mgr:   mgr,
		dir:   dir,
		prov:  prov,
		fwd:   fwd,
		debug: debug,
		logs:  logs,
		log:   log,
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respond(w, status, map[string]any{"error": msg})
}

// forward relays the request verbatim to the persistent backend and re-emits
// its status and body unchanged.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request, body []byte) {
	result := h.fwd.Forward(r.Context(), r.Method, r.URL.Path, r.URL.Query(), body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	if len(result.Data) > 0 {
		_, _ = w.Write(result.Data)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"error": result.Error})
}

// handleControllerError maps a classified controller failure to its HTTP
// shape. SessionExpired additionally purges the dead session from both the
// registry and the directory so the next request starts clean; 410 is
// reserved exclusively for that case.
func (h *Handler) handleControllerError(w http.ResponseWriter, r *http.Request, tabID string, err error) {
	switch {
	case errors.Is(err, browser.ErrSessionExpired):
		h.mgr.Purge(r.Context(), tabID)
		h.logs.Append(models.LogEntry{
			SessionID: tabID,
			Type:      models.LogError,
			Data:      err.Error(),
		})
		respond(w, http.StatusGone, map[string]any{
			"error":          "session expired, start a new one",
			"sessionExpired": true,
		})
	case errors.Is(err, browser.ErrNoActiveSession):
		respondError(w, http.StatusNotFound, "no active session for tab")
	case errors.Is(err, browser.ErrActionTimeout):
		respond(w, http.StatusInternalServerError, map[string]any{
			"error":   err.Error(),
			"timeout": true,
		})
	default:
		h.logs.Append(models.LogEntry{
			SessionID: tabID,
			Type:      models.LogError,
			Data:      err.Error(),
		})
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// CreateSession handles POST /v1/session
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	var req models.CreateSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TabID == "" {
		respondError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	if ctl, ok := h.mgr.GetController(req.TabID); ok {
		respond(w, http.StatusOK, map[string]any{
			"tabId":            req.TabID,
			"backendSessionId": ctl.BackendSessionID(),
			"status":           models.StatusRunning,
		})
		return
	}

	// Only the persistent tier launches browsers; a configured proxy target
	// means this is the stateless front.
	if h.fwd.Configured() {
		h.forward(w, r, body)
		return
	}

	ctl, err := h.mgr.CreateSession(r.Context(), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.logs.Append(models.LogEntry{
		SessionID: req.TabID,
		Type:      models.LogBrowser,
		Action:    "create",
		Data:      ctl.BackendSessionID(),
	})
	respond(w, http.StatusCreated, map[string]any{
		"tabId":            req.TabID,
		"backendSessionId": ctl.BackendSessionID(),
		"status":           models.StatusRunning,
	})
}

// GetSession handles GET /v1/session?tabId=
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tabId")
	if tabID == "" {
		respondError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	rec, err := h.dir.Get(r.Context(), tabID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "directory lookup failed: "+err.Error())
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "no session for tab")
		return
	}
	respond(w, http.StatusOK, rec)
}

// DeleteSession handles DELETE /v1/session?tabId=. Idempotent: deleting an
// absent session still returns 200.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tabId")
	if tabID == "" {
		respondError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	if _, ok := h.mgr.GetController(tabID); !ok && h.fwd.Configured() {
		h.forward(w, r, nil)
		return
	}

	h.mgr.CloseSession(r.Context(), tabID)
	if err := h.dir.Delete(r.Context(), tabID); err != nil {
		h.log.Warn("directory delete failed", zap.String("tab_id", tabID), zap.Error(err))
	}

	h.logs.Append(models.LogEntry{
		SessionID: tabID,
		Type:      models.LogBrowser,
		Action:    "close",
	})
	respond(w, http.StatusOK, map[string]any{"deleted": true})
}

type actionRequest struct {
	TabID string `json:"tabId"`
	models.Action
}

// ExecuteAction handles POST /v1/action
func (h *Handler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	var req actionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TabID == "" {
		respondError(w, http.StatusBadRequest, "tabId is required")
		return
	}
	if err := req.Action.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctl, ok := h.mgr.GetController(req.TabID)
	if !ok {
		if h.fwd.Configured() {
			h.forward(w, r, body)
			return
		}
		respondError(w, http.StatusNotFound, "no active session for tab")
		return
	}

	start := time.Now()
	result, err := ctl.ExecuteAction(r.Context(), req.Action)
	if err != nil {
		h.handleControllerError(w, r, req.TabID, err)
		return
	}

	h.logs.Append(models.LogEntry{
		SessionID:  req.TabID,
		Type:       models.LogResponse,
		Action:     string(req.Action.Type),
		DurationMs: time.Since(start).Milliseconds(),
	})
	respond(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

// GetState handles GET /v1/state?tabId=&compact=true|&lite=true|&includeIframes=true
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	tabID := query.Get("tabId")
	if tabID == "" {
		respondError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	compact := query.Get("compact") == "true"
	lite := query.Get("lite") == "true"
	if compact && lite {
		respondError(w, http.StatusBadRequest, "compact and lite are mutually exclusive")
		return
	}
	fidelity := models.StateFull
	if compact {
		fidelity = models.StateCompact
	} else if lite {
		fidelity = models.StateLite
	}

	ctl, ok := h.mgr.GetController(tabID)
	if !ok {
		if h.fwd.Configured() {
			h.forward(w, r, nil)
			return
		}
		respondError(w, http.StatusNotFound, "no active session for tab")
		return
	}

	start := time.Now()
	result, err := ctl.GetState(r.Context(), fidelity, query.Get("includeIframes") == "true")
	if err != nil {
		h.handleControllerError(w, r, tabID, err)
		return
	}

	h.logs.Append(models.LogEntry{
		SessionID:  tabID,
		Type:       models.LogState,
		Action:     string(fidelity),
		DurationMs: time.Since(start).Milliseconds(),
	})
	respond(w, http.StatusOK, map[string]any{
		"success":   true,
		"stateType": result.StateType,
		"state":     result.State(),
	})
}

// GetClickEvents handles GET /v1/click-events?tabId=&since=
func (h *Handler) GetClickEvents(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tabId")
	if tabID == "" {
		respondError(w, http.StatusBadRequest, "tabId is required")
		return
	}
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be a unix millisecond timestamp")
			return
		}
		since = parsed
	}

	ctl, ok := h.mgr.GetController(tabID)
	if !ok {
		if h.fwd.Configured() {
			h.forward(w, r, nil)
			return
		}
		respondError(w, http.StatusNotFound, "no active session for tab")
		return
	}

	events, err := ctl.GetClickEvents(r.Context(), since)
	if err != nil {
		h.handleControllerError(w, r, tabID, err)
		return
	}
	if events == nil {
		events = []models.ClickEvent{}
	}
	respond(w, http.StatusOK, map[string]any{"events": events})
}

// GetLiveURL handles GET /v1/live-url?tabId=. When in-memory state is absent
// it falls back to the directory's cached URL, then to a remote debug-URL
// lookup, caching the result back into the directory.
func (h *Handler) GetLiveURL(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tabId")
	if tabID == "" {
		respondError(w, http.StatusBadRequest, "tabId is required")
		return
	}

	usingRemote := h.prov.SupportsLiveView()

	if ctl, ok := h.mgr.GetController(tabID); ok {
		if url := ctl.LiveViewURL(r.Context()); url != "" {
			if err := h.dir.CacheDebugURL(r.Context(), tabID, url); err != nil {
				h.log.Warn("debug url cache failed", zap.Error(err))
			}
			respond(w, http.StatusOK, map[string]any{"liveUrl": url, "usingBrowserbase": usingRemote})
			return
		}
		respondError(w, http.StatusNotFound, "live view not available")
		return
	}

	rec, err := h.dir.Get(r.Context(), tabID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "directory lookup failed: "+err.Error())
		return
	}
	if rec != nil && rec.DebugURL != "" {
		respond(w, http.StatusOK, map[string]any{"liveUrl": rec.DebugURL, "usingBrowserbase": usingRemote})
		return
	}
	if rec != nil && rec.Status == models.StatusRunning && rec.BackendSessionID != "" && usingRemote {
		if ep, err := h.prov.Describe(r.Context(), rec.BackendSessionID); err == nil && ep.DebugURL != "" {
			if err := h.dir.CacheDebugURL(r.Context(), tabID, ep.DebugURL); err != nil {
				h.log.Warn("debug url cache failed", zap.Error(err))
			}
			respond(w, http.StatusOK, map[string]any{"liveUrl": ep.DebugURL, "usingBrowserbase": true})
			return
		}
	}

	if h.fwd.Configured() {
		h.forward(w, r, nil)
		return
	}
	respondError(w, http.StatusNotFound, "live view not available")
}

var logStreamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamLogs handles GET /v1/logs/stream?sessionId=. It upgrades to a
// WebSocket and pushes new log entries as they arrive, until the client
// disconnects. Entries buffered before the upgrade are not replayed; use
// GET /v1/logs for history.
func (h *Handler) StreamLogs(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	conn, err := logStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("log stream upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	entries, cancel := h.logs.Subscribe()
	defer cancel()

	// Reads are discarded; their only job is to notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if sessionID != "" && entry.SessionID != sessionID {
				continue
			}
			if err := conn.WriteJSON(entry); err != nil {
				return
			}
		}
	}
}

// GetLogs handles GET /v1/logs?sessionId=&limit=
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	entries := h.logs.Entries(r.URL.Query().Get("sessionId"), limit)
	if entries == nil {
		entries = []models.LogEntry{}
	}
	respond(w, http.StatusOK, map[string]any{"entries": entries})
}

// DebugWebSocket handles GET /v1/session/ws?tabId=
func (h *Handler) DebugWebSocket(w http.ResponseWriter, r *http.Request) {
	tabID := r.URL.Query().Get("tabId")
	if tabID == "" {
		respondError(w, http.StatusBadRequest, "tabId is required")
		return
	}
	ctl, ok := h.mgr.GetController(tabID)
	if !ok {
		respondError(w, http.StatusNotFound, "no active session for tab")
		return
	}
	h.debug.Handle(w, r, ctl.ConnectURL())
}

// Health handles GET /v1/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	sessions := h.mgr.ListSessions()
	respond(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"activeSessions": len(sessions),
		"sessions":       sessions,
	})
}
