package models

import "time"

// SessionStatus represents the current state of a browser session
type SessionStatus string

const (
	StatusInitializing SessionStatus = "INITIALIZING"
	StatusRunning      SessionStatus = "RUNNING"
	StatusClosed       SessionStatus = "CLOSED"
	StatusExpired      SessionStatus = "EXPIRED"
)

// Session is the durable directory record for one logical browser tab.
// TabID is chosen by the client and stays stable for the whole conversation.
// BackendSessionID is assigned by the provisioning service and is immutable
// once set.
type Session struct {
	TabID            string        `json:"tabId"`
	BackendSessionID string        `json:"backendSessionId,omitempty"`
	Status           SessionStatus `json:"status"`
	CreatedAt        time.Time     `json:"createdAt"`
	DebugURL         string        `json:"debugUrl,omitempty"`
}

// Cookie is the subset of cookie fields accepted at session creation
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
	Path   string `json:"path,omitempty"`
}

// CreateSessionRequest is the payload for creating or reattaching a session
type CreateSessionRequest struct {
	TabID      string   `json:"tabId"`
	Cookies    []Cookie `json:"cookies,omitempty"`
	DefaultURL string   `json:"defaultUrl,omitempty"`
	Headless   *bool    `json:"headless,omitempty"`
}

// SessionInfo is the diagnostic listing entry returned by health checks
type SessionInfo struct {
	TabID            string    `json:"tabId"`
	BackendSessionID string    `json:"backendSessionId,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
