// Package provision creates and releases backend browser sessions. Two
// implementations exist: a Browserbase-style remote API client and a local
// Docker fallback that runs one browserless/chrome container per session.
package provision

import "context"

// Endpoint is everything the controller needs to attach to a backend session.
type Endpoint struct {
	ID         string
	ConnectURL string // CDP WebSocket URL
	DebugURL   string // interactive live-view URL, empty if unsupported
}

// CreateOptions tunes a newly provisioned session.
type CreateOptions struct {
	Headless bool
}

// Provisioner manages backend browser sessions by id. Describe is used for
// cold-start reattachment and live-view lookup; a Describe failure means the
// backend no longer knows the session.
type Provisioner interface {
	Create(ctx context.Context, opts CreateOptions) (*Endpoint, error)
	Describe(ctx context.Context, id string) (*Endpoint, error)
	Release(ctx context.Context, id string) error

	// SupportsLiveView reports whether Describe returns a usable DebugURL.
	SupportsLiveView() bool
}
