// Package proxy routes requests that this tier cannot serve to the one
// persistent backend process holding the live browser connection.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Result is the normalized outcome of a forwarded request. Non-2xx backend
// responses are carried through, never raised, so the caller can re-emit the
// backend's status and body unchanged.
type Result struct {
	OK     bool            `json:"ok"`
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Forwarder sends requests verbatim to the persistent backend.
type Forwarder struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewForwarder creates a forwarder; an empty baseURL means this process IS
// the persistent tier and forwarding is not configured.
func NewForwarder(baseURL string, log *zap.Logger) *Forwarder {
	return &Forwarder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

// Configured reports whether a backend target exists.
func (f *Forwarder) Configured() bool { return f.baseURL != "" }

// Forward relays method, path, query and body to the backend. Empty query
// values are omitted; the body is passed through unmodified for non-GET
// methods. A missing backend URL is a deployment error and fails fast with
// 503 before any network activity.
func (f *Forwarder) Forward(ctx context.Context, method, path string, query url.Values, body []byte) Result {
	if f.baseURL == "" {
		return Result{OK: false, Status: http.StatusServiceUnavailable, Error: "proxy backend not configured"}
	}

	target, err := url.Parse(f.baseURL + path)
	if err != nil {
		return Result{OK: false, Status: http.StatusServiceUnavailable, Error: "invalid proxy backend url"}
	}
	filtered := url.Values{}
	for key, vals := range query {
		for _, v := range vals {
			if v != "" {
				filtered.Add(key, v)
			}
		}
	}
	target.RawQuery = filtered.Encode()

	var reader io.Reader
	if method != http.MethodGet && len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return Result{OK: false, Status: http.StatusServiceUnavailable, Error: err.Error()}
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Warn("proxy request failed", zap.String("path", path), zap.Error(err))
		return Result{OK: false, Status: http.StatusServiceUnavailable, Error: "backend unreachable: " + err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{OK: false, Status: http.StatusServiceUnavailable, Error: "read backend response: " + err.Error()}
	}

	result := Result{
		OK:     resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status: resp.StatusCode,
		Data:   data,
	}
	if !result.OK {
		result.Error = http.StatusText(resp.StatusCode)
	}
	return result
}
