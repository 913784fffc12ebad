package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Browserbase provisions sessions through the remote Browserbase-compatible
// REST API. The API key and project id come from configuration.
type Browserbase struct {
	baseURL   string
	apiKey    string
	projectID string
	client    *http.Client
}

// NewBrowserbase creates a remote provisioner.
func NewBrowserbase(baseURL, apiKey, projectID string) *Browserbase {
	return &Browserbase{
		baseURL:   baseURL,
		apiKey:    apiKey,
		projectID: projectID,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type browserbaseSession struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ConnectURL string `json:"connectUrl"`
}

type browserbaseDebug struct {
	DebuggerFullscreenURL string `json:"debuggerFullscreenUrl"`
	DebuggerURL           string `json:"debuggerUrl"`
}

func (b *Browserbase) Create(ctx context.Context, opts CreateOptions) (*Endpoint, error) {
	body, _ := json.Marshal(map[string]any{
		"projectId": b.projectID,
	})
	var sess browserbaseSession
	if err := b.do(ctx, http.MethodPost, "/v1/sessions", body, &sess); err != nil {
		return nil, fmt.Errorf("create remote session: %w", err)
	}
	return &Endpoint{ID: sess.ID, ConnectURL: sess.ConnectURL}, nil
}

func (b *Browserbase) Describe(ctx context.Context, id string) (*Endpoint, error) {
	var sess browserbaseSession
	if err := b.do(ctx, http.MethodGet, "/v1/sessions/"+id, nil, &sess); err != nil {
		return nil, fmt.Errorf("describe remote session: %w", err)
	}
	if sess.Status != "" && sess.Status != "RUNNING" {
		return nil, fmt.Errorf("remote session %s is %s", id, sess.Status)
	}

	endpoint := &Endpoint{ID: sess.ID, ConnectURL: sess.ConnectURL}

	// The debug URL lives on a separate endpoint; failure to fetch it is not
	// fatal, live view is best-effort.
	var debug browserbaseDebug
	if err := b.do(ctx, http.MethodGet, "/v1/sessions/"+id+"/debug", nil, &debug); err == nil {
		endpoint.DebugURL = debug.DebuggerFullscreenURL
		if endpoint.DebugURL == "" {
			endpoint.DebugURL = debug.DebuggerURL
		}
	}
	return endpoint, nil
}

func (b *Browserbase) Release(ctx context.Context, id string) error {
	body, _ := json.Marshal(map[string]any{
		"projectId": b.projectID,
		"status":    "REQUEST_RELEASE",
	})
	if err := b.do(ctx, http.MethodPost, "/v1/sessions/"+id, body, nil); err != nil {
		return fmt.Errorf("release remote session: %w", err)
	}
	return nil
}

func (b *Browserbase) SupportsLiveView() bool { return true }

func (b *Browserbase) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-BB-API-Key", b.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provisioning API returned %d: %s", resp.StatusCode, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
