package proxy

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestForwardNotConfigured(t *testing.T) {
	requests := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer backend.Close()

	// Deliberately not pointed at the backend: a missing target must fail
	// fast without any outbound call.
	fwd := NewForwarder("", zap.NewNop())
	result := fwd.Forward(context.Background(), http.MethodGet, "/v1/state", nil, nil)

	assert.False(t, result.OK)
	assert.Equal(t, http.StatusServiceUnavailable, result.Status)
	assert.Equal(t, 0, requests, "no network call may be attempted")
	assert.False(t, fwd.Configured())
}

func TestForwardRelaysVerbatim(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotBody string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer backend.Close()

	fwd := NewForwarder(backend.URL, zap.NewNop())
	query := url.Values{"tabId": {"t1"}, "compact": {"true"}, "lite": {""}}
	result := fwd.Forward(context.Background(), http.MethodPost, "/v1/action", query, []byte(`{"tabId":"t1","type":"click"}`))

	require.True(t, result.OK)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.JSONEq(t, `{"success":true}`, string(result.Data))
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/v1/action", gotPath)
	assert.Equal(t, `{"tabId":"t1","type":"click"}`, gotBody)
	assert.Contains(t, gotQuery, "tabId=t1")
	assert.NotContains(t, gotQuery, "lite", "empty query values are omitted")
}

func TestForwardCarriesBackendErrors(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":"session expired, start a new one","sessionExpired":true}`))
	}))
	defer backend.Close()

	fwd := NewForwarder(backend.URL, zap.NewNop())
	result := fwd.Forward(context.Background(), http.MethodPost, "/v1/action", nil, []byte(`{}`))

	assert.False(t, result.OK, "non-2xx is reported, never raised")
	assert.Equal(t, http.StatusGone, result.Status)
	assert.Contains(t, string(result.Data), "sessionExpired")
}

func TestForwardBackendUnreachable(t *testing.T) {
	fwd := NewForwarder("http://127.0.0.1:1", zap.NewNop())
	result := fwd.Forward(context.Background(), http.MethodGet, "/v1/health", nil, nil)

	assert.False(t, result.OK)
	assert.Equal(t, http.StatusServiceUnavailable, result.Status)
	assert.NotEmpty(t, result.Error)
}
