package proxy

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zephyrhq/claude-zephyr/internal/config"
	"github.com/zephyrhq/claude-zephyr/internal/model"
	"github.com/zephyrhq/claude-zephyr/internal/registry"
	"github.com/zephyrhq/claude-zephyr/internal/selection"
	"github.com/zephyrhq/claude-zephyr/internal/tracker"
)

func testRegistryAndForwarder(t *testing.T, upstream *httptest.Server) (*Forwarder, *registry.Registry, *tracker.Tracker, *selection.Publisher) {
	t.Helper()
	reg := registry.New(&config.Config{
		DefaultGroup: "primary",
		Groups: map[string]config.Group{
			"primary": {
				Name:       "primary",
				Default:    true,
				Credential: "secret-token",
				Endpoints: []config.Endpoint{
					{Name: "a", URL: upstream.URL},
				},
			},
		},
	})
	tr := tracker.New(tracker.DefaultConfig(), nil)
	pub := selection.NewPublisher(selection.CurrentSelection{Endpoint: model.NewEndpointID("primary", "a"), Mode: selection.Automatic})
	retryCfg := config.Retry{Enabled: true, MaxAttempts: 2, BaseDelay: time.Millisecond, BackoffMultiplier: 1.0}
	fwd := New(pub, reg, tr, http.DefaultTransport, retryCfg, nil, nil)
	return fwd, reg, tr, pub
}

func TestForwarder_ProxiesAndInjectsCredential(t *testing.T) {
	var gotAuth, gotAPIKey, gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("x-api-key")
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	defer upstream.Close()

	fwd, _, tr, _ := testRegistryAndForwarder(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer client-supplied")
	rec := httptest.NewRecorder()

	fwd.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
	require.Equal(t, "Bearer secret-token", gotAuth)
	require.Equal(t, "secret-token", gotAPIKey)
	require.Equal(t, "/v1/messages", gotPath)
	require.Equal(t, 0, tr.Count(), "connection should be closed after response completes")
}

func TestForwarder_NoHealthyEndpointReturns503(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	fwd, _, _, pub := testRegistryAndForwarder(t, upstream)
	pub.Store(selection.CurrentSelection{Endpoint: "", Mode: selection.Automatic})

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	rec := httptest.NewRecorder()
	fwd.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "all_endpoints_failed")
}

func TestForwarder_UpstreamErrorReturns502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	upstream.Close() // closed immediately: connection refused

	fwd, _, tr, _ := testRegistryAndForwarder(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	rec := httptest.NewRecorder()
	fwd.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, 0, tr.Count())
}

func TestForwarder_PropagatesUpstream4xxVerbatim(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer upstream.Close()

	fwd, _, _, _ := testRegistryAndForwarder(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/v1/messages", nil)
	rec := httptest.NewRecorder()
	fwd.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate limited", rec.Body.String())
}
