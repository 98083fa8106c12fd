package control

import (
	"bytes"
	"context"
	"encoding/json"
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

type fakeOrchestrator struct {
	states    []selection.EndpointState
	interval  time.Duration
	mode      selection.Mode
	pinned    model.EndpointID
	refreshed bool
	paused    bool
}

func (f *fakeOrchestrator) AllStates() []selection.EndpointState  { return f.states }
func (f *fakeOrchestrator) EffectiveInterval() time.Duration      { return f.interval }
func (f *fakeOrchestrator) Mode() selection.Mode                  { return f.mode }
func (f *fakeOrchestrator) SetMode(m selection.Mode)               { f.mode = m }
func (f *fakeOrchestrator) Pin(_ context.Context, id model.EndpointID) {
	f.mode = selection.Manual
	f.pinned = id
}
func (f *fakeOrchestrator) RefreshNow()    { f.refreshed = true }
func (f *fakeOrchestrator) PauseProbes()   { f.paused = true }
func (f *fakeOrchestrator) ResumeProbes()  { f.paused = false }

func testSurface(t *testing.T) (*Surface, *fakeOrchestrator, *registry.Registry) {
	t.Helper()
	reg := registry.New(&config.Config{
		DefaultGroup: "primary",
		Groups: map[string]config.Group{
			"primary": {
				Name: "primary", Default: true, Credential: "tok",
				Endpoints: []config.Endpoint{{Name: "a", URL: "https://a.example.com"}},
			},
			"secondary": {
				Name: "secondary", Credential: "tok2",
				Endpoints: []config.Endpoint{{Name: "b", URL: "https://b.example.com"}},
			},
		},
	})
	tr := tracker.New(tracker.DefaultConfig(), nil)
	pub := selection.NewPublisher(selection.CurrentSelection{Endpoint: model.NewEndpointID("primary", "a"), Mode: selection.Automatic})
	orch := &fakeOrchestrator{
		states: []selection.EndpointState{
			{Endpoint: model.Endpoint{ID: "primary/a", Name: "a", URL: "https://a.example.com"}, Status: selection.StatusHealthy, LastLatencyMS: 80},
		},
		interval: 60 * time.Second,
		mode:     selection.Automatic,
	}
	s := New(orch, reg, tr, pub, nil, nil, nil)
	return s, orch, reg
}

func TestStatus_ReturnsExpectedFields(t *testing.T) {
	s, _, _ := testSurface(t)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "Automatic", resp.Mode)
	require.Equal(t, "primary/a", resp.CurrentEndpoint)
	require.Len(t, resp.Endpoints, 1)
	require.Equal(t, float64(60), resp.EffectiveIntervalSeconds)
}

func TestHealth_OKWhenNotAllFailed(t *testing.T) {
	s, _, _ := testSurface(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_503WhenAllFailed(t *testing.T) {
	s, orch, _ := testSurface(t)
	orch.states = []selection.EndpointState{{Status: selection.StatusFailed}}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "all_endpoints_failed", rec.Body.String())
}

func TestSetMode(t *testing.T) {
	s, orch, _ := testSurface(t)
	body, _ := json.Marshal(setModeBody{Mode: "Manual"})
	req := httptest.NewRequest(http.MethodPost, "/control/set_mode", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, selection.Manual, orch.mode)
}

func TestPin(t *testing.T) {
	s, orch, _ := testSurface(t)
	body, _ := json.Marshal(pinBody{Endpoint: "primary/a"})
	req := httptest.NewRequest(http.MethodPost, "/control/pin", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, model.EndpointID("primary/a"), orch.pinned)
}

func TestPin_UnknownEndpointReturns404(t *testing.T) {
	s, _, _ := testSurface(t)
	body, _ := json.Marshal(pinBody{Endpoint: "primary/does-not-exist"})
	req := httptest.NewRequest(http.MethodPost, "/control/pin", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSetGroup(t *testing.T) {
	s, _, reg := testSurface(t)
	body, _ := json.Marshal(setGroupBody{Name: "secondary"})
	req := httptest.NewRequest(http.MethodPost, "/control/set_group", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "secondary", reg.ActiveGroup())
}

func TestRefreshPauseResume(t *testing.T) {
	s, orch, _ := testSurface(t)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/refresh_now", nil))
	require.True(t, orch.refreshed)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/pause_probes", nil))
	require.True(t, orch.paused)

	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/resume_probes", nil))
	require.False(t, orch.paused)
}

func TestShutdown_InvokesCallback(t *testing.T) {
	reg := registry.New(&config.Config{
		DefaultGroup: "primary",
		Groups: map[string]config.Group{
			"primary": {Name: "primary", Default: true, Credential: "tok", Endpoints: []config.Endpoint{{Name: "a", URL: "https://a.example.com"}}},
		},
	})
	tr := tracker.New(tracker.DefaultConfig(), nil)
	pub := selection.NewPublisher(selection.CurrentSelection{})
	orch := &fakeOrchestrator{}
	called := make(chan struct{}, 1)
	s := New(orch, reg, tr, pub, nil, func() { called <- struct{}{} }, nil)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/control/shutdown", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown callback was not invoked")
	}
}
