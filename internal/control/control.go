// Package control implements the control surface: status and health
// introspection plus the operator commands, routed with gorilla/mux.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/zephyrhq/claude-zephyr/internal/model"
	"github.com/zephyrhq/claude-zephyr/internal/registry"
	"github.com/zephyrhq/claude-zephyr/internal/selection"
	"github.com/zephyrhq/claude-zephyr/internal/tracker"
)

// Orchestrator is the subset of *health.Orchestrator the control
// surface needs; kept as an interface so control does not import health
// and tests can substitute a fake.
type Orchestrator interface {
	AllStates() []selection.EndpointState
	EffectiveInterval() time.Duration
	Mode() selection.Mode
	SetMode(selection.Mode)
	Pin(ctx context.Context, endpoint model.EndpointID)
	RefreshNow()
	PauseProbes()
	ResumeProbes()
}

// Surface is the control HTTP handler.
type Surface struct {
	router       *mux.Router
	orchestrator Orchestrator
	registry     *registry.Registry
	tracker      *tracker.Tracker
	publisher    *selection.Publisher
	metrics      http.Handler
	shutdown     func()
	logger       *logrus.Logger
}

// New builds a Surface and registers every route. metrics may be nil,
// in which case /metrics responds 404.
func New(orch Orchestrator, reg *registry.Registry, tr *tracker.Tracker, pub *selection.Publisher, metrics http.Handler, shutdown func(), logger *logrus.Logger) *Surface {
	s := &Surface{
		orchestrator: orch,
		registry:     reg,
		tracker:      tr,
		publisher:    pub,
		metrics:      metrics,
		shutdown:     shutdown,
		logger:       logger,
	}
	s.router = mux.NewRouter()
	s.registerRoutes()
	return s
}

var _ http.Handler = (*Surface)(nil)

func (s *Surface) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Surface) registerRoutes() {
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	s.router.HandleFunc("/control/set_mode", s.handleSetMode).Methods(http.MethodPost)
	s.router.HandleFunc("/control/pin", s.handlePin).Methods(http.MethodPost)
	s.router.HandleFunc("/control/refresh_now", s.handleRefreshNow).Methods(http.MethodPost)
	s.router.HandleFunc("/control/pause_probes", s.handlePauseProbes).Methods(http.MethodPost)
	s.router.HandleFunc("/control/resume_probes", s.handleResumeProbes).Methods(http.MethodPost)
	s.router.HandleFunc("/control/set_group", s.handleSetGroup).Methods(http.MethodPost)
	s.router.HandleFunc("/control/shutdown", s.handleShutdown).Methods(http.MethodPost)
}

// statusEndpoint is one entry of /status's endpoints[] array.
type statusEndpoint struct {
	Name                string `json:"name"`
	URL                 string `json:"url"`
	Status              string `json:"status"`
	LastLatencyMS       uint64 `json:"last_latency_ms,omitempty"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
}

// statusResponse is the /status JSON document.
type statusResponse struct {
	Mode                     string           `json:"mode"`
	CurrentEndpoint          string           `json:"current_endpoint"`
	Endpoints                []statusEndpoint `json:"endpoints"`
	ActiveConnections        int              `json:"active_connections"`
	EffectiveIntervalSeconds float64          `json:"effective_interval_seconds"`
	ActiveGroup              string           `json:"active_group"`
}

func (s *Surface) handleStatus(w http.ResponseWriter, r *http.Request) {
	states := s.orchestrator.AllStates()
	eps := make([]statusEndpoint, 0, len(states))
	for _, st := range states {
		eps = append(eps, statusEndpoint{
			Name:                st.Endpoint.Name,
			URL:                 st.Endpoint.URL,
			Status:              st.Status.String(),
			LastLatencyMS:       st.LastLatencyMS,
			ConsecutiveFailures: st.ConsecutiveFailures,
		})
	}

	resp := statusResponse{
		Mode:                     s.orchestrator.Mode().String(),
		CurrentEndpoint:          string(s.publisher.Load().Endpoint),
		Endpoints:                eps,
		ActiveConnections:        s.tracker.Count(),
		EffectiveIntervalSeconds: s.orchestrator.EffectiveInterval().Seconds(),
		ActiveGroup:              s.registry.ActiveGroup(),
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Surface) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, st := range s.orchestrator.AllStates() {
		if st.Status != selection.StatusFailed {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("all_endpoints_failed"))
}

type setModeBody struct {
	Mode string `json:"mode"`
}

func (s *Surface) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var body setModeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	switch body.Mode {
	case "Automatic":
		s.orchestrator.SetMode(selection.Automatic)
	case "Manual":
		s.orchestrator.SetMode(selection.Manual)
	default:
		http.Error(w, "mode must be Automatic or Manual", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type pinBody struct {
	Endpoint string `json:"endpoint"`
}

func (s *Surface) handlePin(w http.ResponseWriter, r *http.Request) {
	var body pinBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Endpoint == "" {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if _, ok := s.registry.Endpoint(model.EndpointID(body.Endpoint)); !ok {
		http.Error(w, "unknown endpoint", http.StatusNotFound)
		return
	}
	s.orchestrator.Pin(r.Context(), model.EndpointID(body.Endpoint))
	w.WriteHeader(http.StatusOK)
}

func (s *Surface) handleRefreshNow(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.RefreshNow()
	w.WriteHeader(http.StatusOK)
}

func (s *Surface) handlePauseProbes(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.PauseProbes()
	w.WriteHeader(http.StatusOK)
}

func (s *Surface) handleResumeProbes(w http.ResponseWriter, r *http.Request) {
	s.orchestrator.ResumeProbes()
	w.WriteHeader(http.StatusOK)
}

type setGroupBody struct {
	Name string `json:"name"`
}

// handleSetGroup switches the active credential group, changing which
// set of endpoints and which credential subsequent probes and forwarded
// requests use.
func (s *Surface) handleSetGroup(w http.ResponseWriter, r *http.Request) {
	var body setGroupBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if err := s.registry.SetActiveGroup(body.Name); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Surface) handleShutdown(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if s.shutdown != nil {
		go s.shutdown()
	}
}
