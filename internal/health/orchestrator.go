// Package health owns the probing schedule, folds probe outcomes into
// endpoint state, and drives the switch coordinator.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zephyrhq/claude-zephyr/internal/config"
	"github.com/zephyrhq/claude-zephyr/internal/model"
	"github.com/zephyrhq/claude-zephyr/internal/probe"
	"github.com/zephyrhq/claude-zephyr/internal/registry"
	"github.com/zephyrhq/claude-zephyr/internal/selection"
	"github.com/zephyrhq/claude-zephyr/internal/switchover"
)

// LoadSource reports the current active-connection count, the signal
// fed into the adaptive interval formula; satisfied by *tracker.Tracker.
type LoadSource interface {
	Count() int
}

// ProbeRecorder receives per-probe outcomes for metrics; nil-safe.
// Satisfied by *metrics.Collector.
type ProbeRecorder interface {
	ObserveProbeOutcome(endpoint, status string, latencyMS uint64, hasLatency bool)
}

// Orchestrator is the single logical scheduler loop: it owns all
// EndpointState mutation, computes the adaptive probe interval, and
// hands switch decisions to the switchover.Coordinator.
type Orchestrator struct {
	registry    *registry.Registry
	executor    probe.Executor
	coordinator *switchover.Coordinator
	load        LoadSource
	cfg         config.HealthCheck
	switchMS    int64
	logger      *logrus.Logger
	metrics     ProbeRecorder

	mu                sync.RWMutex
	states            map[model.EndpointID]selection.EndpointState
	mode              selection.Mode
	effectiveInterval time.Duration

	refreshCh chan bool
	pauseCh   chan bool
}

// New builds an Orchestrator. All EndpointState records start Unknown
// regardless of which group is currently active.
func New(reg *registry.Registry, executor probe.Executor, coord *switchover.Coordinator, load LoadSource, cfg config.HealthCheck, switchThresholdMS int64, logger *logrus.Logger) *Orchestrator {
	states := make(map[model.EndpointID]selection.EndpointState)
	for _, ep := range reg.AllEndpoints() {
		states[ep.ID] = selection.NewEndpointState(ep)
	}
	return &Orchestrator{
		registry:          reg,
		executor:          executor,
		coordinator:       coord,
		load:              load,
		cfg:               cfg,
		switchMS:          switchThresholdMS,
		logger:            logger,
		states:            states,
		mode:              selection.Automatic,
		effectiveInterval: cfg.Interval,
		refreshCh:         make(chan bool, 1),
		pauseCh:           make(chan bool, 1),
	}
}

// WithMetrics attaches a ProbeRecorder; a nil receiver check is not
// needed since Orchestrator is always constructed via New.
func (o *Orchestrator) WithMetrics(m ProbeRecorder) *Orchestrator {
	o.metrics = m
	return o
}

// Run drives the scheduler loop until ctx is cancelled. It performs
// one round immediately, then sleeps for the computed interval between
// rounds.
func (o *Orchestrator) Run(ctx context.Context) {
	paused := false
	for {
		if !paused {
			o.RunOnce(ctx)
		}

		interval := o.EffectiveInterval()
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-o.refreshCh:
			timer.Stop()
			continue
		case p := <-o.pauseCh:
			timer.Stop()
			paused = p
			continue
		case <-timer.C:
		}
	}
}

// RunOnce executes exactly one probe round against every endpoint in
// the active group: fan-out, join, fold, then a selection pass. A panic
// raised on the calling goroutine during the round is recovered and
// logged, and the remainder of that round is skipped.
func (o *Orchestrator) RunOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil && o.logger != nil {
			o.logger.WithField("panic", r).Error("health orchestrator: probe round recovered from panic")
		}
	}()

	group := o.registry.ActiveGroup()
	endpoints := o.registry.ActiveEndpoints()
	credential, _ := o.registry.Credential(group)

	startedAt := time.Now()
	outcomes := o.probeAll(ctx, endpoints, credential)
	finishedAt := time.Now()

	o.mu.Lock()
	for id, outcome := range outcomes {
		prior := o.states[id]
		o.states[id] = selection.ApplyOutcome(prior, outcome, o.cfg.FailureThreshold, startedAt, finishedAt)
	}
	o.effectiveInterval = o.computeInterval()
	mode := o.mode
	o.mu.Unlock()

	if mode != selection.Automatic {
		return
	}

	o.runSelection(ctx, endpoints)
}

// probeAll fans probes out concurrently and joins them before
// returning.
func (o *Orchestrator) probeAll(ctx context.Context, endpoints []model.Endpoint, credential string) map[model.EndpointID]probe.Outcome {
	out := make(map[model.EndpointID]probe.Outcome, len(endpoints))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ep := range endpoints {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := probe.Request{
				Endpoint:   ep,
				Credential: credential,
				Timeout:    o.cfg.Timeout,
			}
			outcome := o.executor.Probe(ctx, req)

			mu.Lock()
			out[ep.ID] = outcome
			mu.Unlock()

			if o.metrics != nil {
				hasLatency := outcome.Status == probe.Healthy || outcome.Status == probe.Degraded
				o.metrics.ObserveProbeOutcome(string(ep.ID), outcome.Status.String(), outcome.LatencyMS, hasLatency)
			}

			if o.logger != nil {
				o.logger.WithFields(logrus.Fields{
					"endpoint": ep.ID,
					"status":   outcome.Status.String(),
				}).Debug("probe round: outcome recorded")
			}
		}()
	}
	wg.Wait()
	return out
}

// runSelection invokes the policy over the active group's current
// state snapshot, in definition order, and asks the coordinator to
// switch if the result differs from the published selection.
func (o *Orchestrator) runSelection(ctx context.Context, endpoints []model.Endpoint) {
	snapshot := o.StateSnapshot(endpoints)
	current := o.coordinator.Publisher().Load()

	desired := selection.Select(snapshot, current.Endpoint, o.switchMS)
	if desired != current.Endpoint {
		o.coordinator.Switch(ctx, desired, selection.Automatic)
	}
}

// StateSnapshot returns a copy of EndpointState for each of the given
// endpoints, in the same order, for use by the selection policy or the
// status surface.
func (o *Orchestrator) StateSnapshot(endpoints []model.Endpoint) []selection.EndpointState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]selection.EndpointState, 0, len(endpoints))
	for _, ep := range endpoints {
		out = append(out, o.states[ep.ID])
	}
	return out
}

// AllStates returns every tracked EndpointState, sorted by id, for the
// status surface.
func (o *Orchestrator) AllStates() []selection.EndpointState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]selection.EndpointState, 0, len(o.states))
	for _, st := range o.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint.ID < out[j].Endpoint.ID })
	return out
}

// computeInterval scales the probe interval between MinInterval and
// MaxInterval based on current connection load relative to
// ScaleCeiling. Callers must hold o.mu.
func (o *Orchestrator) computeInterval() time.Duration {
	if !o.cfg.DynamicScaling {
		return o.cfg.Interval
	}
	ceiling := o.cfg.ScaleCeiling
	if ceiling <= 0 {
		ceiling = 4
	}
	load := o.load.Count()
	u := float64(load) / float64(ceiling)
	if u < 0 {
		u = 0
	}
	if u > 1 {
		u = 1
	}
	span := float64(o.cfg.MaxInterval - o.cfg.MinInterval)
	return o.cfg.MinInterval + time.Duration(span*(1-u))
}

// EffectiveInterval returns the interval computed on the most recent
// round, exposed on /status.
func (o *Orchestrator) EffectiveInterval() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.effectiveInterval
}

// Mode returns the current Automatic/Manual mode.
func (o *Orchestrator) Mode() selection.Mode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mode
}

// SetMode switches between Automatic and Manual. Switching back to
// Automatic does not by itself change the current selection; the next
// probe round's selection pass will.
func (o *Orchestrator) SetMode(mode selection.Mode) {
	o.mu.Lock()
	o.mode = mode
	o.mu.Unlock()
}

// Pin forces the current selection to endpoint under Manual mode.
func (o *Orchestrator) Pin(ctx context.Context, endpoint model.EndpointID) {
	o.SetMode(selection.Manual)
	o.coordinator.Switch(ctx, endpoint, selection.Manual)
}

// RefreshNow causes the next iteration to start immediately; the
// in-flight iteration (if any) is not cancelled.
func (o *Orchestrator) RefreshNow() {
	select {
	case o.refreshCh <- true:
	default:
	}
}

// PauseProbes suspends the scheduler loop after its current round.
func (o *Orchestrator) PauseProbes() {
	select {
	case o.pauseCh <- true:
	default:
	}
}

// ResumeProbes resumes a paused scheduler loop.
func (o *Orchestrator) ResumeProbes() {
	select {
	case o.pauseCh <- false:
	default:
	}
}
