// Package selection holds the pure decision logic sitting between the
// health orchestrator and the proxy forwarder: the endpoint state
// machine, the hysteresis policy that picks a "current" endpoint, and
// the lock-free publisher the forwarder reads at request time.
package selection

import (
	"time"

	"github.com/zephyrhq/claude-zephyr/internal/model"
	"github.com/zephyrhq/claude-zephyr/internal/probe"
	"github.com/zephyrhq/claude-zephyr/internal/zerr"
)

// HealthStatus is the coarse health of an endpoint.
type HealthStatus int

const (
	StatusUnknown HealthStatus = iota
	StatusHealthy
	StatusDegraded
	StatusFailed
)

func (s HealthStatus) String() string {
	switch s {
	case StatusHealthy:
		return "Healthy"
	case StatusDegraded:
		return "Degraded"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// EndpointState is the orchestrator's per-endpoint record. It is
// mutated only by the orchestrator (ApplyOutcome); every other reader
// sees a copy.
type EndpointState struct {
	Endpoint model.Endpoint

	Status HealthStatus

	LastLatencyMS    uint64
	LastLatencyValid bool

	LastProbeStartedAt  time.Time
	LastProbeFinishedAt time.Time

	ConsecutiveFailures uint32

	LastErrorKind      zerr.Kind
	LastErrorKindValid bool
}

// NewEndpointState creates the startup record for an endpoint: status
// Unknown, never destroyed afterwards.
func NewEndpointState(ep model.Endpoint) EndpointState {
	return EndpointState{Endpoint: ep, Status: StatusUnknown}
}

// probeErrorKind maps a probe outcome's failure status to the error
// kind recorded on EndpointState.
func probeErrorKind(status probe.OutcomeStatus) (zerr.Kind, bool) {
	switch status {
	case probe.TimedOut:
		return zerr.ProbeTimeout, true
	case probe.AuthFailed:
		return zerr.ProbeAuthFailed, true
	case probe.NetworkFailed:
		return zerr.ProbeNetworkFailed, true
	case probe.Unknown:
		return zerr.ProbeUnknown, true
	default:
		return "", false
	}
}

// ApplyOutcome folds one probe outcome into prior, returning the new
// state. It is a pure function: the orchestrator is the only caller
// and is responsible for storing the result back into its own state
// table.
func ApplyOutcome(prior EndpointState, outcome probe.Outcome, failureThreshold uint32, startedAt, finishedAt time.Time) EndpointState {
	next := prior
	next.LastProbeStartedAt = startedAt
	next.LastProbeFinishedAt = finishedAt

	switch outcome.Status {
	case probe.Healthy:
		next.Status = StatusHealthy
		next.LastLatencyMS = outcome.LatencyMS
		next.LastLatencyValid = true
		next.ConsecutiveFailures = 0
		next.LastErrorKindValid = false
	case probe.Degraded:
		next.Status = StatusDegraded
		next.LastLatencyMS = outcome.LatencyMS
		next.LastLatencyValid = true
		next.ConsecutiveFailures = 0
		next.LastErrorKindValid = false
	default:
		next.ConsecutiveFailures = prior.ConsecutiveFailures + 1
		if kind, ok := probeErrorKind(outcome.Status); ok {
			next.LastErrorKind = kind
			next.LastErrorKindValid = true
		}
		if next.ConsecutiveFailures >= failureThreshold {
			next.Status = StatusFailed
			next.LastLatencyValid = false
		}
		// else: retain prior status — first failures are "suspect" but
		// not yet Failed.
	}
	return next
}

// Mode is whether the selection policy's output is authoritative
// (Automatic) or advisory only because the operator pinned an endpoint
// (Manual).
type Mode int

const (
	Automatic Mode = iota
	Manual
)

func (m Mode) String() string {
	if m == Manual {
		return "Manual"
	}
	return "Automatic"
}

// CurrentSelection is the endpoint currently preferred for new client
// requests, plus the mode under which it was chosen.
type CurrentSelection struct {
	Endpoint model.EndpointID
	Mode     Mode
}
