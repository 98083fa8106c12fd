// Package tracker records in-flight proxied requests and sweeps ghost
// entries left behind by clients that vanish without a clean
// end-of-stream.
//
// All mutation goes through a single mutex and no operation does I/O
// under the lock. Open, Touch, Close, MarkInterrupted and Count are
// O(1); Snapshot, CountBoundTo and Sweep walk every tracked connection.
package tracker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zephyrhq/claude-zephyr/internal/model"
)

// Status is the lifecycle state of an ActiveConnection.
type Status int

const (
	Open Status = iota
	Closing
	Interrupted
)

func (s Status) String() string {
	switch s {
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// ActiveConnection is one in-flight proxied request. Its bound endpoint
// never changes after creation.
type ActiveConnection struct {
	ID           string
	Endpoint     model.EndpointID
	Status       Status
	StartedAt    time.Time
	LastActivity time.Time
}

// Config tunes the janitor sweep.
type Config struct {
	IdleInterruptAfter time.Duration // default 15s
	HardEjectAfter     time.Duration // default 60s
}

func DefaultConfig() Config {
	return Config{
		IdleInterruptAfter: 15 * time.Second,
		HardEjectAfter:     60 * time.Second,
	}
}

// Tracker is the connection tracker component.
type Tracker struct {
	mu     sync.Mutex
	active map[string]*ActiveConnection
	cfg    Config
	logger *logrus.Logger

	now func() time.Time // overridable for tests
}

// New builds a Tracker. logger may be nil.
func New(cfg Config, logger *logrus.Logger) *Tracker {
	return &Tracker{
		active: make(map[string]*ActiveConnection),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Open allocates a new ActiveConnection bound to endpoint and returns
// its id. The caller must eventually call Close or MarkInterrupted.
func (t *Tracker) Open(endpoint model.EndpointID) string {
	id := uuid.NewString()
	now := t.now()

	t.mu.Lock()
	t.active[id] = &ActiveConnection{
		ID:           id,
		Endpoint:     endpoint,
		Status:       Open,
		StartedAt:    now,
		LastActivity: now,
	}
	t.mu.Unlock()

	return id
}

// Touch updates a connection's last-activity time; called once per
// streamed response chunk.
func (t *Tracker) Touch(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.active[id]; ok {
		c.LastActivity = t.now()
	}
}

// Close removes a connection on normal completion.
func (t *Tracker) Close(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, id)
}

// MarkInterrupted transitions a connection to Interrupted without
// removing it immediately; the next sweep (or a later one) will drop it
// once it ages past HardEjectAfter. Used on client disconnect.
func (t *Tracker) MarkInterrupted(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.active[id]; ok {
		c.Status = Interrupted
	}
}

// Snapshot returns a copy of every active connection, cheap enough to
// call from the status surface and the load signal.
func (t *Tracker) Snapshot() []ActiveConnection {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ActiveConnection, 0, len(t.active))
	for _, c := range t.active {
		out = append(out, *c)
	}
	return out
}

// Count returns the number of active connections — the load signal fed
// into the adaptive probe interval.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// CountBoundTo returns how many active connections are bound to
// endpoint, used by the switch coordinator's drain observer.
func (t *Tracker) CountBoundTo(endpoint model.EndpointID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.active {
		if c.Endpoint == endpoint {
			n++
		}
	}
	return n
}

// Sweep transitions idle Open connections to Interrupted and drops
// Interrupted connections that have aged past HardEjectAfter. It is
// idempotent: calling it twice back to back with no activity in
// between has no further effect.
func (t *Tracker) Sweep() {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, c := range t.active {
		idle := now.Sub(c.LastActivity)
		if c.Status == Open && idle >= t.cfg.IdleInterruptAfter {
			c.Status = Interrupted
			if t.logger != nil {
				t.logger.WithField("connection_id", id).Debug("tracker: idle connection marked interrupted")
			}
		}
		if c.Status == Interrupted && idle >= t.cfg.HardEjectAfter {
			delete(t.active, id)
			if t.logger != nil {
				t.logger.WithField("connection_id", id).Debug("tracker: ejecting interrupted connection")
			}
		}
	}
}
