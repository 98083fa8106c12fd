package probe

import (
	"context"
	"sync"

	"github.com/zephyrhq/claude-zephyr/internal/model"
)

// Fake is a scripted Executor for tests: callers enqueue outcomes per
// endpoint (or a default) and Fake returns them in order, falling back
// to the default once a per-endpoint queue is exhausted.
type Fake struct {
	mu       sync.Mutex
	queued   map[model.EndpointID][]Outcome
	def      Outcome
	requests []Request
}

// NewFake builds a Fake that returns def for any endpoint with no
// queued outcomes.
func NewFake(def Outcome) *Fake {
	return &Fake{queued: make(map[model.EndpointID][]Outcome), def: def}
}

var _ Executor = (*Fake)(nil)

// Enqueue appends outcomes to be returned, in order, for endpoint id.
func (f *Fake) Enqueue(id model.EndpointID, outcomes ...Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[id] = append(f.queued[id], outcomes...)
}

// Probe implements Executor.
func (f *Fake) Probe(_ context.Context, req Request) Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	q := f.queued[req.Endpoint.ID]
	if len(q) == 0 {
		return f.def
	}
	out := q[0]
	f.queued[req.Endpoint.ID] = q[1:]
	return out
}

// Requests returns every request seen so far, for assertions.
func (f *Fake) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}
