package selection

import "sync/atomic"

// Publisher holds the live CurrentSelection behind a lock-free pointer
// swap: the switch coordinator is the single writer, the forwarder and
// status surface are many readers that never observe a torn value.
type Publisher struct {
	ptr atomic.Pointer[CurrentSelection]
}

// NewPublisher builds a Publisher already holding initial.
func NewPublisher(initial CurrentSelection) *Publisher {
	p := &Publisher{}
	p.ptr.Store(&initial)
	return p
}

// Load returns the current selection. Cheap enough to call once per
// incoming request.
func (p *Publisher) Load() CurrentSelection {
	return *p.ptr.Load()
}

// Store publishes a new selection atomically. This is the entire
// "switch": no other coordination is required for new traffic to
// observe it.
func (p *Publisher) Store(s CurrentSelection) {
	p.ptr.Store(&s)
}
