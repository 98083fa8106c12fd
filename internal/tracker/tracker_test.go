package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zephyrhq/claude-zephyr/internal/model"
)

func newTestTracker(cfg Config) (*Tracker, *time.Time) {
	t0 := time.Now()
	tr := New(cfg, nil)
	cur := t0
	tr.now = func() time.Time { return cur }
	return tr, &cur
}

func TestOpenCloseLeavesCountUnchanged(t *testing.T) {
	tr, _ := newTestTracker(DefaultConfig())
	before := tr.Count()

	id := tr.Open(model.EndpointID("g/a"))
	require.Equal(t, before+1, tr.Count())

	tr.Close(id)
	require.Equal(t, before, tr.Count())
}

func TestCountBoundTo(t *testing.T) {
	tr, _ := newTestTracker(DefaultConfig())
	id1 := tr.Open(model.EndpointID("g/a"))
	tr.Open(model.EndpointID("g/b"))
	require.Equal(t, 1, tr.CountBoundTo(model.EndpointID("g/a")))

	tr.Close(id1)
	require.Equal(t, 0, tr.CountBoundTo(model.EndpointID("g/a")))
}

func TestSweep_IdleThenHardEject(t *testing.T) {
	cfg := Config{IdleInterruptAfter: 15 * time.Second, HardEjectAfter: 60 * time.Second}
	tr, cur := newTestTracker(cfg)

	id := tr.Open(model.EndpointID("g/a"))

	*cur = cur.Add(10 * time.Second)
	tr.Sweep()
	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, Open, snap[0].Status)

	*cur = cur.Add(10 * time.Second) // total 20s idle
	tr.Sweep()
	snap = tr.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, Interrupted, snap[0].Status)

	*cur = cur.Add(45 * time.Second) // total 65s since last activity
	tr.Sweep()
	require.Equal(t, 0, tr.Count())

	_ = id
}

func TestSweep_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	tr, cur := newTestTracker(cfg)
	tr.Open(model.EndpointID("g/a"))

	*cur = cur.Add(20 * time.Second)
	tr.Sweep()
	first := tr.Snapshot()

	tr.Sweep()
	second := tr.Snapshot()

	require.Equal(t, first, second)
}

func TestTouch_ResetsIdleClock(t *testing.T) {
	cfg := DefaultConfig()
	tr, cur := newTestTracker(cfg)
	id := tr.Open(model.EndpointID("g/a"))

	*cur = cur.Add(10 * time.Second)
	tr.Touch(id)

	*cur = cur.Add(10 * time.Second) // 10s since touch, well under 15s idle threshold
	tr.Sweep()
	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, Open, snap[0].Status)
}

func TestMarkInterrupted(t *testing.T) {
	tr, _ := newTestTracker(DefaultConfig())
	id := tr.Open(model.EndpointID("g/a"))
	tr.MarkInterrupted(id)

	snap := tr.Snapshot()
	require.Len(t, snap, 1)
	require.Equal(t, Interrupted, snap[0].Status)
}
