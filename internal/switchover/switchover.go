// Package switchover publishes a new CurrentSelection atomically and
// then watches the connection tracker drain the old endpoint, purely
// for observability — no request is ever cancelled or retargeted.
package switchover

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zephyrhq/claude-zephyr/internal/model"
	"github.com/zephyrhq/claude-zephyr/internal/selection"
)

// DrainObserver reports how many active connections are still bound to
// an endpoint; satisfied by *tracker.Tracker.
type DrainObserver interface {
	CountBoundTo(endpoint model.EndpointID) int
}

// SwitchRecorder receives a notification for each completed switch;
// nil-safe. Satisfied by *metrics.Collector.
type SwitchRecorder interface {
	ObserveSwitch()
}

// Config tunes the drain observer's polling.
type Config struct {
	GracefulTimeout time.Duration
	PollInterval    time.Duration
}

// DefaultConfig drains for up to 30s, polling every 200ms.
func DefaultConfig() Config {
	return Config{GracefulTimeout: 30 * time.Second, PollInterval: 200 * time.Millisecond}
}

// Coordinator advances CurrentSelection and reports on old-endpoint
// drain.
type Coordinator struct {
	publisher *selection.Publisher
	tracker   DrainObserver
	cfg       Config
	logger    *logrus.Logger
	metrics   SwitchRecorder
}

// New builds a Coordinator bound to publisher and tracker. logger may
// be nil.
func New(publisher *selection.Publisher, tracker DrainObserver, cfg Config, logger *logrus.Logger) *Coordinator {
	return &Coordinator{publisher: publisher, tracker: tracker, cfg: cfg, logger: logger}
}

// WithMetrics attaches a SwitchRecorder.
func (c *Coordinator) WithMetrics(m SwitchRecorder) *Coordinator {
	c.metrics = m
	return c
}

// Publisher exposes the underlying selection publisher so callers that
// only need to read the current selection (e.g. the orchestrator's
// selection pass, the forwarder) don't need their own reference wired
// through separately.
func (c *Coordinator) Publisher() *selection.Publisher {
	return c.publisher
}

// Switch publishes the new selection and, if it actually changes the
// bound endpoint, starts a background drain observer for the old one.
// Publishing is synchronous and is the only action required to affect
// new traffic; the drain observer never blocks the caller.
//
// ctx is accepted for the caller's own cancellation semantics but is
// not used to bound the drain observer itself: a caller's context
// (e.g. the HTTP request context of a pin command) typically ends the
// instant the caller returns, well before a real drain could finish,
// so the observer always runs against its own background context.
func (c *Coordinator) Switch(ctx context.Context, next model.EndpointID, mode selection.Mode) {
	prev := c.publisher.Load()
	c.publisher.Store(selection.CurrentSelection{Endpoint: next, Mode: mode})

	if prev.Endpoint == next {
		return
	}

	if c.metrics != nil {
		c.metrics.ObserveSwitch()
	}

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"from": prev.Endpoint,
			"to":   next,
		}).Info("switch: current selection published")
	}

	go c.drain(context.Background(), prev.Endpoint)
}

// drain polls the tracker until no connection remains bound to old, or
// the configured graceful timeout elapses. It never cancels anything;
// it exists only to bound log/metric reporting.
func (c *Coordinator) drain(ctx context.Context, old model.EndpointID) {
	deadline := time.Now().Add(c.cfg.GracefulTimeout)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if n := c.tracker.CountBoundTo(old); n == 0 {
			if c.logger != nil {
				c.logger.WithField("endpoint", old).Info("switch: drain complete")
			}
			return
		}
		if time.Now().After(deadline) {
			if c.logger != nil {
				n := c.tracker.CountBoundTo(old)
				c.logger.WithFields(logrus.Fields{
					"endpoint":    old,
					"still_bound": n,
				}).Warn("switch: drain timed out, connections remain bound but uninterrupted")
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
