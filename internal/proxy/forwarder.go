// Package proxy binds each incoming client request to the current
// selection, rewrites the request onto the chosen upstream, streams
// the response back, and keeps the connection tracker in sync for the
// lifetime of the request.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/zephyrhq/claude-zephyr/internal/config"
	"github.com/zephyrhq/claude-zephyr/internal/registry"
	"github.com/zephyrhq/claude-zephyr/internal/selection"
	"github.com/zephyrhq/claude-zephyr/internal/tracker"
	"github.com/zephyrhq/claude-zephyr/internal/zerr"
)

// streamChunkSize bounds how much of the upstream response is read
// before each write+touch cycle, so a slow or very large response
// still advances the connection's idle clock incrementally instead of
// only once at completion.
const streamChunkSize = 32 * 1024

// Recorder receives forwarding outcomes for metrics; nil-safe.
type Recorder interface {
	ObserveRequest(endpoint, status string, duration time.Duration)
}

// Forwarder proxies client requests to whichever endpoint is currently
// selected, retrying transient upstream failures without changing
// endpoints mid-request.
type Forwarder struct {
	publisher *selection.Publisher
	registry  *registry.Registry
	tracker   *tracker.Tracker
	transport http.RoundTripper
	retry     config.Retry
	logger    *logrus.Logger
	metrics   Recorder
}

// New builds a Forwarder. metrics may be nil.
func New(pub *selection.Publisher, reg *registry.Registry, tr *tracker.Tracker, rt http.RoundTripper, retryCfg config.Retry, logger *logrus.Logger, metrics Recorder) *Forwarder {
	return &Forwarder{publisher: pub, registry: reg, tracker: tr, transport: rt, retry: retryCfg, logger: logger, metrics: metrics}
}

var _ http.Handler = (*Forwarder)(nil)

// ServeHTTP resolves the current selection, opens a tracked connection
// against it, forwards the request with retry, and streams the
// response back to the client.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	sel := f.publisher.Load()
	if sel.Endpoint == "" {
		f.writeStructuredError(w, zerr.New(zerr.NoHealthyEndpoint, nil), http.StatusServiceUnavailable, "all_endpoints_failed")
		return
	}

	ep, ok := f.registry.Endpoint(sel.Endpoint)
	if !ok {
		f.writeStructuredError(w, zerr.New(zerr.NoHealthyEndpoint, nil), http.StatusServiceUnavailable, "all_endpoints_failed")
		return
	}
	credential, _ := f.registry.Credential(ep.Group)

	connID := f.tracker.Open(ep.ID)
	outcome := "ok"
	defer func() {
		if f.metrics != nil {
			f.metrics.ObserveRequest(string(ep.ID), outcome, time.Since(start))
		}
	}()

	target, err := targetURL(ep.URL, r.URL)
	if err != nil {
		f.tracker.Close(connID)
		outcome = "bad_target"
		http.Error(w, "bad upstream target", http.StatusBadGateway)
		return
	}

	hdr := buildUpstreamHeaders(r.Header, credential)

	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
	}

	resp, rtErr := f.roundTripWithRetry(r.Context(), r.Method, target, hdr, body)
	if rtErr != nil {
		f.tracker.Close(connID)
		outcome = "upstream_error"
		kind := classifyUpstreamError(rtErr)
		f.writeStructuredError(w, zerr.New(kind, rtErr), http.StatusBadGateway, "upstream_unavailable")
		if f.logger != nil {
			f.logger.WithFields(logrus.Fields{"endpoint": ep.ID, "error": rtErr}).Warn("forwarder: upstream request failed after retries")
		}
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		outcome = "upstream_http_error"
	}

	stripHopByHop(resp.Header)
	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if fl, ok := w.(http.Flusher); ok {
		fl.Flush()
	}

	interrupted := f.stream(r.Context(), w, resp.Body, connID)
	if interrupted {
		outcome = "client_disconnect"
		f.tracker.MarkInterrupted(connID)
	} else {
		f.tracker.Close(connID)
	}
}

// stream copies the upstream body to the client in bounded chunks,
// touching the tracker after each one, and detects client disconnect
// via the request context.
func (f *Forwarder) stream(ctx context.Context, w http.ResponseWriter, body io.Reader, connID string) (interrupted bool) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, streamChunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return true
			}
			if flusher != nil {
				flusher.Flush()
			}
			f.tracker.Touch(connID)
		}
		if ctx.Err() != nil {
			return true
		}
		if err != nil {
			if err == io.EOF {
				return false
			}
			return true
		}
	}
}

// roundTripWithRetry issues the upstream request, retrying on I/O
// error per the configured backoff. Retries never cross endpoints:
// selection is sticky for the lifetime of the request.
func (f *Forwarder) roundTripWithRetry(ctx context.Context, method, target string, hdr http.Header, body []byte) (*http.Response, error) {
	var resp *http.Response
	var lastErr error

	attempt := func() error {
		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header = hdr.Clone()

		r, err := f.transport.RoundTrip(req)
		if err != nil {
			lastErr = err
			return err
		}
		resp = r
		return nil
	}

	if !f.retry.Enabled {
		if err := attempt(); err != nil {
			return nil, lastErr
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.retry.BaseDelay
	bo.Multiplier = float64(f.retry.BackoffMultiplier)
	bo.MaxElapsedTime = 0

	var maxRetries uint64
	if f.retry.MaxAttempts > 1 {
		maxRetries = uint64(f.retry.MaxAttempts - 1)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)

	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, lastErr
	}
	return resp, nil
}

// classifyUpstreamError distinguishes a failure to connect from a
// failure mid-transfer.
func classifyUpstreamError(err error) zerr.Kind {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return zerr.UpstreamConnectError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return zerr.UpstreamConnectError
	}
	return zerr.UpstreamIoError
}

// writeStructuredError writes a minimal JSON error body and names the
// error kind in the X-Zephyr-Error-Kind response header.
func (f *Forwarder) writeStructuredError(w http.ResponseWriter, kindErr *zerr.Error, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Zephyr-Error-Kind", string(kindErr.Kind))
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + body + `"}`))
}
