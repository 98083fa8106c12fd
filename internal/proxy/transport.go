package proxy

import (
	"net"
	"net/http"
	"time"
)

// TransportOptions tunes the single shared upstream transport. Every
// endpoint speaks HTTPS, so one pool with ALPN negotiation left on
// (h2 is used when the upstream offers it) covers all of them.
type TransportOptions struct {
	DialTimeout           time.Duration
	DialKeepAlive         time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	ResponseHeaderTimeout time.Duration
}

// DefaultTransportOptions returns conservative connection pool sizing
// suitable for a handful of upstream endpoints.
func DefaultTransportOptions() TransportOptions {
	return TransportOptions{
		DialTimeout:           5 * time.Second,
		DialKeepAlive:         60 * time.Second,
		MaxIdleConns:          512,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewTransport builds the *http.Transport every forwarded request goes
// through. One shared transport is enough: requests to different
// endpoints are just different hosts on the same connection pool.
func NewTransport(opts TransportOptions) *http.Transport {
	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: opts.DialKeepAlive}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          opts.MaxIdleConns,
		MaxIdleConnsPerHost:   opts.MaxIdleConnsPerHost,
		IdleConnTimeout:       opts.IdleConnTimeout,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ExpectContinueTimeout: opts.ExpectContinueTimeout,
	}
	if opts.ResponseHeaderTimeout > 0 {
		tr.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
	}
	return tr
}
