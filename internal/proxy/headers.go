package proxy

import (
	"net/http"
	"net/url"
	"strings"
)

// hopByHop lists the connection-scoped headers that must never survive
// onto the next leg of a request or response.
var hopByHop = map[string]struct{}{
	"Connection":          {},
	"Proxy-Connection":    {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"TE":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
}

// stripHopByHop removes hopByHop's headers in place, plus whatever
// extra header names the Connection header itself nominates.
func stripHopByHop(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, k := range strings.Split(f, ",") {
			k = strings.TrimSpace(k)
			if k != "" {
				h.Del(k)
			}
		}
	}
	for k := range hopByHop {
		if k == "TE" && h.Get("TE") == "trailers" {
			continue
		}
		h.Del(k)
	}
}

// buildUpstreamHeaders derives the header set sent to the resolved
// endpoint from the client's own request headers: a private copy with
// every hop-by-hop header stripped and the client's own credentials
// (if any) replaced by the resolved group's. The clone exists only to
// be mutated this way, so cloning and credential substitution happen
// in one pass rather than as separable, independently reusable steps.
func buildUpstreamHeaders(clientHeader http.Header, credential string) http.Header {
	out := make(http.Header, len(clientHeader)+1)
	for k, vv := range clientHeader {
		cc := make([]string, len(vv))
		copy(cc, vv)
		out[k] = cc
	}

	stripHopByHop(out)

	out.Del("Authorization")
	out.Set("Authorization", "Bearer "+credential)
	out.Set("x-api-key", credential)
	return out
}

// copyHeaders overwrites dst's entries with src's, used to relay an
// upstream response's headers back to the client after hop-by-hop
// stripping.
func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// targetURL rewrites a client request's target onto the resolved
// endpoint's base URL, preserving path and query.
func targetURL(upstreamBase string, reqURL *url.URL) (string, error) {
	base, err := url.Parse(upstreamBase)
	if err != nil {
		return "", err
	}
	u := *base
	u.Path = joinSlash(base.Path, reqURL.Path)
	u.RawQuery = reqURL.RawQuery
	return u.String(), nil
}

// joinSlash joins a base path and a request path with exactly one
// slash between them, regardless of which side already has one.
func joinSlash(a, b string) string {
	as := strings.HasSuffix(a, "/")
	bs := strings.HasPrefix(b, "/")
	switch {
	case as && bs:
		return a + b[1:]
	case !as && !bs:
		return a + "/" + b
	default:
		return a + b
	}
}
