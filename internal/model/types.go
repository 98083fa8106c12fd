// Package model holds the immutable value types describing the proxy's
// static topology: endpoints, and the groups that bundle them under a
// shared credential.
package model

import "fmt"

// EndpointID is the stable identity of an Endpoint: its group-qualified
// name. It never changes after load.
type EndpointID string

// NewEndpointID derives the stable identity of an endpoint from its
// group and name, kept human-readable for logs and /status.
func NewEndpointID(group, name string) EndpointID {
	return EndpointID(fmt.Sprintf("%s/%s", group, name))
}

// Endpoint is a single upstream base URL that can serve Claude API
// requests. Endpoints are immutable after config load.
type Endpoint struct {
	ID    EndpointID
	Name  string
	URL   string
	Group string
}

// Group is a logical bundle of endpoints sharing one credential token,
// resolved once at startup from the environment.
type Group struct {
	Name       string
	Default    bool
	Credential string
	Endpoints  []Endpoint
}
