// Package registry is the in-memory table of endpoints grouped by
// credential: the source of truth for which endpoints the health
// orchestrator probes and the selection policy chooses among. Per-endpoint
// health state is kept by the orchestrator, not here.
//
// Endpoint identity and group membership are immutable after Load; only
// the active group can be changed at runtime, which re-scopes selection
// without mutating any Endpoint or Group value.
package registry

import (
	"fmt"
	"sync"

	"github.com/zephyrhq/claude-zephyr/internal/config"
	"github.com/zephyrhq/claude-zephyr/internal/model"
)

// Registry holds every configured group/endpoint and tracks which group
// is currently active for selection purposes.
type Registry struct {
	mu           sync.RWMutex
	groups       map[string]model.Group
	activeGroup  string
}

// New builds a Registry from a loaded Config, starting with the
// configured default group active.
func New(cfg *config.Config) *Registry {
	groups := make(map[string]model.Group, len(cfg.Groups))
	for name, g := range cfg.Groups {
		eps := make([]model.Endpoint, 0, len(g.Endpoints))
		for _, e := range g.Endpoints {
			eps = append(eps, model.Endpoint{
				ID:    model.NewEndpointID(name, e.Name),
				Name:  e.Name,
				URL:   e.URL,
				Group: name,
			})
		}
		groups[name] = model.Group{
			Name:       g.Name,
			Default:    g.Default,
			Credential: g.Credential,
			Endpoints:  eps,
		}
	}
	return &Registry{groups: groups, activeGroup: cfg.DefaultGroup}
}

// ActiveGroup returns the name of the currently active group.
func (r *Registry) ActiveGroup() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeGroup
}

// SetActiveGroup switches the active group by name. It is the only
// mutation this registry allows at runtime.
func (r *Registry) SetActiveGroup(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[name]; !ok {
		return fmt.Errorf("registry: unknown group %q", name)
	}
	r.activeGroup = name
	return nil
}

// Group returns a group by name.
func (r *Registry) Group(name string) (model.Group, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[name]
	return g, ok
}

// ActiveEndpoints returns every endpoint in the active group, in the
// order they were configured (selection's tie-break relies on this
// being a stable, deterministic order).
func (r *Registry) ActiveEndpoints() []model.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g := r.groups[r.activeGroup]
	out := make([]model.Endpoint, len(g.Endpoints))
	copy(out, g.Endpoints)
	return out
}

// AllEndpoints returns every endpoint across every group, used by the
// orchestrator to seed EndpointState at startup for endpoints that are
// not (yet) in the active group: state tracking applies regardless of
// which group is active.
func (r *Registry) AllEndpoints() []model.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.Endpoint
	for _, g := range r.groups {
		out = append(out, g.Endpoints...)
	}
	return out
}

// GroupNames returns every configured group name.
func (r *Registry) GroupNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.groups))
	for name := range r.groups {
		out = append(out, name)
	}
	return out
}

// Credential returns the credential token for a group.
func (r *Registry) Credential(group string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[group]
	return g.Credential, ok
}

// Endpoint looks up a single endpoint by id across all groups, used by
// the forwarder to resolve a bound endpoint back to its URL/credential
// even after the active group has moved on: an in-flight
// ActiveConnection must keep resolving to its original endpoint.
func (r *Registry) Endpoint(id model.EndpointID) (model.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, g := range r.groups {
		for _, e := range g.Endpoints {
			if e.ID == id {
				return e, true
			}
		}
	}
	return model.Endpoint{}, false
}
