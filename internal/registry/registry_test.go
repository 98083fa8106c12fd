package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zephyrhq/claude-zephyr/internal/config"
	"github.com/zephyrhq/claude-zephyr/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		DefaultGroup: "primary",
		Groups: map[string]config.Group{
			"primary": {
				Name:       "primary",
				Default:    true,
				Credential: "tok-1",
				Endpoints: []config.Endpoint{
					{Name: "a", URL: "https://a.example.com"},
					{Name: "b", URL: "https://b.example.com"},
				},
			},
			"secondary": {
				Name:       "secondary",
				Credential: "tok-2",
				Endpoints: []config.Endpoint{
					{Name: "c", URL: "https://c.example.com"},
				},
			},
		},
	}
}

func TestNew_ActiveGroupIsDefault(t *testing.T) {
	r := New(testConfig())
	require.Equal(t, "primary", r.ActiveGroup())
	eps := r.ActiveEndpoints()
	require.Len(t, eps, 2)
	require.Equal(t, model.EndpointID("primary/a"), eps[0].ID)
}

func TestSetActiveGroup(t *testing.T) {
	r := New(testConfig())
	require.NoError(t, r.SetActiveGroup("secondary"))
	require.Equal(t, "secondary", r.ActiveGroup())
	eps := r.ActiveEndpoints()
	require.Len(t, eps, 1)
	require.Equal(t, "c", eps[0].Name)

	require.Error(t, r.SetActiveGroup("does-not-exist"))
	require.Equal(t, "secondary", r.ActiveGroup(), "failed switch must not change active group")
}

func TestEndpoint_ResolvesAcrossGroups(t *testing.T) {
	r := New(testConfig())
	ep, ok := r.Endpoint(model.EndpointID("secondary/c"))
	require.True(t, ok)
	require.Equal(t, "https://c.example.com", ep.URL)

	_, ok = r.Endpoint(model.EndpointID("primary/does-not-exist"))
	require.False(t, ok)
}

func TestAllEndpoints(t *testing.T) {
	r := New(testConfig())
	eps := r.AllEndpoints()
	require.Len(t, eps, 3)
}

func TestCredential(t *testing.T) {
	r := New(testConfig())
	tok, ok := r.Credential("primary")
	require.True(t, ok)
	require.Equal(t, "tok-1", tok)
}
