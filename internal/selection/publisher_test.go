package selection

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisher_LoadReflectsStore(t *testing.T) {
	p := NewPublisher(CurrentSelection{Endpoint: "g/a", Mode: Automatic})
	require.Equal(t, CurrentSelection{Endpoint: "g/a", Mode: Automatic}, p.Load())

	p.Store(CurrentSelection{Endpoint: "g/b", Mode: Manual})
	require.Equal(t, CurrentSelection{Endpoint: "g/b", Mode: Manual}, p.Load())
}
