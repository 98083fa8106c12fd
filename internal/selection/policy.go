package selection

import "github.com/zephyrhq/claude-zephyr/internal/model"

// Select implements the selection policy: a pure, deterministic
// function from a snapshot of endpoint states and the
// currently-selected endpoint to the next current selection.
//
// states is taken to be in definition order; ties are broken by that
// order, so callers must pass registry.ActiveEndpoints-ordered state,
// not a map-derived one.
func Select(states []EndpointState, current model.EndpointID, switchThresholdMS int64) model.EndpointID {
	var (
		best      EndpointState
		haveBest  bool
		currentOK bool
		currentSt EndpointState
	)

	for _, st := range states {
		if st.Status != StatusHealthy && st.Status != StatusDegraded {
			continue
		}
		if !st.LastLatencyValid {
			continue
		}
		if !haveBest || st.LastLatencyMS < best.LastLatencyMS {
			best = st
			haveBest = true
		}
		if st.Endpoint.ID == current {
			currentOK = true
			currentSt = st
		}
	}

	if !haveBest {
		// C is empty: never regress onto a Failed/Unknown endpoint.
		return current
	}

	if !currentOK {
		// current isn't a healthy candidate: forced switch.
		return best.Endpoint.ID
	}

	if currentSt.LastLatencyMS-best.LastLatencyMS >= uint64(switchThresholdMS) {
		return best.Endpoint.ID
	}

	return current
}
