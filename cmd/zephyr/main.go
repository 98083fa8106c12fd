// Command claude-zephyr is a local reverse proxy that fronts the
// Claude API with N candidate upstream endpoints and continuously
// routes requests to the lowest-latency healthy endpoint, while
// actively probing every candidate for health.
//
// Usage:
//
//	# Start the server (no dashboard is started)
//	claude-zephyr
//
//	# Same as above: --headless is accepted and has no effect
//	claude-zephyr --headless
//
//	# Run one round of probes and exit
//	claude-zephyr --test-timing
package main

func main() {
	Execute()
}
