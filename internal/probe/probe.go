// Package probe runs one health probe against one endpoint: a
// minimal-cost request that shells out to the local Claude CLI and
// classifies the result.
//
// The production Executor is a thin wrapper around os/exec; tests
// substitute the Fake implementation so the health orchestrator and
// selection policy can be exercised without a real CLI or network
// access.
package probe

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zephyrhq/claude-zephyr/internal/model"
)

// canonicalPrompt is the fixed, token-minimal prompt asked of every
// probe, chosen so a probe costs as little as possible to run on every
// tick.
const canonicalPrompt = "<don't-reply>"

// cheapModel keeps probe cost to a minimum.
const cheapModel = "claude-3-5-haiku-20241022"

// maxOutputBytes bounds the stdout/stderr buffers drained from the
// child process so a runaway probe can never block on a full pipe.
const maxOutputBytes = 64 * 1024

// OutcomeStatus is the discriminant of a ProbeOutcome.
type OutcomeStatus int

const (
	Healthy OutcomeStatus = iota
	Degraded
	TimedOut
	AuthFailed
	NetworkFailed
	Unknown
)

func (s OutcomeStatus) String() string {
	switch s {
	case Healthy:
		return "Healthy"
	case Degraded:
		return "Degraded"
	case TimedOut:
		return "TimedOut"
	case AuthFailed:
		return "AuthFailed"
	case NetworkFailed:
		return "NetworkFailed"
	default:
		return "Unknown"
	}
}

// Outcome is the result of a single probe invocation.
type Outcome struct {
	Status     OutcomeStatus
	LatencyMS  uint64 // defined iff Status is Healthy or Degraded
	Detail     string // stderr excerpt / classification detail, for Unknown/failures
}

// Request describes a single probe invocation.
type Request struct {
	Endpoint   model.Endpoint
	Credential string
	Timeout    time.Duration
	// SoftLimitMS is the latency above which a successful probe is
	// classified Degraded rather than Healthy.
	SoftLimitMS uint64
}

// Executor runs one probe and returns its outcome. The production
// implementation execs the Claude CLI; Fake scripts outcomes for tests.
type Executor interface {
	Probe(ctx context.Context, req Request) Outcome
}

// CLIExecutor shells out to a local `claude` binary to run each probe.
type CLIExecutor struct {
	BinaryPath string
	Logger     *logrus.Logger
}

// NewCLIExecutor builds a CLIExecutor. An empty binaryPath defaults to
// "claude" on $PATH.
func NewCLIExecutor(binaryPath string, logger *logrus.Logger) *CLIExecutor {
	if binaryPath == "" {
		binaryPath = "claude"
	}
	return &CLIExecutor{BinaryPath: binaryPath, Logger: logger}
}

var _ Executor = (*CLIExecutor)(nil)

// Probe spawns exactly one `claude` child process with
// ANTHROPIC_BASE_URL/ANTHROPIC_AUTH_TOKEN pointed at the endpoint and
// credential under test, and classifies the result.
func (c *CLIExecutor) Probe(ctx context.Context, req Request) Outcome {
	start := time.Now()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.BinaryPath,
		"-p", canonicalPrompt,
		"--model", cheapModel,
		"--disallowed-tools", "*",
		"--append-system-prompt", "Respond with only 'ok'. Be extremely brief.",
	)
	cmd.Env = append(cmd.Environ(),
		"ANTHROPIC_BASE_URL="+req.Endpoint.URL,
		"ANTHROPIC_AUTH_TOKEN="+req.Credential,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = boundedWriter{&stdout, maxOutputBytes}
	cmd.Stderr = boundedWriter{&stderr, maxOutputBytes}

	err := cmd.Run()
	latency := uint64(time.Since(start).Milliseconds())

	if ctx.Err() == context.DeadlineExceeded {
		if c.Logger != nil {
			c.Logger.WithField("endpoint", req.Endpoint.ID).Warn("probe timed out")
		}
		return Outcome{Status: TimedOut, Detail: "timed out after " + timeout.String()}
	}

	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		status := classifyFailure(detail)
		if c.Logger != nil {
			c.Logger.WithFields(logrus.Fields{
				"endpoint": req.Endpoint.ID,
				"status":   status.String(),
			}).Warn("probe failed: " + detail)
		}
		return Outcome{Status: status, Detail: detail}
	}

	if stdout.Len() == 0 {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "no output from claude command"
		}
		return Outcome{Status: classifyFailure(detail), Detail: detail}
	}

	status := Healthy
	if req.SoftLimitMS > 0 && latency > req.SoftLimitMS {
		status = Degraded
	}
	if c.Logger != nil {
		c.Logger.WithFields(logrus.Fields{
			"endpoint":   req.Endpoint.ID,
			"latency_ms": latency,
			"status":     status.String(),
		}).Debug("probe succeeded")
	}
	return Outcome{Status: status, LatencyMS: latency}
}

// classifyFailure recognises the stderr patterns associated with
// credential rejection versus network failure, so the two can be
// reported as distinct outcome kinds instead of one generic failure.
func classifyFailure(stderr string) OutcomeStatus {
	lower := strings.ToLower(stderr)
	switch {
	case containsAny(lower, "invalid x-api-key", "authentication_error", "unauthorized", "invalid api key", "401"):
		return AuthFailed
	case containsAny(lower, "connection refused", "no such host", "dns", "tls", "certificate", "network is unreachable", "timeout connecting"):
		return NetworkFailed
	default:
		return Unknown
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// boundedWriter caps the number of bytes copied into an underlying
// buffer so a chatty child process can't exhaust memory; excess bytes
// are silently dropped rather than blocking the pipe.
type boundedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w boundedWriter) Write(p []byte) (int, error) {
	if w.buf.Len() >= w.limit {
		return len(p), nil
	}
	remaining := w.limit - w.buf.Len()
	if len(p) > remaining {
		_, _ = io.Copy(w.buf, bytes.NewReader(p[:remaining]))
		return len(p), nil
	}
	return w.buf.Write(p)
}
