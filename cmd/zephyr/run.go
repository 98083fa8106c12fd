package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zephyrhq/claude-zephyr/internal/config"
	"github.com/zephyrhq/claude-zephyr/internal/control"
	"github.com/zephyrhq/claude-zephyr/internal/health"
	"github.com/zephyrhq/claude-zephyr/internal/logging"
	"github.com/zephyrhq/claude-zephyr/internal/metrics"
	"github.com/zephyrhq/claude-zephyr/internal/probe"
	"github.com/zephyrhq/claude-zephyr/internal/proxy"
	"github.com/zephyrhq/claude-zephyr/internal/registry"
	"github.com/zephyrhq/claude-zephyr/internal/selection"
	"github.com/zephyrhq/claude-zephyr/internal/switchover"
	"github.com/zephyrhq/claude-zephyr/internal/tracker"
	"github.com/zephyrhq/claude-zephyr/internal/zerr"
)

// errInterrupted is the sentinel returned on SIGINT so Execute can map
// it to exit code 130.
var errInterrupted = errors.New("interrupted")

// exitCodeFor maps a returned error to a process exit code: 0 on clean
// shutdown, 130 on interrupt, 1 for a configuration problem, 2 for a
// failure to bind the listener.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errInterrupted) {
		return 130
	}
	if kind, ok := zerr.KindOf(err); ok {
		switch kind {
		case zerr.ConfigInvalid, zerr.CredentialMissing:
			return 1
		case zerr.BindFailed:
			return 2
		}
	}
	return 1
}

var shutdownRequested = make(chan struct{}, 1)

func requestShutdown() {
	select {
	case shutdownRequested <- struct{}{}:
	default:
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := logging.New(logging.Options{Level: rootFlags.logLevel, JSON: rootFlags.jsonLogs})

	cfg, err := config.Load(rootFlags.configPath)
	if err != nil {
		logger.WithError(err).Error("failed to load configuration")
		return err
	}

	reg := registry.New(cfg)
	executor := probe.NewCLIExecutor(cfg.HealthCheck.ClaudeBinaryPath, logger)
	tr := tracker.New(tracker.DefaultConfig(), logger)
	metricsCollector := metrics.NewCollector()

	pub := selection.NewPublisher(initialSelection(reg))
	coord := switchover.New(pub, tr, switchover.Config{
		GracefulTimeout: time.Duration(cfg.GracefulSwitchTimeoutMS) * time.Millisecond,
		PollInterval:    200 * time.Millisecond,
	}, logger).WithMetrics(metricsCollector)

	orch := health.New(reg, executor, coord, tr, cfg.HealthCheck, cfg.SwitchThresholdMS, logger).WithMetrics(metricsCollector)

	if rootFlags.testTiming {
		orch.RunOnce(context.Background())
		printTestTimingResults(orch, reg)
		return nil
	}

	printBanner()

	janitor := tracker.NewJanitor(tr, logger)
	if err := janitor.Start(tracker.DefaultSchedule); err != nil {
		return fmt.Errorf("starting tracker janitor: %w", err)
	}
	defer janitor.Stop()

	transport := proxy.NewTransport(proxy.DefaultTransportOptions())
	forwarder := proxy.New(pub, reg, tr, transport, cfg.Retry, logger, metricsCollector)
	surface := control.New(orch, reg, tr, pub, metricsCollector.Handler(), requestShutdown, logger)

	handler := topLevelHandler(surface, forwarder)

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return zerr.New(zerr.BindFailed, err)
	}

	server := &http.Server{Handler: handler}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orch.Run(ctx)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	logger.WithField("listen", cfg.Listen).Info("claude-zephyr listening")

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
		return gracefulShutdown(server, cancel, cfg, sig == syscall.SIGINT)
	case <-shutdownRequested:
		logger.Info("shutdown requested via control surface")
		return gracefulShutdown(server, cancel, cfg, false)
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return zerr.New(zerr.BindFailed, err)
		}
		return nil
	}
}

func gracefulShutdown(server *http.Server, cancel context.CancelFunc, cfg *config.Config, interrupted bool) error {
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.GracefulSwitchTimeoutMS)*time.Millisecond)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	if interrupted {
		return errInterrupted
	}
	return nil
}

// initialSelection picks the first configured endpoint in the default
// group as the startup selection so the forwarder never needs a
// special "no selection yet" case beyond the empty-registry one; the
// first probe round's selection pass takes over from there.
func initialSelection(reg *registry.Registry) selection.CurrentSelection {
	eps := reg.ActiveEndpoints()
	if len(eps) == 0 {
		return selection.CurrentSelection{Mode: selection.Automatic}
	}
	return selection.CurrentSelection{Endpoint: eps[0].ID, Mode: selection.Automatic}
}

// topLevelHandler exempts /status, /health, /metrics, and /control/*
// from proxy interpretation by path match on the single listener.
func topLevelHandler(surface, forwarder http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/status", r.URL.Path == "/health", r.URL.Path == "/metrics", strings.HasPrefix(r.URL.Path, "/control/"):
			surface.ServeHTTP(w, r)
		default:
			forwarder.ServeHTTP(w, r)
		}
	})
}

// printTestTimingResults implements --test-timing: one probe round,
// printed, then exit.
func printTestTimingResults(orch *health.Orchestrator, reg *registry.Registry) {
	for _, st := range orch.StateSnapshot(reg.ActiveEndpoints()) {
		latency := "n/a"
		if st.LastLatencyValid {
			latency = fmt.Sprintf("%dms", st.LastLatencyMS)
		}
		fmt.Printf("%-24s %-10s %s\n", st.Endpoint.Name, st.Status.String(), latency)
	}
}
