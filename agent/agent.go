// Package agent wires together configuration, producers, the batcher, and
// the transport client into a single running telemetry agent.
//
// # Agent Lifecycle
//
//  1. Load configuration
//  2. Optionally call Enroll, which exchanges an enrollment secret for a
//     bearer token when no static auth token is configured (Run does not
//     enroll by itself)
//  3. Start registered producers (logs, metrics, traffic) against a shared
//     ring buffer
//  4. Start the batcher, draining the ring buffer into compressed batches
//  5. Start the transport client, shipping batches with reconnect/backoff
//  6. Run until shutdown signal
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/flowmesh/telemetry/agent/internal/batcher"
	"github.com/flowmesh/telemetry/agent/internal/config"
	"github.com/flowmesh/telemetry/agent/internal/enroll"
	"github.com/flowmesh/telemetry/agent/internal/observability"
	"github.com/flowmesh/telemetry/agent/internal/producers"
	"github.com/flowmesh/telemetry/agent/internal/transport"
	"github.com/flowmesh/telemetry/pkg/model"
	"github.com/flowmesh/telemetry/pkg/ringbuffer"
)

// Version is set at build time.
var Version = "dev"

// Agent is the main telemetry agent: it owns the ring buffer, registered
// producers, batcher, and transport client for one collector connection.
type Agent struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics
	registry *producers.Registry
	buf      *ringbuffer.Buffer
	batcher  *batcher.Batcher
	client   *transport.Client

	startTime time.Time
}

// New creates a new agent with the given configuration, registering one
// producer per enabled entry under [collectors.*].
func New(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	registry := producers.NewRegistry()
	if cfg.Collectors.Logs.Enabled {
		registry.Register(producers.NewLogsProducer(logger, cfg.Collectors.Logs.Paths))
		logger.Info("registered producer", "name", "logs", "paths", len(cfg.Collectors.Logs.Paths))
	}
	if cfg.Collectors.Metrics.Enabled {
		interval := time.Duration(cfg.Collectors.Metrics.IntervalSecs) * time.Second
		registry.Register(producers.NewMetricsProducer(logger, interval, cfg.Collectors.Metrics.ScrapeURLs))
		logger.Info("registered producer", "name", "metrics", "interval", interval)
	}
	if cfg.Collectors.Traffic.Enabled {
		interval := time.Duration(cfg.Collectors.Traffic.IntervalSecs) * time.Second
		registry.Register(producers.NewTrafficProducer(logger, interval))
		logger.Info("registered producer", "name", "traffic", "interval", interval)
	}

	buf := ringbuffer.New(cfg.Buffer.MaxEvents)

	b := batcher.New(batcher.Config{
		AgentID:       cfg.Agent.ID,
		Hostname:      cfg.Agent.Hostname,
		MaxBatchSize:  cfg.Buffer.MaxBatchSize,
		FlushInterval: time.Duration(cfg.Buffer.FlushIntervalSecs) * time.Second,
		Compression:   model.CompressionType(cfg.Buffer.Compression),
		Logger:        logger,
	}, buf)

	client := transport.New(transport.Config{
		Endpoint:           cfg.Collector.Endpoint,
		AuthToken:          cfg.Collector.AuthToken,
		InsecureSkipVerify: cfg.Collector.InsecureSkipVerify,
		ConnectTimeout:     cfg.Collector.ConnectTimeout,
		MaxRetries:         cfg.Collector.MaxRetries,
		InitialBackoff:     cfg.Collector.InitialBackoff,
		MaxBackoff:         cfg.Collector.MaxBackoff,
		Logger:             logger,
	})

	a := &Agent{
		cfg:       cfg,
		logger:    logger,
		metrics:   observability.NewMetrics(),
		registry:  registry,
		buf:       buf,
		batcher:   b,
		client:    client,
		startTime: time.Now(),
	}

	return a, nil
}

// Enroll exchanges enrollmentToken for a bearer token and rebuilds the
// transport client to use it. It is a no-op if a static auth token is
// already configured.
func (a *Agent) Enroll(ctx context.Context, enrollmentToken string) error {
	if a.cfg.Collector.AuthToken != "" {
		return nil
	}

	client := enroll.NewClient(enroll.Config{
		BaseURL:            httpBaseURL(a.cfg.Collector.Endpoint),
		InsecureSkipVerify: a.cfg.Collector.InsecureSkipVerify,
	})
	resp, err := client.Enroll(ctx, a.cfg.Agent.ID, enrollmentToken)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}

	a.cfg.Collector.AuthToken = resp.Token
	a.client = transport.New(transport.Config{
		Endpoint:           a.cfg.Collector.Endpoint,
		AuthToken:          resp.Token,
		InsecureSkipVerify: a.cfg.Collector.InsecureSkipVerify,
		ConnectTimeout:     a.cfg.Collector.ConnectTimeout,
		MaxRetries:         a.cfg.Collector.MaxRetries,
		InitialBackoff:     a.cfg.Collector.InitialBackoff,
		MaxBackoff:         a.cfg.Collector.MaxBackoff,
		Logger:             a.logger,
	})
	a.logger.Info("enrolled with collector", "agent_id", a.cfg.Agent.ID, "expires_at", resp.ExpiresAt)
	return nil
}

// Run starts the agent and blocks until context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting agent",
		"agent_id", a.cfg.Agent.ID,
		"version", Version,
		"endpoint", a.cfg.Collector.Endpoint)

	errCh := make(chan error, 3)

	go func() {
		errCh <- a.registry.StartAll(ctx, a.logger, a.buf)
	}()

	go func() {
		errCh <- a.batcher.Run(ctx)
	}()

	go func() {
		errCh <- a.client.Run(ctx, a.batcher.Batches())
	}()

	go a.sampleBufferDepth(ctx)

	if addr := a.cfg.Observability.MetricsAddr; addr != "" {
		go a.serveMetrics(ctx, addr)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// sampleBufferDepth periodically copies ring-buffer occupancy into the
// internal Prometheus registry for operators monitoring the agent fleet.
func (a *Agent) sampleBufferDepth(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.BufferDepth.Set(float64(a.buf.Len()))
		}
	}
}

// serveMetrics mounts the agent's internal Prometheus registry and a
// liveness endpoint at addr until ctx is canceled.
func (a *Agent) serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/health", a.handleHealth)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		a.logger.Error("internal metrics server failed", "error", err)
	}
}

func (a *Agent) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := a.client.State()
	if state == transport.StateExhausted {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	fmt.Fprintf(w, "state=%s uptime=%s\n", state, time.Since(a.startTime).Round(time.Second))
}

// State returns the transport connection state.
func (a *Agent) State() transport.State {
	return a.client.State()
}

// httpBaseURL derives an http(s) base URL from a ws(s) collector endpoint,
// dropping the /ingest path so the enrollment client can target
// /api/v1/enroll on the same host.
func httpBaseURL(wsEndpoint string) string {
	switch {
	case strings.HasPrefix(wsEndpoint, "wss://"):
		return "https://" + trimPath(strings.TrimPrefix(wsEndpoint, "wss://"))
	case strings.HasPrefix(wsEndpoint, "ws://"):
		return "http://" + trimPath(strings.TrimPrefix(wsEndpoint, "ws://"))
	default:
		return wsEndpoint
	}
}

func trimPath(hostAndPath string) string {
	if i := strings.IndexByte(hostAndPath, '/'); i >= 0 {
		return hostAndPath[:i]
	}
	return hostAndPath
}
