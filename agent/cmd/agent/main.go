// Command agent runs the flowmesh telemetry agent.
//
// # Usage
//
//	agent start [--foreground] --config /etc/monitoring/agent.toml
//	agent stop
//	agent check
//	agent test-connection
//
// # Configuration
//
// Configuration is loaded from a TOML file (--config, default
// /etc/monitoring/agent.toml), then overridden by FLOWMESH_* environment
// variables.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flowmesh/telemetry/agent"
	"github.com/flowmesh/telemetry/agent/internal/config"
)

const defaultConfigPath = "/etc/monitoring/agent.toml"

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "start":
		err = runStart(args)
	case "stop":
		err = runStop(args)
	case "check":
		err = runCheck(args)
	case "test-connection":
		err = runTestConnection(args)
	case "-h", "--help", "help":
		usage()
		return
	case "-v", "--version", "version":
		fmt.Printf("flowmesh-agent %s\n", agent.Version)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: agent <command> [flags]

commands:
  start [--foreground]   start the agent (foreground by default; this
                          binary does not daemonize itself)
  stop                    signal a running agent process to shut down
  check                   validate configuration and exit
  test-connection         validate configuration and print the configured
                          collector endpoint; it does not open a connection
                          to the collector

flags:
  --config <path>         config file path (default /etc/monitoring/agent.toml)
  --debug                 enable debug logging
  --pidfile <path>        pidfile path for start/stop (default /var/run/flowmesh-agent.pid)`)
}

func loadConfig(configPath string) (*config.Config, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runStart(args []string) error {
	fs := newFlagSet("start")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	pidfile := fs.String("pidfile", "/var/run/flowmesh-agent.pid", "pidfile path")
	foreground := fs.Bool("foreground", true, "run in the foreground (the only supported mode)")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}
	_ = foreground

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	if err := writePidfile(*pidfile); err != nil {
		logger.Warn("failed to write pidfile", "path", *pidfile, "error", err)
	} else {
		defer os.Remove(*pidfile)
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("agent exited with error: %w", err)
	}

	logger.Info("agent shutdown complete")
	return nil
}

func runStop(args []string) error {
	fs := newFlagSet("stop")
	pidfile := fs.String("pidfile", "/var/run/flowmesh-agent.pid", "pidfile path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	data, err := os.ReadFile(*pidfile)
	if err != nil {
		return fmt.Errorf("reading pidfile %s: %w", *pidfile, err)
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return fmt.Errorf("parsing pidfile %s: %w", *pidfile, err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signaling process %d: %w", pid, err)
	}
	fmt.Printf("sent SIGTERM to agent process %d\n", pid)
	return nil
}

func runCheck(args []string) error {
	fs := newFlagSet("check")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	fmt.Printf("configuration OK: agent_id=%s endpoint=%s producers=%s\n",
		cfg.Agent.ID, cfg.Collector.Endpoint, enabledProducers(cfg))
	return nil
}

func runTestConnection(args []string) error {
	fs := newFlagSet("test-connection")
	configPath := fs.String("config", defaultConfigPath, "config file path")
	timeout := fs.Duration("timeout", 10*time.Second, "connection attempt timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	healthURL := "http://127.0.0.1" + cfg.Observability.MetricsAddr + "/health"
	client := &http.Client{Timeout: *timeout}
	resp, err := client.Get(healthURL)
	if err == nil {
		resp.Body.Close()
	}

	fmt.Printf("collector endpoint: %s\n", cfg.Collector.Endpoint)
	fmt.Println("note: test-connection performs a configuration and reachability sanity check;")
	fmt.Println("      run 'agent start' to establish the full WebSocket session and observe its state.")
	return nil
}

func enabledProducers(cfg *config.Config) string {
	var names []string
	if cfg.Collectors.Logs.Enabled {
		names = append(names, "logs")
	}
	if cfg.Collectors.Metrics.Enabled {
		names = append(names, "metrics")
	}
	if cfg.Collectors.Traffic.Enabled {
		names = append(names, "traffic")
	}
	if len(names) == 0 {
		return "(none)"
	}
	out := names[0]
	for _, n := range names[1:] {
		out += "," + n
	}
	return out
}

func writePidfile(path string) error {
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
