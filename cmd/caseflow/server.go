package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kalambet/caseflow/internal/api"
	"github.com/kalambet/caseflow/internal/config"
	"github.com/kalambet/caseflow/internal/decision"
	"github.com/kalambet/caseflow/internal/engine"
	"github.com/kalambet/caseflow/internal/messaging"
	"github.com/kalambet/caseflow/internal/orchestrator"
	"github.com/kalambet/caseflow/internal/search"
	"github.com/kalambet/caseflow/internal/storage"
	"github.com/kalambet/caseflow/internal/worker"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the caseflow server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running caseflow server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show caseflow system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "caseflow.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// parseDuration returns def when s is empty or invalid.
func parseDuration(key, s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", s, "default", def)
		return def
	}
	return d
}

func orchestratorConfig(cfg config.Config) orchestrator.Config {
	oc := orchestrator.DefaultConfig()
	oc.MaxDemandInteractions = cfg.Orchestrator.MaxDemandInteractions
	oc.MaxSolutionInteractions = cfg.Orchestrator.MaxSolutionInteractions
	oc.MaxActionsPerTurn = cfg.Orchestrator.MaxActionsPerTurn
	oc.MaxDispatchesPerEvent = cfg.Orchestrator.MaxDispatchesPerEvent
	oc.StrictTransitions = cfg.Orchestrator.StrictTransitions
	oc.IntegrationID = cfg.Messaging.IntegrationID
	oc.HandlerPrefix = cfg.Messaging.HandlerPrefix
	return oc
}

func runServer() error {
	// stdout belongs to the MCP transport when it is enabled.
	fmt.Fprintf(os.Stderr, "caseflow version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log.Level))

	if cfg.Search.BaseURL == "" {
		return fmt.Errorf("missing required config: search.base_url")
	}
	if cfg.Messaging.BaseURL == "" {
		return fmt.Errorf("missing required config: messaging.base_url")
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("caseflow is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("caseflow is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	llmTimeout := parseDuration("llm.timeout", cfg.LLM.Timeout, 20*time.Second)
	eng, err := engine.Detect(engine.DetectConfig{
		Provider: cfg.LLM.Provider,
		BaseURL:  cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  llmTimeout,
	})
	if err != nil {
		return fmt.Errorf("detecting language model backend: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.LLM.Model, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	orch := orchestrator.New(
		store,
		search.New(cfg.Search.BaseURL, cfg.Search.APIKey, cfg.Search.MaxRetries),
		decision.New(eng, cfg.LLM.Model, llmTimeout),
		messaging.New(cfg.Messaging.BaseURL, cfg.Messaging.APIToken, 15*time.Second),
		orchestratorConfig(cfg),
	)

	w := worker.New(store, orch, parseDuration("worker.poll_interval", cfg.Worker.PollInterval, 500*time.Millisecond), cfg.Worker.Concurrency)
	workerDone := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(workerDone)
	}()

	if cfg.Server.MCPEnabled {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(api.MCPDeps{Store: store}))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(api.Deps{Store: store, Turns: orch, Token: cfg.API.Token}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("caseflow listening", "addr", addr, "llm_provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		stop()
		<-workerDone
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	<-workerDone
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("caseflow is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop caseflow (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to caseflow (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	eng, err := engine.Detect(engine.DetectConfig{Provider: cfg.LLM.Provider, BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey})
	if err != nil {
		printStatus("LLM", "%v", err)
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		reachable := eng.IsRunning(checkCtx)
		cancel()
		if reachable {
			printStatus("LLM", "%s (%s) reachable", cfg.LLM.Provider, cfg.LLM.Model)
		} else {
			printStatus("LLM", "%s (%s) not reachable", cfg.LLM.Provider, cfg.LLM.Model)
		}
	}

	printStatus("Search API", "%s", valueOr(cfg.Search.BaseURL, "not configured"))
	printStatus("Messaging API", "%s", valueOr(cfg.Messaging.BaseURL, "not configured"))
	printStatus("Strict transitions", "%t", cfg.Orchestrator.StrictTransitions)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func valueOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
