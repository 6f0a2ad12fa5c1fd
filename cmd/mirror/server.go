package main

import (
	"context"
	"encoding/json"
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

	"github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/kalambet/mirror/internal/api"
	"github.com/kalambet/mirror/internal/capture"
	"github.com/kalambet/mirror/internal/config"
	"github.com/kalambet/mirror/internal/ingest"
	"github.com/kalambet/mirror/internal/llm"
	"github.com/kalambet/mirror/internal/memory"
	"github.com/kalambet/mirror/internal/pipeline"
	"github.com/kalambet/mirror/internal/storage"
)

var startMCP bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the mirror server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show mirror system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().BoolVar(&startMCP, "mcp", true, "serve MCP tools over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "mirror.pid")
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

// newGenerator returns the narrative model behind a circuit breaker, or nil
// when narrative enrichment is off or its backend is unavailable.
func newGenerator(cfg config.Config, ollama *llm.OllamaClient, ollamaReady bool, logger *slog.Logger) (llm.Generator, error) {
	if !cfg.Enrichment.NarrativeEnabled {
		return nil, nil
	}

	var gen llm.Generator
	switch cfg.LLM.Provider {
	case config.ProviderOpenAI:
		client, err := llm.NewOpenAI(cfg.LLM.OpenAIAPIKey, cfg.LLM.OpenAIBaseURL, cfg.LLM.Model)
		if err != nil {
			return nil, fmt.Errorf("creating openai client: %w", err)
		}
		gen = client
	default:
		if !ollamaReady {
			logger.Warn("ollama unavailable, narrative enrichment disabled", "url", cfg.LLM.OllamaURL)
			return nil, nil
		}
		gen = ollama
	}
	return llm.NewBreaker(gen, llm.DefaultBreakerConfig(cfg.LLM.Provider), logger), nil
}

func newEnricher(cfg config.Config, gen llm.Generator, metrics *pipeline.Metrics, logger *slog.Logger) *pipeline.Enricher {
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, pipeline.WithMetrics(metrics))
	}
	if gen != nil {
		opts = append(opts, pipeline.WithGenerator(gen))
	}
	return pipeline.NewEnricher(pipeline.Config{
		Parallel:         cfg.Enrichment.Parallel,
		Narrative:        gen != nil,
		NarrativeTimeout: cfg.Enrichment.NarrativeTimeout,
	}, opts...)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "mirror version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	apiToken, err := config.GetAPIToken(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	logger.Info("API bearer token available")

	// Refuse to start twice against the same data dir.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("mirror is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("mirror is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Ollama backs semantic memory and, with the ollama provider, narrative
	// enrichment. The heuristic pipeline runs without it.
	ollama := llm.NewOllama(cfg.LLM.OllamaURL, cfg.LLM.Model, cfg.LLM.EmbedModel)
	ollamaReady := false
	if ollama.IsRunning(ctx) {
		if err := ollama.EnsureModels(ctx, os.Stderr); err != nil {
			logger.Warn("ollama models unavailable", "error", err)
		} else {
			ollamaReady = true
		}
	} else {
		logger.Warn("ollama not running, memory search disabled", "url", cfg.LLM.OllamaURL)
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

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gen, err := newGenerator(cfg, ollama, ollamaReady, logger)
	if err != nil {
		return err
	}
	enricher := newEnricher(cfg, gen, pipeline.NewMetrics(reg), logger)

	deps := capture.Deps{
		Store:    store,
		Enricher: enricher,
		Logger:   logger,
	}
	if ollamaReady {
		deps.Memory = memory.NewIndex(store.DB(), ollama, "")
	}
	svc := capture.New(capture.Config{
		LinkCandidates: cfg.Enrichment.LinkCandidates,
		MemoryTopK:     cfg.Memory.TopK,
	}, deps)

	worker := ingest.NewWorker(store, svc, 500*time.Millisecond, logger)
	go worker.Run(ctx)

	handler := api.NewAppHandler(api.AppDeps{
		Store:    store,
		Capture:  svc,
		Enricher: enricher,
		Gatherer: reg,
		Token:    apiToken,
		Logger:   logger,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if startMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Capture: svc}, version)
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("MCP stdio server error", "error", err)
			}
		}()
		logger.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "mirror listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if llm.NewOllama(cfg.LLM.OllamaURL, cfg.LLM.Model, cfg.LLM.EmbedModel).IsRunning(ctx) {
		printStatus("Ollama", "running at %s", cfg.LLM.OllamaURL)
	} else {
		printStatus("Ollama", "not running")
	}

	printStatus("Provider", "%s", cfg.LLM.Provider)
	printStatus("Model", "%s", cfg.LLM.Model)
	printStatus("Embed model", "%s", cfg.LLM.EmbedModel)
	printStatus("Narrative", "%t", cfg.Enrichment.NarrativeEnabled)

	if running {
		if token, err := config.GetAPIToken(cfg.Storage.DataDir); err == nil {
			c := &apiClient{baseURL: serverURL, token: token, httpClient: client}
			if resp, err := c.get(ctx, "/thoughts?limit=100"); err == nil {
				var thoughts []json.RawMessage
				if decodeJSON(resp, &thoughts) == nil {
					printStatus("Thoughts", "%s", countLabel(len(thoughts), 100))
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
