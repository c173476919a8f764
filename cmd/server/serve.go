package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/spf13/cobra"

	"github.com/arturoeanton/repolens/internal/adapter/fsys"
	"github.com/arturoeanton/repolens/internal/adapter/report"
	"github.com/arturoeanton/repolens/internal/adapter/vcs"
	"github.com/arturoeanton/repolens/internal/handler"
	"github.com/arturoeanton/repolens/internal/mcp"
	"github.com/arturoeanton/repolens/internal/metrics"
	"github.com/arturoeanton/repolens/internal/service"
)

const shutdownTimeout = 10 * time.Second

var mcpStdio bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the job workers.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&mcpStdio, "mcp-stdio", false, "serve MCP tools on stdin/stdout instead of HTTP")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting repolens",
		"version", version,
		"port", cfg.Port,
		"db_backend", cfg.DBBackend,
		"workers", cfg.Workers,
		"mcp_enabled", cfg.MCPEnabled,
	)

	// ── Database ─────────────────────────────────────────────────────────
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(); err != nil {
		return err
	}

	// ── Adapters & services ──────────────────────────────────────────────
	finder := fsys.NewDiscoverer()
	git := vcs.NewGitProvider(cfg.GitTimeout)
	reports := report.NewEngine()
	events := service.NewBroadcaster()
	m := metrics.New()

	repoService := service.NewRepoService(st, finder, cfg.DiscoveryDepth)
	analysisService := service.NewAnalysisService(git, finder, cfg.DiscoveryDepth, cfg.ExtractParallelism)
	runner := service.NewRunner(st, st, analysisService, reports, events, m, service.RunnerConfig{
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval,
		JobTimeout:   cfg.JobTimeout,
		ReportsDir:   cfg.ReportsDir,
	})
	if err := runner.Recover(ctx); err != nil {
		return err
	}
	runner.Start(ctx)
	defer func() {
		stop()
		runner.Wait()
	}()

	mcpServer := mcp.NewServer(repoService, runner, st, version, cfg.MCPPort)
	if mcpStdio {
		slog.Info("serving MCP over stdio")
		return mcpServer.ServeStdio()
	}

	// ── Fiber App ────────────────────────────────────────────────────────
	app := handler.NewApp(handler.AppConfig{
		Name:        cfg.AppName,
		Version:     version,
		Prefix:      cfg.APIPrefix,
		CORSOrigins: cfg.CORSOrigins,
		AccessLog:   true,
	}, handler.Dependencies{
		Repos:   repoService,
		Runner:  runner,
		Jobs:    st,
		Events:  events,
		Reports: reports,
		DB:      st,
		Metrics: m,
	})

	// ── MCP Server (separate port) ───────────────────────────────────────
	if cfg.MCPEnabled {
		go func() {
			if err := mcpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("MCP server failed", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := mcpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("MCP shutdown", "error", err)
		}
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			slog.Warn("HTTP shutdown", "error", err)
		}
	}()

	slog.Info("Fiber listening", "port", cfg.Port, "prefix", cfg.APIPrefix)
	if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return err
	}
	return nil
}
