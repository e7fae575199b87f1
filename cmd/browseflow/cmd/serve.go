package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mfenderov/browseflow/internal/mcp"
	"github.com/mfenderov/browseflow/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveMetricsAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for workflow retrieval.

The server communicates via stdio and provides three tools:
  - search_workflows: Search stored workflows by query
  - recent_workflows: List the newest workflows, optionally per domain
  - get_workflow: Get a specific workflow by ID

Example:
  browseflow serve
  browseflow serve --metrics-addr :9090`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	esClient, err := newESClient(&cfg)
	if err != nil {
		return err
	}
	embedClient, err := newEmbedClient(&cfg)
	if err != nil {
		return err
	}

	mcpConfig := mcp.Config{
		Name:         cfg.MCP.Name,
		Version:      cfg.MCP.Version,
		DefaultLimit: cfg.MCP.DefaultLimit,
	}

	var server *mcp.Server
	if embedClient != nil {
		server, err = mcp.NewServer(mcpConfig, esClient, embedClient)
	} else {
		server, err = mcp.NewServer(mcpConfig, esClient, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	addr := serveMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		stopMetrics := serveMetrics(addr)
		defer stopMetrics()
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Starting MCP server...")

	return server.ServeStdio()
}

// serveMetrics exposes /metrics on addr in the background and returns a
// shutdown function.
func serveMetrics(addr string) func() {
	metrics.Init()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	slog.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
