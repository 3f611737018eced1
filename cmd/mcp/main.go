package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	mcpadapter "github.com/kirillkom/grounded-rag/internal/adapters/mcp"
	"github.com/kirillkom/grounded-rag/internal/bootstrap"
	"github.com/kirillkom/grounded-rag/internal/config"
	"github.com/kirillkom/grounded-rag/internal/observability/logging"
)

const (
	serviceName = "grag-mcp"
	version     = "0.1.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.New(context.Background(), cfg, serviceName, prometheus.NewRegistry())
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	server := mcpadapter.NewServer(app.QueryUC, app.Repo, version)
	if err := server.ServeStdio(); err != nil {
		logger.Error("mcp_serve_error", "error", err)
		os.Exit(1)
	}
}
