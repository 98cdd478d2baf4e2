// Package main implements the legit-rag HTTP API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tacticalcatboy/legit-rag/engine/app"
	"github.com/tacticalcatboy/legit-rag/pkg/config"
	"github.com/tacticalcatboy/legit-rag/pkg/logging"
	"github.com/tacticalcatboy/legit-rag/pkg/metrics"
	"github.com/tacticalcatboy/legit-rag/pkg/mid"
	"github.com/tacticalcatboy/legit-rag/pkg/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEGITRAG_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, File: cfg.Logging.File})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	// --- Build pipeline ---
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Shutdown(a, logger)

	// --- Build HTTP server ---
	srv := &server{
		pipeline:  a.Orchestrator,
		ingestor:  a.Ingestor,
		ledger:    a.Ledger,
		evaluator: a.Evaluator,
		log:       logger.Named("api"),
	}
	router := srv.routes()
	router.Handle("/metrics", metrics.Handler(a.Registry)).Methods(http.MethodGet)

	handler := mid.Chain(router,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.OTel("legit-rag-api"),
	)

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", zap.String("port", cfg.Server.Port))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
}

// routes registers the API endpoints. /metrics is added by the caller.
func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/query", s.handleQuery).Methods(http.MethodPost)
	api.HandleFunc("/documents", s.handleDocuments).Methods(http.MethodPost)
	api.HandleFunc("/workflows", s.handleWorkflows).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}", s.handleWorkflow).Methods(http.MethodGet)
	api.HandleFunc("/workflows/{id}/evaluation", s.handleEvaluation).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	return r
}
