package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/syllabusflow/internal/config"
	"github.com/Lllllllleong/syllabusflow/internal/extract"
	"github.com/Lllllllleong/syllabusflow/internal/httpapi"
	"github.com/Lllllllleong/syllabusflow/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	generator, err := cfg.NewGenerator(ctx, logger)
	if err != nil {
		return err
	}
	defer generator.Close()

	orch := pipeline.New(extract.NewEngine(logger), generator, cfg.OrchestratorConfig(), logger)
	router := httpapi.NewRouter(httpapi.NewHandler(orch, httpapi.Limits{
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
		MaxLessons:     cfg.Pipeline.MaxTargetLessons,
	}, logger))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Syllabus server listening.", "addr", srv.Addr, "provider", cfg.Generation.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
