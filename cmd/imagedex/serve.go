package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	chiTransport "github.com/kailas-cloud/imagedex/internal/transport/chi"
	ingestuc "github.com/kailas-cloud/imagedex/internal/usecase/ingest"
	searchuc "github.com/kailas-cloud/imagedex/internal/usecase/search"
	"github.com/kailas-cloud/imagedex/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, envName)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := &a.cfg
	logger := a.logger

	logger.Info("Starting imagedex API server",
		zap.String("version", version.String()),
		zap.String("env", a.env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Ints("dimensions", cfg.Embedding.Dimensions),
	)

	p, err := a.buildProviders(ctx)
	if err != nil {
		return err
	}

	images := ingestuc.New(a.images).
		WithPagination(cfg.Index.DefaultPageSize, cfg.Index.MaxPageSize)
	search := searchuc.New(a.images, cfg.Fields())
	if ds := cfg.ParsedDistances(); len(ds) > 0 {
		search.WithDefaultDistance(ds[0])
	}
	if p.text != nil {
		search.WithTextEmbedder(p.text)
	}
	health := a.health(p).WithTimeout(3 * time.Second)

	server := chiTransport.NewServer(images, search, health, logger)
	if p.annotator != nil {
		server.WithAnnotator(p.annotator)
	}

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chiTransport.NewRouter(server, cfg.Auth.APIKeys),
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
