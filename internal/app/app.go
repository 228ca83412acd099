// Package app wires the companion service together.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentimentiq/backend/config"
	"github.com/sentimentiq/backend/internal/browser"
	"github.com/sentimentiq/backend/internal/content"
	httpDelivery "github.com/sentimentiq/backend/internal/delivery/http"
	"github.com/sentimentiq/backend/internal/extraction"
	"github.com/sentimentiq/backend/internal/infrastructure/analysis"
	"github.com/sentimentiq/backend/internal/infrastructure/monitoring"
	"github.com/sentimentiq/backend/internal/logging"
	"github.com/sentimentiq/backend/internal/registry"
	"github.com/sentimentiq/backend/internal/storage"
	"github.com/sentimentiq/backend/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
	backendBurst    = 5
)

// NewLogger builds the process logger from configuration.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.IsDevelopment(),
	})
}

// Serve runs the service until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	area, closeArea, err := storage.Open(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := closeArea(); err != nil {
			logger.Warn("failed to close storage", zap.Error(err))
		}
	}()
	logger.Info("storage ready", zap.String("type", cfg.Storage.Type))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics := monitoring.NewMetrics()
	tabs := browser.NewTabTracker()
	reg := registry.New(area, tabs,
		registry.WithLogger(logger),
		registry.WithMetrics(metrics),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = reg.Run(ctx)
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	extractor := extraction.New(
		extraction.WithLogger(logger),
		extraction.WithObserver(metrics.ObserveExtraction),
	)

	patterns := cfg.Content.MatchPatterns
	if len(patterns) == 0 {
		patterns = content.DefaultMatchPatterns
	}
	scanners := content.NewManager(ctx, reg, extractor, content.NewMatcher(patterns), logger,
		content.WithInterval(cfg.Content.PollInterval))
	defer scanners.Close()

	st := store.New(ctx, area, store.WithLogger(logger))
	defer st.Close()

	client := analysis.NewClient(cfg.Backend.BaseURL, analysis.NewSessions(area),
		analysis.WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}),
		analysis.WithRateLimit(cfg.Backend.RatePerSecond, backendBurst),
		analysis.WithLogger(logger),
	)
	logger.Info("analysis backend configured", zap.String("base_url", cfg.Backend.BaseURL))

	handler := httpDelivery.NewHandler(httpDelivery.Dependencies{
		Registry:  reg,
		Tabs:      tabs,
		Scanners:  scanners,
		Extractor: extractor,
		Storage:   area,
		Store:     st,
		Analyzer:  client,
		Checkout:  client,
		Logger:    logger,
	})
	router := httpDelivery.SetupRouter(cfg, handler, metrics, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
