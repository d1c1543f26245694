package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/album-of-the-day/internal/catalog"
	"github.com/Clark-Hu/album-of-the-day/internal/config"
	httpserver "github.com/Clark-Hu/album-of-the-day/internal/http"
	"github.com/Clark-Hu/album-of-the-day/internal/ledger"
	"github.com/Clark-Hu/album-of-the-day/internal/logging"
	"github.com/Clark-Hu/album-of-the-day/internal/metrics"
	"github.com/Clark-Hu/album-of-the-day/internal/repository"
	"github.com/Clark-Hu/album-of-the-day/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		boot.Fatal().Err(err).Msg("load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config error")
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	storeOpts := store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	}

	st, err := store.New(dbCtx, cfg.DBURL, storeOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer st.Close()
	prometheus.MustRegister(metrics.NewPoolCollector(st.Stats))

	catalogClient, err := catalog.NewHTTPClient(catalog.Options{
		BaseURL:         cfg.CatalogURL,
		APIKey:          cfg.CatalogAPIKey,
		Timeout:         time.Duration(cfg.CatalogTimeoutSecs) * time.Second,
		BreakerFailures: uint32(cfg.CatalogBreakerFailures),
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init catalog client")
	}

	repo := repository.New(st)
	led := ledger.New(st, repo, logger)
	server := httpserver.New(cfg, st, repo, led, catalogClient, logger)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			serverErrCh <- err
			return
		}
		serverErrCh <- nil
	}()

	select {
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("server error")
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("graceful shutdown error")
	}
	logger.Info().Msg("server stopped")
}
