package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"moneymind/internal/backend"
	"moneymind/internal/cli"
	apphttp "moneymind/internal/http"
	applog "moneymind/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp)

	opts, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger.Logger)
	defer cancel()

	b, err := backend.NewFactory(logger.Logger).Open(ctx, opts)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, "backend", cfg.DataBackend)
	}
	defer b.Close()

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:   b.Ledger,
		Exporter: b.Exporter,
		History:  b.Store,
		Health:   b.Store,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ReportCacheSize:    cfg.ReportCacheSize,
		ReportCacheTTL:     cfg.ReportCacheTTL,
		TrustedProxies:     cfg.TrustedProxies,
		Logger:             logger,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to configure server", err)
	}

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting moneymind server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			applog.FieldOwner, cfg.LedgerOwner)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
		}
	}

	cli.Shutdown(logger.Logger, 30*time.Second, srv.Shutdown)
	logger.Info("Server stopped gracefully")
}
