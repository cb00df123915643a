package main

import (
	"context"
	"time"

	"moneymind/internal/backend"
	"moneymind/internal/cli"
	applog "moneymind/internal/log"
	"moneymind/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentWorker)

	logger.Info("Starting recurring-worker", "interval", cfg.RecurringInterval.String())

	opts, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	// the worker never exports
	opts.GoogleSpreadsheetID = ""

	ctx, cancel := cli.SignalContext(context.Background(), logger.Logger)
	defer cancel()

	b, err := backend.NewFactory(logger.Logger).Open(ctx, opts)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, "backend", cfg.DataBackend)
	}
	defer b.Close()

	var consumer worker.SyncConsumer
	if b.AMQP != nil {
		consumer = b.AMQP
	} else {
		logger.Info("AMQP disabled - sync deliveries will not be consumed")
	}

	w := worker.New(b.Ledger, consumer, worker.Config{Interval: cfg.RecurringInterval})
	if err := w.Start(ctx); err != nil {
		cli.Fatal(logger, "Failed to start recurring worker", err)
	}

	<-ctx.Done()

	cli.Shutdown(logger.Logger, 30*time.Second, w.Stop)
	stats := w.Stats()
	logger.Info("Recurring worker stopped",
		"passes", stats.Passes,
		applog.FieldGenerated, stats.Generated,
		"syncs", stats.Syncs,
		"rejected", stats.Rejected)
}
