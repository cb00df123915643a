// Package cli holds the start-up and shutdown steps shared by the binaries
// under cmd/.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"moneymind/internal/config"
	applog "moneymind/internal/log"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig loads configuration from the environment and validates it.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the process logger from cfg and installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     cfg.SlogLevel(),
		Format:    cfg.LogFormat,
		Component: component,
		Output:    os.Stdout,
	})
	applog.SetDefault(logger)
	return logger
}

// Bootstrap runs the common start-up sequence. Configuration errors are
// written to stderr and the process exits.
func Bootstrap(component string) (*config.Config, *applog.Logger) {
	LoadEnvFile()
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", component, err)
		os.Exit(1)
	}
	return cfg, SetupLogger(cfg, component)
}

// Fatal logs err and exits.
func Fatal(logger *applog.Logger, msg string, err error, args ...any) {
	logger.Error(msg, append([]any{applog.FieldError, err.Error()}, args...)...)
	os.Exit(1)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Shutdown runs cleanup with a deadline of timeout and logs the outcome.
func Shutdown(logger *slog.Logger, timeout time.Duration, cleanup func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := cleanup(ctx); err != nil {
		if ctx.Err() != nil {
			logger.Warn("Shutdown timeout reached", applog.FieldOperation, applog.OpShutdown, applog.FieldError, err)
			return
		}
		logger.Error("Shutdown error", applog.FieldOperation, applog.OpShutdown, applog.FieldError, err)
		return
	}
	logger.Info("Shutdown complete", applog.FieldOperation, applog.OpShutdown)
}
