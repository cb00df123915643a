package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"moneymind/internal/amqp"
	"moneymind/internal/export"
	applog "moneymind/internal/log"
	"moneymind/internal/services"
	"moneymind/internal/sheets"
	gsheet "moneymind/internal/sheets/google"
	"moneymind/internal/storage"
)

// Backend is an assembled ledger runtime. Optional parts are nil when disabled.
type Backend struct {
	Store    Store
	Ledger   *services.LedgerService
	AMQP     *amqp.Client
	Sheets   sheets.RowExporter
	Exporter *export.Service

	closers []func() error
}

// Publisher returns the change publisher, or a nil interface when AMQP is off.
func (b *Backend) Publisher() services.ChangePublisher {
	if b.AMQP == nil {
		return nil
	}
	return b.AMQP
}

// Close releases resources in reverse order of acquisition.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Factory creates backends.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// Open builds the runtime described by opts and loads the ledger. On error
// everything acquired so far is released.
func (f *Factory) Open(ctx context.Context, opts Options) (*Backend, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{}
	if err := f.open(ctx, b, opts); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (f *Factory) open(ctx context.Context, b *Backend, opts Options) error {
	store, err := f.createStore(b, opts)
	if err != nil {
		return err
	}
	b.Store = store

	if opts.AMQPURL != "" {
		client, err := amqp.NewClient(opts.AMQPURL, opts.AMQPExchange, opts.AMQPChangesQueue, opts.AMQPSyncQueue)
		switch {
		case err != nil && opts.RequireAMQP:
			return fmt.Errorf("failed to initialize AMQP client: %w", err)
		case err != nil:
			f.logger.Warn("Failed to initialize AMQP client, continuing without change events", "error", err)
		default:
			b.AMQP = client
			b.closers = append(b.closers, client.Close)
			f.logger.Info("Initialized AMQP client",
				"exchange", opts.AMQPExchange,
				"changes_queue", opts.AMQPChangesQueue,
				"sync_queue", opts.AMQPSyncQueue)
		}
	}

	if opts.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID: opts.GoogleSpreadsheetID,
			SheetName:     opts.GoogleSheetName,
			ClientJSON:    opts.GoogleOAuthClientJSON,
			ClientFile:    opts.GoogleOAuthClientFile,
			TokenJSON:     opts.GoogleOAuthTokenJSON,
			TokenFile:     opts.GoogleOAuthTokenFile,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize Google Sheets exporter: %w", err)
		}
		b.Sheets = client
		f.logger.Info("Initialized Google Sheets exporter", "spreadsheet_id", opts.GoogleSpreadsheetID)
	}

	b.Ledger = services.NewLedgerService(opts.Owner, b.Store, b.Publisher(),
		services.WithStudentDefaults(opts.StudentDefaults))
	if err := b.Ledger.Refresh(ctx); err != nil {
		return fmt.Errorf("load ledger %q: %w", opts.Owner, err)
	}

	b.Exporter = export.NewService(b.Ledger, b.Store, b.Sheets)

	f.logger.Info("Initialized ledger backend",
		applog.FieldOperation, applog.OpStartup,
		"backend", opts.Type,
		applog.FieldOwner, opts.Owner,
		"amqp_enabled", b.AMQP != nil,
		"sheets_enabled", b.Sheets != nil)
	return nil
}

func (f *Factory) createStore(b *Backend, opts Options) (Store, error) {
	switch opts.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(opts.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		b.closers = append(b.closers, repo.Close)
		f.logger.Info("Initialized SQLite store", "db_path", opts.SQLiteDBPath)
		return repo, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory store")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", opts.Type)
	}
}
