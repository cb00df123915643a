// Package backend assembles the ledger runtime from application config: the
// snapshot store, the optional AMQP client, the optional Sheets exporter and
// the ledger service on top of them.
package backend

import (
	"context"
	"fmt"

	"moneymind/internal/config"
	"moneymind/internal/services"
	"moneymind/internal/storage"
)

// Store is what a storage backend must provide to the ledger runtime.
type Store interface {
	services.SnapshotStore
	RecordExport(ctx context.Context, rec storage.ExportRecord) error
	ListExports(ctx context.Context, owner string, limit int) ([]storage.ExportRecord, error)
	Ping(ctx context.Context) error
}

// BackendType names a storage backend.
type BackendType string

const (
	SQLiteBackend BackendType = BackendType(config.BackendSQLite)
	MemoryBackend BackendType = BackendType(config.BackendMemory)
)

func (bt BackendType) String() string { return string(bt) }

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Options selects what Open wires. Features are disabled by leaving their
// fields empty.
type Options struct {
	Type         BackendType
	SQLiteDBPath string

	Owner           string
	StudentDefaults bool

	AMQPURL          string
	AMQPExchange     string
	AMQPChangesQueue string
	AMQPSyncQueue    string
	// RequireAMQP makes a failed broker connection fatal instead of a warning.
	RequireAMQP bool

	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string
}

// FromAppConfig converts the application config to backend options.
func FromAppConfig(appConfig *config.Config) (Options, error) {
	if appConfig == nil {
		return Options{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Options{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Options{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		Owner:           appConfig.LedgerOwner,
		StudentDefaults: appConfig.StudentDefaults,

		AMQPURL:          appConfig.AMQPURL,
		AMQPExchange:     appConfig.AMQPExchange,
		AMQPChangesQueue: appConfig.AMQPChangesQueue,
		AMQPSyncQueue:    appConfig.AMQPSyncQueue,

		GoogleSpreadsheetID:   appConfig.GoogleSpreadsheetID,
		GoogleSheetName:       appConfig.GoogleSheetName,
		GoogleOAuthClientFile: appConfig.GoogleOAuthClientFile,
		GoogleOAuthTokenFile:  appConfig.GoogleOAuthTokenFile,
		GoogleOAuthClientJSON: appConfig.GoogleOAuthClientJSON,
		GoogleOAuthTokenJSON:  appConfig.GoogleOAuthTokenJSON,
	}, nil
}

// Validate checks the options Open depends on.
func (o Options) Validate() error {
	if !o.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", o.Type)
	}
	if o.Type == SQLiteBackend && o.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	if o.Owner == "" {
		return fmt.Errorf("ledger owner is required")
	}
	if o.RequireAMQP && o.AMQPURL == "" {
		return fmt.Errorf("AMQP URL is required")
	}
	return nil
}
