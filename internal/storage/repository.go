package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"moneymind/internal/core"
	applog "moneymind/internal/log"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned by Load when the owner has no stored ledger.
	ErrNotFound = errors.New("ledger not found")
	// ErrVersionConflict is returned by Save when the stored version moved on.
	ErrVersionConflict = errors.New("ledger version conflict")
)

// SQLiteRepository stores one JSON ledger document per owner.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one connection avoids SQLITE_BUSY between the ledger service's own writes
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Load returns the stored ledger of owner and its version.
func (r *SQLiteRepository) Load(ctx context.Context, owner string) (core.Snapshot, int64, error) {
	var (
		document string
		version  int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT document, version FROM ledgers WHERE owner_id = ?`, owner,
	).Scan(&document, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Snapshot{}, 0, ErrNotFound
	}
	if err != nil {
		return core.Snapshot{}, 0, fmt.Errorf("query ledger: %w", err)
	}

	var snap core.Snapshot
	if err := json.Unmarshal([]byte(document), &snap); err != nil {
		return core.Snapshot{}, 0, fmt.Errorf("decode ledger document: %w", err)
	}
	return snap, version, nil
}

// Save replaces the owner's document if its stored version is still expected
// (0 when the owner has no document yet) and returns the new version.
// ErrVersionConflict means another writer committed first.
func (r *SQLiteRepository) Save(ctx context.Context, owner string, snap core.Snapshot, expected int64) (int64, error) {
	document, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode ledger document: %w", err)
	}

	now := time.Now().UTC()
	var row *sql.Row
	if expected == 0 {
		row = r.db.QueryRowContext(ctx, `
			INSERT INTO ledgers (owner_id, document, version, updated_at)
			VALUES (?, ?, 1, ?)
			ON CONFLICT(owner_id) DO NOTHING
			RETURNING version`,
			owner, string(document), now)
	} else {
		row = r.db.QueryRowContext(ctx, `
			UPDATE ledgers SET document = ?, version = version + 1, updated_at = ?
			WHERE owner_id = ? AND version = ?
			RETURNING version`,
			string(document), now, owner, expected)
	}

	var version int64
	if err := row.Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: owner %s, expected version %d", ErrVersionConflict, owner, expected)
		}
		return 0, fmt.Errorf("save ledger: %w", err)
	}

	slog.DebugContext(ctx, "Ledger saved to SQLite",
		applog.FieldComponent, applog.ComponentStorage,
		applog.FieldOwner, owner,
		applog.FieldVersion, version,
		"transactions", len(snap.Transactions),
		"bytes", len(document))

	return version, nil
}

// Version returns the stored version of owner's document, 0 when there is none.
func (r *SQLiteRepository) Version(ctx context.Context, owner string) (int64, error) {
	var version int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM ledgers WHERE owner_id = ?`, owner).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query ledger version: %w", err)
	}
	return version, nil
}

// ExportRecord is one completed export of a ledger version.
type ExportRecord struct {
	Owner       string    `json:"owner"`
	Version     int64     `json:"version"`
	Destination string    `json:"destination"`
	Rows        int       `json:"rows"`
	ExportedAt  time.Time `json:"exportedAt"`
}

// RecordExport appends an export to the owner's export history.
func (r *SQLiteRepository) RecordExport(ctx context.Context, rec ExportRecord) error {
	if rec.ExportedAt.IsZero() {
		rec.ExportedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ledger_exports (owner_id, version, destination, rows, exported_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Owner, rec.Version, rec.Destination, rec.Rows, rec.ExportedAt,
	)
	if err != nil {
		return fmt.Errorf("record export: %w", err)
	}
	return nil
}

// ListExports returns the owner's most recent exports, newest first.
func (r *SQLiteRepository) ListExports(ctx context.Context, owner string, limit int) ([]ExportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_id, version, destination, rows, exported_at
		FROM ledger_exports
		WHERE owner_id = ?
		ORDER BY exported_at DESC, id DESC
		LIMIT ?`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("query exports: %w", err)
	}
	defer rows.Close()

	var out []ExportRecord
	for rows.Next() {
		var rec ExportRecord
		if err := rows.Scan(&rec.Owner, &rec.Version, &rec.Destination, &rec.Rows, &rec.ExportedAt); err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
