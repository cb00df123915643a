// Package export writes filtered ledger rows to CSV or a spreadsheet and
// records each export in the ledger's export history.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"moneymind/internal/core"
	applog "moneymind/internal/log"
	"moneymind/internal/reports"
	"moneymind/internal/sheets"
	"moneymind/internal/storage"
)

// Destinations recorded in the export history.
const (
	DestinationCSV    = "csv"
	DestinationSheets = "sheets"
)

// ErrSheetsDisabled is returned by ToSheets when no spreadsheet is configured.
var ErrSheetsDisabled = errors.New("sheets export is not configured")

// SnapshotSource is the read side of the ledger service.
type SnapshotSource interface {
	Owner() string
	Snapshot(ctx context.Context) (core.Snapshot, int64, error)
}

// Recorder persists export history.
type Recorder interface {
	RecordExport(ctx context.Context, rec storage.ExportRecord) error
}

type Service struct {
	ledger   SnapshotSource
	recorder Recorder
	sheets   sheets.RowExporter
	now      func() time.Time
}

// NewService wires the exporter. recorder and sheetsExporter may be nil.
func NewService(ledger SnapshotSource, recorder Recorder, sheetsExporter sheets.RowExporter) *Service {
	return &Service{ledger: ledger, recorder: recorder, sheets: sheetsExporter, now: time.Now}
}

// SheetsEnabled reports whether ToSheets can succeed.
func (s *Service) SheetsEnabled() bool { return s.sheets != nil }

// WriteCSV streams the filtered rows of the current ledger to w.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, f reports.Filter) (storage.ExportRecord, error) {
	rows, version, err := s.rows(ctx, f)
	if err != nil {
		return storage.ExportRecord{}, err
	}
	if err := WriteCSV(w, rows); err != nil {
		return storage.ExportRecord{}, err
	}
	return s.record(ctx, version, DestinationCSV, len(rows)), nil
}

// ToSheets replaces the configured sheet with the filtered rows.
func (s *Service) ToSheets(ctx context.Context, f reports.Filter) (storage.ExportRecord, error) {
	if s.sheets == nil {
		return storage.ExportRecord{}, ErrSheetsDisabled
	}
	rows, version, err := s.rows(ctx, f)
	if err != nil {
		return storage.ExportRecord{}, err
	}
	ref, err := s.sheets.ExportRows(ctx, rows)
	if err != nil {
		return storage.ExportRecord{}, fmt.Errorf("export to sheets: %w", err)
	}
	return s.record(ctx, version, DestinationSheets+":"+ref, len(rows)), nil
}

func (s *Service) rows(ctx context.Context, f reports.Filter) ([]reports.ExportRow, int64, error) {
	snap, version, err := s.ledger.Snapshot(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("load ledger: %w", err)
	}
	rows, err := reports.ExportRows(snap, f)
	if err != nil {
		return nil, 0, err
	}
	return rows, version, nil
}

// record writes history; a failure is logged and does not fail the export.
func (s *Service) record(ctx context.Context, version int64, destination string, n int) storage.ExportRecord {
	rec := storage.ExportRecord{
		Owner:       s.ledger.Owner(),
		Version:     version,
		Destination: destination,
		Rows:        n,
		ExportedAt:  s.now().UTC(),
	}
	if s.recorder == nil {
		return rec
	}
	if err := s.recorder.RecordExport(ctx, rec); err != nil {
		slog.WarnContext(ctx, "Failed to record export",
			applog.FieldComponent, applog.ComponentExport,
			applog.FieldOperation, applog.OpExport,
			applog.FieldOwner, rec.Owner,
			"destination", destination,
			applog.FieldError, err)
	}
	return rec
}

// WriteCSV writes the header and one record per row.
func WriteCSV(w io.Writer, rows []reports.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(sheets.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(sheets.Record(r)); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
