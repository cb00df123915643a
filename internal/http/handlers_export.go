package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"moneymind/internal/core"
	applog "moneymind/internal/log"
	"moneymind/internal/storage"
)

const defaultHistoryLimit = 20

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		http.Error(w, "export not configured", http.StatusServiceUnavailable)
		return
	}
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	// buffered so a failure can still produce a JSON error
	var buf bytes.Buffer
	rec, err := s.exporter.WriteCSV(r.Context(), &buf, f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	filename := fmt.Sprintf("moneymind-%s-%s.csv", s.ledger.Owner(), core.DateOf(s.now()).String())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Export-Rows", strconv.Itoa(rec.Rows))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil || !s.exporter.SheetsEnabled() {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "unavailable", Message: "sheets export is not configured"})
		return
	}
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := s.exporter.ToSheets(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Exported ledger to sheets",
		applog.FieldOwner, rec.Owner,
		applog.FieldVersion, rec.Version,
		applog.FieldRows, rec.Rows)
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []storage.ExportRecord{})
		return
	}
	limit := parseLimit(r.URL.Query(), "limit", defaultHistoryLimit)
	records, err := s.history.ListExports(r.Context(), s.ledger.Owner(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []storage.ExportRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
