package memory

import (
	"context"
	"fmt"
	"sync"

	"moneymind/internal/reports"
	ports "moneymind/internal/sheets"
)

var _ ports.RowExporter = (*Store)(nil)

// Store keeps the last exported grid in memory. It backs local runs and tests.
type Store struct {
	mu      sync.Mutex
	values  [][]any
	exports int
}

func New() *Store {
	return &Store{}
}

// ExportRows replaces the stored grid and returns a synthetic range reference.
func (s *Store) ExportRows(_ context.Context, rows []reports.ExportRow) (string, error) {
	values := ports.Values(rows)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = values
	s.exports++
	return fmt.Sprintf("mem:%d!A1:G%d", s.exports, len(values)), nil
}

// Values returns a copy of the last exported grid, header included.
func (s *Store) Values() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]any, len(s.values))
	for i, row := range s.values {
		out[i] = append([]any(nil), row...)
	}
	return out
}

// Exports returns how many exports have been written.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
