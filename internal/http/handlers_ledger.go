package http

import (
	"net/http"

	"moneymind/internal/core"
	applog "moneymind/internal/log"
)

type snapshotResponse struct {
	Owner    string        `json:"owner"`
	Version  int64         `json:"version"`
	Snapshot core.Snapshot `json:"snapshot"`
}

type mutationResponse struct {
	ID       string        `json:"id"`
	Snapshot core.Snapshot `json:"snapshot"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, version, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{Owner: s.ledger.Owner(), Version: version, Snapshot: snap})
}

func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	m, err := DecodeMutation(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.ledger.Apply(r.Context(), m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).InfoContext(r.Context(), "Mutation applied",
		applog.FieldOwner, s.ledger.Owner(),
		applog.FieldEntity, m.Kind,
		applog.FieldAction, m.Action,
		applog.FieldEntityID, res.ID)

	status := http.StatusOK
	if m.Action == core.ActionAdd {
		status = http.StatusCreated
	}
	writeJSON(w, status, mutationResponse{ID: res.ID, Snapshot: res.Snapshot})
}

func (s *Server) handleRecurringRun(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.ExpandDue(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"generated": n})
}
