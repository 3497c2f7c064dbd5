package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/route33/routesync/internal/core"
	"github.com/route33/routesync/internal/logging"
)

// handleHealth responds to liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart CSV or XLSX export, stages it against
// the live snapshot and returns the review summary.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Sync.MaxFileSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, r, core.ErrFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, core.ErrNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	summary, err := s.service.Stage(r.Context(), file, header.Filename)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, core.ErrUnsupportedFormat) {
			status = http.StatusUnsupportedMediaType
		}
		s.respondError(w, r, err, status)
		return
	}

	logging.FromContext(r.Context()).Info("export staged",
		"sync_id", summary.SyncID,
		"file", summary.FileName,
		"total_changes", summary.Counts.Total,
	)

	respondJSON(w, http.StatusOK, summary)
}

// handlePending returns the full change sets of a staged sync for review.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	ps, err := s.service.Pending(chi.URLParam(r, "syncID"))
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, ps)
}

// applyRequest is the body of POST /api/sync/{syncID}/apply. Selections use
// the "{changeType}_{customer_number}" keys from the review payload.
type applyRequest struct {
	Selections core.Selection `json:"selections"`
}

// handleApply applies the selected subset of a staged sync.
func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("decode request body: %w", err), http.StatusBadRequest)
		return
	}

	result, err := s.service.ApplySelected(r.Context(), chi.URLParam(r, "syncID"), req.Selections)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrPendingNotFound) {
			status = http.StatusNotFound
		}
		s.respondError(w, r, err, status)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleDiscard drops a staged sync without applying it.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(chi.URLParam(r, "syncID")); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"discarded": true})
}

// handleHistory returns recent sync runs, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.History(r.Context(), s.cfg.Sync.HistoryLimit)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []core.SyncRun{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
