package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/trainingplanner/libs/httpx"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/dedup"
)

// Deduplicator is satisfied by jobs.Runner.
type Deduplicator interface {
	RunOnce(ctx context.Context, req dedup.Request) (dedup.Report, error)
}

type AdminHandler struct {
	dedup  Deduplicator
	logger *slog.Logger
}

func NewAdminHandler(d Deduplicator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{dedup: d, logger: logger}
}

type deduplicateRequest struct {
	PersonID string `json:"person_id" validate:"omitempty,max=64"`
	DryRun   bool   `json:"dry_run"`
}

// Deduplicate answers POST /api/v1/admin/planning/deduplicate. An empty body
// runs over every trainer. A partial run answers 500 with the report, so the
// caller can see what is still pending.
func (h *AdminHandler) Deduplicate(w http.ResponseWriter, r *http.Request) {
	var req deduplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.PersonID = strings.TrimSpace(req.PersonID)
	if err := validate.Struct(req); err != nil {
		http.Error(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	report, err := h.dedup.RunOnce(r.Context(), dedup.Request{PersonID: req.PersonID, DryRun: req.DryRun})
	switch {
	case err == nil:
		httpx.WriteJSON(w, http.StatusOK, report)
	case errors.Is(err, dedup.ErrAlreadyRunning):
		http.Error(w, "deduplication already running", http.StatusConflict)
	case errors.Is(err, dedup.ErrPartialDeletion):
		httpx.WriteJSON(w, http.StatusInternalServerError, report)
	case report.RunID != "":
		h.logger.Error("deduplication failed", "run_id", report.RunID, "err", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, report)
	default:
		h.logger.Error("deduplication failed", "err", err)
		http.Error(w, "deduplication unavailable", http.StatusServiceUnavailable)
	}
}
