package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sevigo/patch-warden/internal/compare"
	"github.com/sevigo/patch-warden/internal/metrics"
	"github.com/sevigo/patch-warden/internal/storage"
)

// ScopeLoader loads the diffs needed to compare the issues of a diff.
type ScopeLoader interface {
	LoadComparisonScope(ctx context.Context, diffID int) (*compare.Scope, error)
}

// IssuesHandler answers issue comparison queries.
type IssuesHandler struct {
	scopes ScopeLoader
	logger *slog.Logger
}

// NewIssuesHandler creates a comparison handler.
func NewIssuesHandler(scopes ScopeLoader, logger *slog.Logger) *IssuesHandler {
	return &IssuesHandler{scopes: scopes, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handle serves GET /diff/{diffID}/issues/{mode}. The mode and the id are
// validated before the store is queried.
func (h *IssuesHandler) Handle(w http.ResponseWriter, r *http.Request) {
	mode, err := compare.ParseMode(chi.URLParam(r, "mode"))
	if err != nil {
		h.respond(w, "invalid", http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	label := string(mode)
	diffID, err := strconv.Atoi(chi.URLParam(r, "diffID"))
	if err != nil {
		h.respond(w, label, http.StatusBadRequest, errorResponse{Error: "diff id must be an integer"})
		return
	}

	scope, err := h.scopes.LoadComparisonScope(r.Context(), diffID)
	if errors.Is(err, storage.ErrNotFound) {
		h.respond(w, label, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("failed to load comparison scope", "diff", diffID, "error", err)
		h.respond(w, label, http.StatusInternalServerError, errorResponse{Error: "failed to load issues"})
		return
	}

	result, err := scope.Query(diffID, mode)
	var cmpErr *compare.ComparatorError
	switch {
	case err == nil:
		h.respond(w, label, http.StatusOK, result)
	case errors.Is(err, compare.ErrDiffNotFound):
		h.respond(w, label, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &cmpErr), errors.Is(err, compare.ErrInvalidMode):
		h.respond(w, label, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Error("comparison failed", "diff", diffID, "mode", mode, "error", err)
		h.respond(w, label, http.StatusInternalServerError, errorResponse{Error: "comparison failed"})
	}
}

func (h *IssuesHandler) respond(w http.ResponseWriter, mode string, status int, body any) {
	metrics.ComparisonQueries.WithLabelValues(mode, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}
