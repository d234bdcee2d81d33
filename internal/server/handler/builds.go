// Package handler provides the HTTP handlers of the patch-warden server.
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/jobs"
)

// BuildHandler accepts build notifications from the review host.
type BuildHandler struct {
	dispatcher core.JobDispatcher
	logger     *slog.Logger
}

// NewBuildHandler creates a handler queueing builds on dispatcher.
func NewBuildHandler(dispatcher core.JobDispatcher, logger *slog.Logger) *BuildHandler {
	return &BuildHandler{dispatcher: dispatcher, logger: logger}
}

// Handle reads the build from the query string, or from a form body.
func (h *BuildHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Could not parse request", http.StatusBadRequest)
		return
	}

	build, err := core.BuildFromQuery(r.Form)
	if err != nil {
		h.logger.Warn("rejected build notification", "error", err, "query", r.URL.RawQuery)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), build); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrQueueFull) || errors.Is(err, jobs.ErrStopped) {
			status = http.StatusServiceUnavailable
		}
		h.logger.Error("failed to dispatch build", "error", err, "build", build.String())
		http.Error(w, "Failed to queue build", status)
		return
	}

	h.logger.Info("build queued", "build", build.String(), "target", build.TargetPHID)
	w.WriteHeader(http.StatusAccepted)
	_, _ = fmt.Fprint(w, "Build accepted")
}
