package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/marmos91/formsync/internal/logger"
	"github.com/marmos91/formsync/pkg/pendingqueue"
)

// Status is the agent state reported by GET /status.
type Status struct {
	Online       bool          `json:"online"`
	NetworkClass string        `json:"network_class,omitempty"`
	Pending      PendingStatus `json:"pending"`
	Drafts       DraftStatus   `json:"drafts"`
	LastDrain    *RunStatus    `json:"last_drain,omitempty"`
	LastSync     *RunStatus    `json:"last_sync,omitempty"`
}

// PendingStatus summarizes the pending submission queue.
type PendingStatus struct {
	Count    int                    `json:"count"`
	Failed   int                    `json:"failed"`
	Draining bool                   `json:"draining"`
	Items    []pendingqueue.Summary `json:"items"`
}

// DraftStatus counts local drafts by sync state.
type DraftStatus struct {
	Synced   int  `json:"synced"`
	Unsynced int  `json:"unsynced"`
	Syncing  bool `json:"syncing"`
}

// RunStatus describes the last background run of a job.
type RunStatus struct {
	At       time.Time `json:"at"`
	Duration string    `json:"duration"`
	Error    string    `json:"error,omitempty"`
}

// StatusSource produces the current agent status.
type StatusSource interface {
	Status(ctx context.Context) (*Status, error)
}

// StatusHandler serves the liveness and status endpoints.
type StatusHandler struct {
	source StatusSource
}

// NewStatusHandler creates a status handler. source may be nil, in which
// case GET /status reports 503.
func NewStatusHandler(source StatusSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// Liveness handles GET /health.
func (h *StatusHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"service": "formsync",
	}))
}

// Status handles GET /status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse("agent not initialized"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, err := h.source.Status(ctx)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to collect agent status", logger.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, okResponse(status))
}
