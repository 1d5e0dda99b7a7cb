package startup

import (
	"errors"
	"net/http"

	"github.com/bnv-me/webbnv/internal/api"
)

// Handler exposes cycle control on the ops server.
type Handler struct {
	client *Client
}

// NewHandler creates a cycle handler for c.
func NewHandler(c *Client) *Handler {
	return &Handler{client: c}
}

// Trigger starts a manual outfit cycle in the background.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	err := h.client.Trigger()
	switch {
	case errors.Is(err, ErrCycleSkipped):
		api.HandleError(w, api.NewConflictError("an outfit cycle is already running"))
	case errors.Is(err, ErrNotStarted):
		api.JSONErrorMessage(w, http.StatusServiceUnavailable, "plugin has not started yet")
	case err != nil:
		api.HandleError(w, err)
	default:
		api.JSONMessage(w, http.StatusAccepted, "outfit cycle started")
	}
}

// Last returns the most recent cycle report.
func (h *Handler) Last(w http.ResponseWriter, r *http.Request) {
	report := h.client.LastCycle()
	if report == nil {
		api.HandleError(w, api.NewNotFoundError("no cycle has run yet"))
		return
	}
	api.JSON(w, http.StatusOK, report)
}
