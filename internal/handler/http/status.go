package http

import (
	"net/http"

	"github.com/consite-erp/notify-agent/internal/diag"
	"github.com/consite-erp/notify-agent/internal/handler/http/response"
	"github.com/consite-erp/notify-agent/internal/hub"
)

// StatusHandler exposes the pipeline state and recent diagnostics for the
// UI's connection indicator and for troubleshooting a quiet agent.
type StatusHandler interface {
	Status(w http.ResponseWriter, r *http.Request)
	Diagnostics(w http.ResponseWriter, r *http.Request)
	Reconnect(w http.ResponseWriter, r *http.Request)
}

type statusHandlerImpl struct {
	hub  *hub.Hub
	diag *diag.Recorder
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(h *hub.Hub, recorder *diag.Recorder) StatusHandler {
	return &statusHandlerImpl{
		hub:  h,
		diag: recorder,
	}
}

// Status returns the current pipeline snapshot
func (h *statusHandlerImpl) Status(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.hub.Status())
}

// Diagnostics returns the most recent diagnostic events, oldest first
func (h *statusHandlerImpl) Diagnostics(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.diag.Recent())
}

// Reconnect forces a teardown and rebuild of the delivery pipeline
func (h *statusHandlerImpl) Reconnect(w http.ResponseWriter, r *http.Request) {
	h.hub.Reconnect()
	response.SuccessWithMessage(w, "Reconnect initiated", h.hub.Status())
}
