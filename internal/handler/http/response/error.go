package response

import (
	"errors"
	"net/http"

	"github.com/consite-erp/notify-agent/internal/domain/notification"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notification.ErrNotificationNotFound):
		NotFound(w, "Notification not found")
	case errors.Is(err, notification.ErrMissingID):
		BadRequest(w, "Notification ID is required", nil)
	case errors.Is(err, notification.ErrMalformedPayload):
		BadRequest(w, "Malformed notification payload", nil)

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
