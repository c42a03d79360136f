package notification

import "errors"

// Notification domain errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrMissingID            = errors.New("notification payload has no id")
	ErrMalformedPayload     = errors.New("malformed notification payload")
	ErrNotAddressed         = errors.New("notification not addressed to this session")
)
