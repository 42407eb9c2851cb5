package domain

import "errors"

var (
	ErrNotConfigured   = errors.New("traccar_not_configured")
	ErrTraccarDisabled = errors.New("traccar_disabled")
	ErrUserNotFound    = errors.New("traccar_user_not_found")
	ErrClientNotMapped = errors.New("client_not_mapped")
	ErrPlatform        = errors.New("traccar_request_failed")
)
