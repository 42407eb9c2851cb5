package domain

import "errors"

var (
	ErrNotConfigured         = errors.New("messaging_not_configured")
	ErrMissingPhone          = errors.New("missing_phone")
	ErrInvalidPhone          = errors.New("invalid_phone")
	ErrTemplateNotFound      = errors.New("template_not_found")
	ErrNotificationsDisabled = errors.New("notifications_disabled")
	ErrAlreadySent           = errors.New("notification_already_sent")
)
