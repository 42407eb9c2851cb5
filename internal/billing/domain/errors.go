package domain

import "errors"

var (
	ErrNotConfigured     = errors.New("billing_not_configured")
	ErrClientNotFound    = errors.New("client_not_found")
	ErrPaymentNotFound   = errors.New("payment_not_found")
	ErrInvalidPayment    = errors.New("invalid_payment")
	ErrInvalidClient     = errors.New("invalid_client")
	ErrProviderRejected  = errors.New("billing_provider_rejected")
	ErrProviderTransient = errors.New("billing_provider_unavailable")
)
