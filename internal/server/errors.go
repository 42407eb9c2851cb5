package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	automationdomain "github.com/smallbiznis/noty/internal/automation/domain"
	billingdomain "github.com/smallbiznis/noty/internal/billing/domain"
	notificationdomain "github.com/smallbiznis/noty/internal/notification/domain"
	"github.com/smallbiznis/noty/internal/settings"
	trackingdomain "github.com/smallbiznis/noty/internal/tracking/domain"
	webhookdomain "github.com/smallbiznis/noty/internal/webhook/domain"
)

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not_found")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

type validationError struct {
	Field   string
	Code    string
	Message string
}

func (e *validationError) Error() string { return e.Message }

func newValidationError(field, code, message string) error {
	return &validationError{Field: field, Code: code, Message: message}
}

func invalidRequestError() error {
	return newValidationError("", "invalid_request", "invalid request body")
}

type errorMapping struct {
	target error
	status int
}

var errorMappings = []errorMapping{
	{ErrUnauthorized, http.StatusUnauthorized},
	{ErrRateLimited, http.StatusTooManyRequests},
	{ErrNotFound, http.StatusNotFound},
	{billingdomain.ErrClientNotFound, http.StatusNotFound},
	{billingdomain.ErrPaymentNotFound, http.StatusNotFound},
	{trackingdomain.ErrUserNotFound, http.StatusNotFound},
	{automationdomain.ErrUnknownAutomation, http.StatusNotFound},
	{settings.ErrUnknownSetting, http.StatusBadRequest},
	{settings.ErrInvalidValue, http.StatusBadRequest},
	{webhookdomain.ErrInvalidPayload, http.StatusBadRequest},
	{billingdomain.ErrInvalidPayment, http.StatusBadRequest},
	{automationdomain.ErrAlreadyRunning, http.StatusConflict},
	{trackingdomain.ErrClientNotMapped, http.StatusConflict},
	{trackingdomain.ErrTraccarDisabled, http.StatusConflict},
	{ErrServiceUnavailable, http.StatusServiceUnavailable},
	{billingdomain.ErrNotConfigured, http.StatusServiceUnavailable},
	{trackingdomain.ErrNotConfigured, http.StatusServiceUnavailable},
	{notificationdomain.ErrNotConfigured, http.StatusServiceUnavailable},
	{trackingdomain.ErrPlatform, http.StatusBadGateway},
	{billingdomain.ErrProviderTransient, http.StatusBadGateway},
	{billingdomain.ErrProviderRejected, http.StatusBadGateway},
}

func statusFor(err error) int {
	var verr *validationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

// AbortWithError writes the error envelope. Unmapped errors are reported as
// internal without their message.
func AbortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)

	body := gin.H{"success": false}
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		body["error"] = verr.Message
		body["code"] = verr.Code
		if verr.Field != "" {
			body["field"] = verr.Field
		}
	case status == http.StatusInternalServerError:
		body["error"] = "internal_error"
	default:
		body["error"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}
