package domain

import (
	"context"
	"errors"
	"fmt"
)

// SendResult is the provider acknowledgement of an accepted message.
type SendResult struct {
	MessageID string
	Status    string
}

// Messenger delivers a text to an E.164 phone number.
type Messenger interface {
	Send(ctx context.Context, phone, text string) (SendResult, error)
}

// SendError carries the provider classification of a failed send.
type SendError struct {
	StatusCode int
	Code       int
	Retryable  bool
	Err        error
}

func (e *SendError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("send failed (status %d, code %d): %v", e.StatusCode, e.Code, e.Err)
	}
	return fmt.Sprintf("send failed (status %d): %v", e.StatusCode, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// IsRetryable reports whether a send error is transient. Errors without a
// provider classification are treated as network failures.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	// An expired send may already have reached the provider.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrInvalidPhone) || errors.Is(err, ErrMissingPhone) || errors.Is(err, ErrNotConfigured) {
		return false
	}
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Retryable
	}
	return true
}
