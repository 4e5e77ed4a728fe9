package payments

import (
	"errors"
	"fmt"
)

type ErrorReason string

const (
	REASON_PROVIDER_ERROR ErrorReason = "PROVIDER_ERROR"
	REASON_TIMEOUT        ErrorReason = "TIMEOUT"
	REASON_UNAUTHORIZED   ErrorReason = "UNAUTHORIZED"
	REASON_BAD_REQUEST    ErrorReason = "BAD_REQUEST"
)

type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
	// StatusCode and Body are set when the provider answered with a non-2xx response.
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d). Cause: %s", e.Reason, e.Message, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newPaymentsError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewProviderError(message string, cause error) *Error {
	return newPaymentsError(REASON_PROVIDER_ERROR, message, cause)
}

func NewProviderResponseError(message string, statusCode int, body string) *Error {
	err := newPaymentsError(REASON_PROVIDER_ERROR, message, nil)
	err.StatusCode = statusCode
	err.Body = body
	return err
}

func NewTimeoutError(message string, cause error) *Error {
	return newPaymentsError(REASON_TIMEOUT, message, cause)
}

func NewUnauthorizedError(message string) *Error {
	return newPaymentsError(REASON_UNAUTHORIZED, message, nil)
}

func NewBadRequestError(message string, cause error) *Error {
	return newPaymentsError(REASON_BAD_REQUEST, message, cause)
}

func IsReason(err error, reason ErrorReason) bool {
	var paymentsErr *Error
	return errors.As(err, &paymentsErr) && paymentsErr.Reason == reason
}
