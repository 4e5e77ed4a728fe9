package registration

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorReason string

const (
	REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL ErrorReason = "FAILED_TO_TRANSLATE_TO_DB_MODEL"
	REASON_FAILED_TO_WRITE                 ErrorReason = "FAILED_TO_WRITE"
	REASON_REGISTRATION_DOES_NOT_EXIST     ErrorReason = "REGISTRATION_DOES_NOT_EXIST"
	REASON_REGISTRATION_ALREADY_EXISTS     ErrorReason = "REGISTRATION_ALREADY_EXISTS"
	REASON_FAILED_TO_FETCH                 ErrorReason = "FAILED_TO_FETCH"
	REASON_INVALID_CURSOR                  ErrorReason = "INVALID_CURSOR"
	REASON_INVALID_INPUT                   ErrorReason = "INVALID_INPUT"
	REASON_INVALID_STATUS_TRANSITION       ErrorReason = "INVALID_STATUS_TRANSITION"
	REASON_PROVIDER_ERROR                  ErrorReason = "PROVIDER_ERROR"
	REASON_TIMEOUT                         ErrorReason = "TIMEOUT"
	REASON_UNAUTHORIZED                    ErrorReason = "UNAUTHORIZED"
	REASON_BAD_REQUEST                     ErrorReason = "BAD_REQUEST"
)

type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
	// Fields is set for REASON_INVALID_INPUT.
	Fields []FieldError
	// TransactionID is set when the failure happened after a registration was recorded.
	TransactionID string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newRegistrationError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewFailedToWriteError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_WRITE, message, cause)
}

func NewFailedToTranslateToDBModelError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL, message, cause)
}

func NewRegistrationAlreadyExistsError(message string, cause error) *Error {
	return newRegistrationError(REASON_REGISTRATION_ALREADY_EXISTS, message, cause)
}

func NewRegistrationDoesNotExistsError(message string, cause error) *Error {
	return newRegistrationError(REASON_REGISTRATION_DOES_NOT_EXIST, message, cause)
}

func NewFailedToFetchError(message string, cause error) *Error {
	return newRegistrationError(REASON_FAILED_TO_FETCH, message, cause)
}

func NewInvalidCursorError(message string, cause error) *Error {
	return newRegistrationError(REASON_INVALID_CURSOR, message, cause)
}

func NewInvalidInputError(fields []FieldError) *Error {
	msgs := make([]string, 0, len(fields))
	for _, f := range fields {
		msgs = append(msgs, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}

	err := newRegistrationError(REASON_INVALID_INPUT, strings.Join(msgs, "; "), nil)
	err.Fields = fields
	return err
}

func NewInvalidStatusTransitionError(from, to Status) *Error {
	return newRegistrationError(REASON_INVALID_STATUS_TRANSITION, fmt.Sprintf("Cannot move registration from %s to %s", from, to), nil)
}

func NewProviderError(transactionID string, message string, cause error) *Error {
	err := newRegistrationError(REASON_PROVIDER_ERROR, message, cause)
	err.TransactionID = transactionID
	return err
}

func NewTimeoutError(transactionID string, message string, cause error) *Error {
	err := newRegistrationError(REASON_TIMEOUT, message, cause)
	err.TransactionID = transactionID
	return err
}

func NewUnauthorizedError(message string, cause error) *Error {
	return newRegistrationError(REASON_UNAUTHORIZED, message, cause)
}

func NewBadRequestError(message string, cause error) *Error {
	return newRegistrationError(REASON_BAD_REQUEST, message, cause)
}

func IsReason(err error, reason ErrorReason) bool {
	var regErr *Error
	return errors.As(err, &regErr) && regErr.Reason == reason
}
