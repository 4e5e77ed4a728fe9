package seminar

import "fmt"

type ErrorReason string

const (
	REASON_FAILED_TO_FETCH       ErrorReason = "FAILED_TO_FETCH"
	REASON_INVALID_CONFIGURATION ErrorReason = "INVALID_CONFIGURATION"
)

type Error struct {
	Reason  ErrorReason
	Message string
	Cause   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s. Cause: %s", e.Reason, e.Message, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newSeminarError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewFailedToFetchError(message string, cause error) *Error {
	return newSeminarError(REASON_FAILED_TO_FETCH, message, cause)
}

func NewInvalidConfigurationError(message string) *Error {
	return newSeminarError(REASON_INVALID_CONFIGURATION, message, nil)
}
