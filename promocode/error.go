package promocode

import (
	"errors"
	"fmt"
)

type ErrorReason string

const (
	REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL ErrorReason = "FAILED_TO_TRANSLATE_TO_DB_MODEL"
	REASON_FAILED_TO_WRITE                 ErrorReason = "FAILED_TO_WRITE"
	REASON_FAILED_TO_FETCH                 ErrorReason = "FAILED_TO_FETCH"
	REASON_PROMO_CODE_DOES_NOT_EXIST       ErrorReason = "PROMO_CODE_DOES_NOT_EXIST"
	REASON_PROMO_CODE_ALREADY_EXISTS       ErrorReason = "PROMO_CODE_ALREADY_EXISTS"
	REASON_PROMO_CODE_EXHAUSTED            ErrorReason = "PROMO_CODE_EXHAUSTED"
	REASON_INVALID_PROMO_CODE              ErrorReason = "INVALID_PROMO_CODE"
	REASON_TIMEOUT                         ErrorReason = "TIMEOUT"
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

func newPromoCodeError(reason ErrorReason, message string, cause error) *Error {
	return &Error{
		Reason:  reason,
		Message: message,
		Cause:   cause,
	}
}

func NewFailedToWriteError(message string, cause error) *Error {
	return newPromoCodeError(REASON_FAILED_TO_WRITE, message, cause)
}

func NewFailedToTranslateToDBModelError(message string, cause error) *Error {
	return newPromoCodeError(REASON_FAILED_TO_TRANSLATE_TO_DB_MODEL, message, cause)
}

func NewFailedToFetchError(message string, cause error) *Error {
	return newPromoCodeError(REASON_FAILED_TO_FETCH, message, cause)
}

func NewPromoCodeDoesNotExistError(message string, cause error) *Error {
	return newPromoCodeError(REASON_PROMO_CODE_DOES_NOT_EXIST, message, cause)
}

func NewPromoCodeAlreadyExistsError(message string, cause error) *Error {
	return newPromoCodeError(REASON_PROMO_CODE_ALREADY_EXISTS, message, cause)
}

func NewPromoCodeExhaustedError(code string, cause error) *Error {
	return newPromoCodeError(REASON_PROMO_CODE_EXHAUSTED, fmt.Sprintf("Promo code %q has no redemptions left", code), cause)
}

func NewInvalidPromoCodeError(message string) *Error {
	return newPromoCodeError(REASON_INVALID_PROMO_CODE, message, nil)
}

func NewTimeoutError(message string) *Error {
	return newPromoCodeError(REASON_TIMEOUT, message, nil)
}

// IsReason reports whether err is a promo code error with the given reason.
func IsReason(err error, reason ErrorReason) bool {
	var promoErr *Error
	if !errors.As(err, &promoErr) {
		return false
	}
	return promoErr.Reason == reason
}
