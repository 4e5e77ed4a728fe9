package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/konekte/seminar-registration/registration"
)

type ErrorCode string

const (
	InputValidationError ErrorCode = "InputValidationError"
	EmptyBody            ErrorCode = "EmptyBody"
	InvalidBody          ErrorCode = "InvalidBody"
	NotFound             ErrorCode = "NotFound"
	AlreadyExists        ErrorCode = "AlreadyExists"
	AuthError            ErrorCode = "AuthError"
	ProviderError        ErrorCode = "ProviderError"
	Timeout              ErrorCode = "Timeout"
	InternalError        ErrorCode = "InternalError"
	InvalidCursor        ErrorCode = "InvalidCursor"
	LimitOutOfBounds     ErrorCode = "LimitOutOfBounds"
	InvalidTransition    ErrorCode = "InvalidTransition"
	BadRequest           ErrorCode = "BadRequest"
	Unauthorized         ErrorCode = "Unauthorized"
	PayloadTooLarge      ErrorCode = "PayloadTooLarge"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Error struct {
	Code          ErrorCode    `json:"code"`
	Message       string       `json:"message"`
	Fields        []FieldError `json:"fields,omitempty"`
	TransactionId string       `json:"transactionId,omitempty"`
}

func (a *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, body any) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		a.getLoggerOrBaseLogger(ctx).Error("Failed to marshal response", slog.String("error", err.Error()))
		status = http.StatusInternalServerError
		jsonBody = []byte(`{"code":"InternalError","message":"Failed to build response"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBody)
}

func (a *API) writeError(ctx context.Context, w http.ResponseWriter, status int, code ErrorCode, message string) {
	a.writeJSON(ctx, w, status, Error{Code: code, Message: message})
}

// registrationErrorResponse maps a pipeline failure to its HTTP status and body.
func registrationErrorResponse(err error) (int, Error) {
	var regErr *registration.Error
	if !errors.As(err, &regErr) {
		return http.StatusInternalServerError, Error{Code: InternalError, Message: "Unexpected error"}
	}

	resp := Error{TransactionId: regErr.TransactionID}

	var status int
	switch regErr.Reason {
	case registration.REASON_INVALID_INPUT:
		status, resp.Code, resp.Message = http.StatusBadRequest, InputValidationError, "Some fields are invalid"
		for _, f := range regErr.Fields {
			resp.Fields = append(resp.Fields, FieldError{Field: f.Field, Message: f.Message})
		}
	case registration.REASON_REGISTRATION_ALREADY_EXISTS:
		status, resp.Code, resp.Message = http.StatusConflict, AlreadyExists, "Registration already exists"
	case registration.REASON_REGISTRATION_DOES_NOT_EXIST:
		status, resp.Code, resp.Message = http.StatusNotFound, NotFound, "Registration was not found"
	case registration.REASON_INVALID_STATUS_TRANSITION:
		status, resp.Code, resp.Message = http.StatusConflict, InvalidTransition, "Registration is no longer pending"
	case registration.REASON_PROVIDER_ERROR:
		status, resp.Code, resp.Message = http.StatusBadGateway, ProviderError, "Payment provider failed, please try again"
	case registration.REASON_TIMEOUT:
		status, resp.Code, resp.Message = http.StatusGatewayTimeout, Timeout, "Payment provider timed out, please try again"
	case registration.REASON_UNAUTHORIZED:
		status, resp.Code, resp.Message = http.StatusUnauthorized, Unauthorized, "Signature verification failed"
	case registration.REASON_BAD_REQUEST:
		status, resp.Code, resp.Message = http.StatusBadRequest, BadRequest, "Notification could not be understood"
	case registration.REASON_INVALID_CURSOR:
		status, resp.Code, resp.Message = http.StatusBadRequest, InvalidCursor, "Cursor is invalid"
	default:
		status, resp.Code, resp.Message = http.StatusInternalServerError, InternalError, "Failed to process registration"
	}

	return status, resp
}
