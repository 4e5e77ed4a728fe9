package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/konekte/seminar-registration/payments"
	"github.com/konekte/seminar-registration/registration"
	"github.com/konekte/seminar-registration/seminar"
	"github.com/oapi-codegen/runtime/types"
)

const (
	maxBodyBytes = 65536

	defaultPageLimit = 10
	maxPageLimit     = 50
)

type SubmitRegistrationRequest struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Motivation      string `json:"motivation"`
	ExperienceLevel string `json:"experienceLevel"`
	PaymentTier     int    `json:"paymentTier"`
	PromoCode       string `json:"promoCode"`
}

type SubmitRegistrationResponse struct {
	TransactionId string      `json:"transactionId"`
	RedirectUrl   string      `json:"redirectUrl"`
	Amount        json.Number `json:"amount"`
}

type Registration struct {
	TransactionId   string      `json:"transactionId"`
	FullName        string      `json:"fullName"`
	Email           types.Email `json:"email"`
	Phone           string      `json:"phone"`
	Motivation      string      `json:"motivation,omitempty"`
	ExperienceLevel string      `json:"experienceLevel"`
	PaymentTier     int         `json:"paymentTier"`
	Amount          json.Number `json:"amount"`
	Currency        string      `json:"currency"`
	PromoCode       *string     `json:"promoCode,omitempty"`
	Status          string      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
}

type RegistrationPage struct {
	Data        []Registration `json:"data"`
	Cursor      *string        `json:"cursor,omitempty"`
	HasNextPage bool           `json:"hasNextPage"`
}

type StatusResponse struct {
	TransactionId string `json:"transactionId"`
	Status        string `json:"status"`
}

type Availability struct {
	Name       string `json:"name"`
	Capacity   int    `json:"capacity"`
	Registered int    `json:"registered"`
	Remaining  int    `json:"remaining"`
}

func (a *API) postRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	var body SubmitRegistrationRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	result, err := registration.SubmitRegistration(ctx, body.toSubmitRequest(), a.deps(ctx))
	if err != nil {
		status, resp := registrationErrorResponse(err)
		logFailure(logger, "Error trying to register", status, err)
		a.writeJSON(ctx, w, status, resp)
		return
	}

	a.writeJSON(ctx, w, http.StatusOK, SubmitRegistrationResponse{
		TransactionId: result.TransactionID,
		RedirectUrl:   result.RedirectURL,
		Amount:        majorUnits(result.Amount),
	})
}

func (a *API) getRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	limit := defaultPageLimit
	if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
		userLimit, err := strconv.Atoi(rawLimit)
		if err != nil || userLimit < 1 || userLimit > maxPageLimit {
			logger.Warn("Limit out of bounds", slog.String("limit", rawLimit))
			a.writeError(ctx, w, http.StatusBadRequest, LimitOutOfBounds, "Limit must be between 1 and 50")
			return
		}
		limit = userLimit
	}

	var cursor *string
	if r.URL.Query().Has("cursor") {
		c := r.URL.Query().Get("cursor")
		cursor = &c
	}

	result, err := a.db.GetAllRegistrations(ctx, int32(limit), cursor)
	if err != nil {
		status, resp := registrationErrorResponse(err)
		logFailure(logger, "Failed to get registrations", status, err)
		a.writeJSON(ctx, w, status, resp)
		return
	}

	page := RegistrationPage{
		Data:        make([]Registration, 0, len(result.Data)),
		Cursor:      result.Cursor,
		HasNextPage: result.HasNextPage,
	}
	for _, reg := range result.Data {
		page.Data = append(page.Data, registrationToApiRegistration(reg))
	}

	a.writeJSON(ctx, w, http.StatusOK, page)
}

func (a *API) postCancelRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transactionId := r.PathValue("transactionId")
	logger := a.getLoggerOrBaseLogger(ctx).With(slog.String("transactionId", transactionId))

	result, err := registration.CancelRegistration(ctx, transactionId, a.db, a.now())
	if err != nil {
		status, resp := registrationErrorResponse(err)
		resp.TransactionId = transactionId
		logFailure(logger, "Failed to cancel registration", status, err)
		a.writeJSON(ctx, w, status, resp)
		return
	}

	if result.Transitioned {
		admin, _ := getAdminFromCtx(ctx)
		logger.Info("Registration cancelled", slog.String("cancelledBy", admin.Email))
	}

	a.writeJSON(ctx, w, http.StatusOK, StatusResponse{
		TransactionId: result.TransactionID,
		Status:        string(result.Status),
	})
}

func (a *API) getAvailability(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	availability, err := seminar.GetAvailability(ctx, a.seminar, a.db)
	if err != nil {
		a.getLoggerOrBaseLogger(ctx).Error("Failed to get seminar availability", slog.String("error", err.Error()))
		a.writeError(ctx, w, http.StatusInternalServerError, InternalError, "Failed to get availability")
		return
	}

	a.writeJSON(ctx, w, http.StatusOK, Availability{
		Name:       availability.Name,
		Capacity:   availability.Capacity,
		Registered: availability.Registered,
		Remaining:  availability.Remaining,
	})
}

// decodeBody reads a JSON body into v, answering the request itself when it cannot.
func (a *API) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	if errors.Is(err, io.EOF) {
		logger.Warn("Empty request body")
		a.writeError(ctx, w, http.StatusBadRequest, EmptyBody, "Must specify a body")
		return false
	}

	logger.Warn("Invalid request body", slog.String("error", err.Error()))
	a.writeError(ctx, w, http.StatusBadRequest, InvalidBody, "Invalid body")
	return false
}

func (b SubmitRegistrationRequest) toSubmitRequest() registration.SubmitRequest {
	return registration.SubmitRequest{
		FullName:    b.FullName,
		Email:       b.Email,
		Phone:       b.Phone,
		Motivation:  b.Motivation,
		Experience:  registration.ExperienceLevel(b.ExperienceLevel),
		PaymentTier: registration.PaymentTier(b.PaymentTier),
		PromoCode:   b.PromoCode,
	}
}

func registrationToApiRegistration(reg registration.Registration) Registration {
	return Registration{
		TransactionId:   reg.TransactionID,
		FullName:        reg.Contact.FullName,
		Email:           types.Email(reg.Contact.Email),
		Phone:           reg.Contact.Phone,
		Motivation:      reg.Contact.Motivation,
		ExperienceLevel: string(reg.Experience),
		PaymentTier:     int(reg.PaymentTier),
		Amount:          majorUnits(reg.Amount),
		Currency:        reg.Amount.Currency().Code,
		PromoCode:       reg.PromoCode,
		Status:          string(reg.Status),
		CreatedAt:       reg.CreatedAt,
	}
}

func majorUnits(m *money.Money) json.Number {
	return json.Number(payments.MajorUnits(m).String())
}

func logFailure(logger *slog.Logger, msg string, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.Error(msg, slog.String("error", err.Error()))
		return
	}
	logger.Warn(msg, slog.String("error", err.Error()))
}
