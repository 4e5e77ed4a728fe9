package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/konekte/seminar-registration/payments"
	"github.com/konekte/seminar-registration/promocode"
	"github.com/konekte/seminar-registration/registration"
	"github.com/shopspring/decimal"
)

type PromoValidationRequest struct {
	Code string `json:"code"`
	// BaseAmount is in major units. When absent the seminar price for PaymentTier is used.
	BaseAmount  *decimal.Decimal `json:"baseAmount"`
	PaymentTier *int             `json:"paymentTier"`
}

type PromoValidationResponse struct {
	Valid       bool         `json:"valid"`
	Code        string       `json:"code,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	Value       *json.Number `json:"value,omitempty"`
	Discount    *json.Number `json:"discount,omitempty"`
	FinalAmount *json.Number `json:"finalAmount,omitempty"`
	Error       string       `json:"error,omitempty"`
}

type PromoCode struct {
	Code       string      `json:"code"`
	Kind       string      `json:"kind"`
	Value      json.Number `json:"value"`
	ExpiresAt  *time.Time  `json:"expiresAt,omitempty"`
	MaxUses    *int        `json:"maxUses,omitempty"`
	UsageCount int         `json:"usageCount"`
	Active     *bool       `json:"active,omitempty"`
}

func (a *API) postValidatePromoCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	var body PromoValidationRequest
	if !a.decodeBody(w, r, &body) {
		return
	}

	base, ok := a.promoBaseAmount(body)
	if !ok {
		logger.Warn("Invalid base amount for promo validation")
		a.writeJSON(ctx, w, http.StatusBadRequest, Error{
			Code:    InputValidationError,
			Message: "Base amount is invalid",
			Fields:  []FieldError{{Field: "paymentTier", Message: "must be one of 25, 50, 100"}},
		})
		return
	}

	result, err := a.promos.Validate(ctx, body.Code, base)
	if err != nil {
		logger.Error("Failed to validate promo code", slog.String("error", err.Error()))
		a.writeError(ctx, w, http.StatusInternalServerError, InternalError, "Failed to validate promo code")
		return
	}

	if !result.Valid {
		a.writeJSON(ctx, w, http.StatusOK, PromoValidationResponse{
			Valid: false,
			Code:  result.Code,
			Error: invalidPromoMessage(result.Reason),
		})
		return
	}

	value := json.Number(result.Value.String())
	discount := majorUnits(result.DiscountAmount)
	final := majorUnits(result.FinalAmount)

	a.writeJSON(ctx, w, http.StatusOK, PromoValidationResponse{
		Valid:       true,
		Code:        result.Code,
		Kind:        string(result.Kind),
		Value:       &value,
		Discount:    &discount,
		FinalAmount: &final,
	})
}

func (a *API) postPromoCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := a.getLoggerOrBaseLogger(ctx)

	var body PromoCode
	if !a.decodeBody(w, r, &body) {
		return
	}

	value, err := decimal.NewFromString(body.Value.String())
	if err != nil {
		logger.Warn("Invalid promo code value", slog.String("error", err.Error()))
		a.writeError(ctx, w, http.StatusBadRequest, InputValidationError, "Value must be a number")
		return
	}

	active := true
	if body.Active != nil {
		active = *body.Active
	}

	created, err := a.promos.Create(ctx, promocode.PromoCode{
		Code:      body.Code,
		Kind:      promocode.DiscountKind(body.Kind),
		Value:     value,
		ExpiresAt: body.ExpiresAt,
		MaxUses:   body.MaxUses,
		Active:    active,
	})
	if err != nil {
		var promoErr *promocode.Error
		if errors.As(err, &promoErr) {
			switch promoErr.Reason {
			case promocode.REASON_INVALID_PROMO_CODE:
				logger.Warn("Invalid promo code", slog.String("error", err.Error()))
				a.writeError(ctx, w, http.StatusBadRequest, InputValidationError, promoErr.Message)
				return
			case promocode.REASON_PROMO_CODE_ALREADY_EXISTS:
				logger.Warn("Promo code already exists", slog.String("error", err.Error()))
				a.writeError(ctx, w, http.StatusConflict, AlreadyExists, "Promo code already exists")
				return
			}
		}

		logger.Error("Failed to create promo code", slog.String("error", err.Error()))
		a.writeError(ctx, w, http.StatusInternalServerError, InternalError, "Failed to create promo code")
		return
	}

	logger.Info("Promo code created", slog.String("promoCode", created.Code))

	a.writeJSON(ctx, w, http.StatusCreated, PromoCode{
		Code:       created.Code,
		Kind:       string(created.Kind),
		Value:      json.Number(created.Value.String()),
		ExpiresAt:  created.ExpiresAt,
		MaxUses:    created.MaxUses,
		UsageCount: created.UsageCount,
		Active:     &created.Active,
	})
}

func (a *API) promoBaseAmount(body PromoValidationRequest) (*money.Money, bool) {
	if body.BaseAmount != nil {
		if body.BaseAmount.IsNegative() {
			return nil, false
		}
		return payments.FromMajorUnits(*body.BaseAmount, a.seminar.BasePrice.Currency().Code), true
	}

	if body.PaymentTier == nil {
		return a.seminar.BasePrice, true
	}

	base, err := registration.TierAmount(a.seminar.BasePrice, registration.PaymentTier(*body.PaymentTier))
	if err != nil {
		return nil, false
	}
	return base, true
}

func invalidPromoMessage(reason promocode.InvalidReason) string {
	switch reason {
	case promocode.INVALID_NOT_FOUND:
		return "Promo code not found"
	case promocode.INVALID_INACTIVE:
		return "Promo code is no longer active"
	case promocode.INVALID_EXPIRED:
		return "Promo code has expired"
	case promocode.INVALID_EXHAUSTED:
		return "Promo code has reached its maximum number of uses"
	default:
		return "Promo code is not valid"
	}
}
