package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/konekte/seminar-registration/payments"
	"github.com/konekte/seminar-registration/promocode"
	"github.com/konekte/seminar-registration/seminar"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/konekte/seminar-registration/registration")

type Dependencies struct {
	Registrations Repository
	Promos        *promocode.Engine
	Gateway       payments.Gateway
	Seminar       seminar.Seminar
	// CallbackURL is the public URL of the payment callback the provider redirects back to.
	CallbackURL string
	Logger      *slog.Logger
	Now         func() time.Time
}

func (d Dependencies) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Dependencies) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

type SubmitResult struct {
	TransactionID string
	RedirectURL   string
	Amount        *money.Money
	// Discount is nil when no promo code was applied.
	Discount *money.Money
}

type HintSource string

const (
	HINT_SOURCE_REDIRECT HintSource = "redirect"
	HINT_SOURCE_WEBHOOK  HintSource = "webhook"
)

// Hint is what the caller of ReconcilePayment already knows about the payment. Completed is only
// trusted for webhook hints, whose authenticity was verified.
type Hint struct {
	Source    HintSource
	RawStatus string
	Completed bool
	// Verified marks a webhook whose signature was checked. Only verified completions skip the provider.
	Verified bool
}

func (h Hint) reportsFailure() bool {
	switch strings.ToLower(strings.TrimSpace(h.RawStatus)) {
	case "error", "failed", "failure", "cancelled", "canceled":
		return true
	}
	return false
}

type ReconciliationResult struct {
	TransactionID string
	Status        Status
	// AlreadyFinal is set when the registration was terminal before this call.
	AlreadyFinal bool
	// Transitioned is set when this call performed the Pending -> Confirmed transition.
	Transitioned bool
}

// SubmitRegistration validates the request, records a Pending registration and opens a payment
// session for it.
func SubmitRegistration(ctx context.Context, req SubmitRequest, deps Dependencies) (SubmitResult, error) {
	now := deps.now()
	transactionID := NewTransactionID(now)

	ctx, span := tracer.Start(ctx, "registration.SubmitRegistration", trace.WithAttributes(
		attribute.String("transaction.id", transactionID),
		attribute.Int("payment.tier", int(req.PaymentTier)),
	))
	defer span.End()

	logger := deps.logger().With(slog.String("transactionId", transactionID))

	fields := ValidateSubmission(req)
	promoCode := promocode.NormalizeCode(req.PromoCode)

	var discount *money.Money
	if promoCode != "" && req.PaymentTier.Valid() {
		tierAmount, err := TierAmount(deps.Seminar.BasePrice, req.PaymentTier)
		if err != nil {
			return SubmitResult{}, recordErr(span, err)
		}

		result, err := deps.Promos.Validate(ctx, promoCode, tierAmount)
		if err != nil {
			return SubmitResult{}, recordErr(span, NewFailedToFetchError(fmt.Sprintf("Failed to look up promo code %q", promoCode), err))
		}

		if result.Valid {
			discount = result.DiscountAmount
		} else {
			fields = append(fields, FieldError{Field: "promoCode", Message: fmt.Sprintf("promo code is %s", result.Reason)})
		}
	}

	if len(fields) > 0 {
		return SubmitResult{}, recordErr(span, NewInvalidInputError(fields))
	}

	amount, err := ComputeAmount(deps.Seminar.BasePrice, req.PaymentTier, discount)
	if err != nil {
		return SubmitResult{}, recordErr(span, err)
	}

	reg := Registration{
		TransactionID: transactionID,
		Contact:       req.Contact(),
		Experience:    req.Experience,
		PaymentTier:   req.PaymentTier,
		Amount:        amount,
		Status:        STATUS_PENDING,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if discount != nil {
		reg.PromoCode = &promoCode
	}

	err = deps.Registrations.CreateRegistration(ctx, reg)
	if err != nil {
		var regErr *Error
		if !errors.As(err, &regErr) {
			err = NewFailedToWriteError(fmt.Sprintf("Failed to save registration %q", transactionID), err)
		}
		return SubmitResult{}, recordErr(span, err)
	}

	firstName, lastName := SplitName(reg.Contact.FullName)
	session, err := deps.Gateway.CreatePaymentSession(ctx, payments.SessionParams{
		Amount:        amount,
		TransactionID: transactionID,
		Customer: payments.Customer{
			FirstName: firstName,
			LastName:  lastName,
			Email:     reg.Contact.Email,
			Phone:     reg.Contact.Phone,
		},
		Description: fmt.Sprintf("%s - %d%%", deps.Seminar.Name, req.PaymentTier),
		SuccessURL:  callbackURL(deps.CallbackURL, transactionID, ""),
		ErrorURL:    callbackURL(deps.CallbackURL, transactionID, "error"),
	})
	if err != nil {
		logger.ErrorContext(ctx, "Failed to create payment session, registration left pending", slog.String("error", err.Error()))
		return SubmitResult{}, recordErr(span, fromPaymentsError(transactionID, err))
	}

	if reg.PromoCode != nil {
		err = deps.Promos.CommitUsage(ctx, promoCode)
		if err != nil {
			logger.WarnContext(ctx, "Failed to commit promo code usage", slog.String("promoCode", promoCode), slog.String("error", err.Error()))
		}
	}

	logger.InfoContext(ctx, "Registration submitted", slog.Int64("amount", amount.Amount()), slog.String("currency", amount.Currency().Code))

	return SubmitResult{
		TransactionID: transactionID,
		RedirectURL:   session.URL,
		Amount:        amount,
		Discount:      discount,
	}, nil
}

// ReconcilePayment brings a Pending registration in line with the provider's view of its payment.
// It is safe to call any number of times, from any source, in any order.
func ReconcilePayment(ctx context.Context, transactionID string, hint Hint, deps Dependencies) (ReconciliationResult, error) {
	ctx, span := tracer.Start(ctx, "registration.ReconcilePayment", trace.WithAttributes(
		attribute.String("transaction.id", transactionID),
		attribute.String("hint.source", string(hint.Source)),
		attribute.String("hint.status", hint.RawStatus),
	))
	defer span.End()

	logger := deps.logger().With(slog.String("transactionId", transactionID), slog.String("source", string(hint.Source)))

	reg, err := deps.Registrations.GetRegistration(ctx, transactionID)
	if err != nil {
		return ReconciliationResult{}, recordErr(span, err)
	}

	if reg.Status.IsTerminal() {
		return ReconciliationResult{TransactionID: transactionID, Status: reg.Status, AlreadyFinal: true}, nil
	}

	pending := ReconciliationResult{TransactionID: transactionID, Status: STATUS_PENDING}

	completed := hint.Source == HINT_SOURCE_WEBHOOK && hint.Verified && hint.Completed
	if !completed {
		if hint.reportsFailure() {
			logger.InfoContext(ctx, "Payment reported as failed, registration stays pending", slog.String("status", hint.RawStatus))
			return pending, nil
		}

		status, err := deps.Gateway.CheckStatus(ctx, transactionID)
		if err != nil {
			logger.WarnContext(ctx, "Failed to check payment status", slog.String("error", err.Error()))
			return pending, recordErr(span, fromPaymentsError(transactionID, err))
		}
		completed = status == payments.STATUS_COMPLETED
	}

	if !completed {
		return pending, nil
	}

	transitioned, err := deps.Registrations.UpdateRegistrationStatus(ctx, transactionID, STATUS_CONFIRMED, deps.now())
	if err != nil {
		if IsReason(err, REASON_INVALID_STATUS_TRANSITION) {
			// Lost a race against a cancellation.
			current, getErr := deps.Registrations.GetRegistration(ctx, transactionID)
			if getErr != nil {
				return ReconciliationResult{}, recordErr(span, getErr)
			}
			logger.WarnContext(ctx, "Payment completed for a registration that is no longer pending", slog.String("status", string(current.Status)))
			return ReconciliationResult{TransactionID: transactionID, Status: current.Status, AlreadyFinal: true}, nil
		}
		return ReconciliationResult{}, recordErr(span, err)
	}

	if transitioned {
		logger.InfoContext(ctx, "Registration confirmed")
	}

	return ReconciliationResult{
		TransactionID: transactionID,
		Status:        STATUS_CONFIRMED,
		AlreadyFinal:  !transitioned,
		Transitioned:  transitioned,
	}, nil
}

// HandlePaymentNotification authenticates a provider webhook and reconciles the registration it
// refers to. payload must be the exact bytes received.
func HandlePaymentNotification(ctx context.Context, payload []byte, headers http.Header, deps Dependencies) (ReconciliationResult, error) {
	notification, err := deps.Gateway.ConfirmNotification(ctx, payload, headers)
	if err != nil {
		return ReconciliationResult{}, fromPaymentsError("", err)
	}

	result, err := ReconcilePayment(ctx, notification.TransactionID, Hint{
		Source:    HINT_SOURCE_WEBHOOK,
		RawStatus: notification.RawStatus,
		Completed: notification.Status == payments.STATUS_COMPLETED,
		Verified:  notification.Verified,
	}, deps)
	if err != nil {
		return ReconciliationResult{TransactionID: notification.TransactionID}, err
	}
	return result, nil
}

// CancelRegistration soft-cancels a Pending registration. Cancelling twice is a no-op; a Confirmed
// registration cannot be cancelled.
func CancelRegistration(ctx context.Context, transactionID string, repo Repository, now time.Time) (ReconciliationResult, error) {
	transitioned, err := repo.UpdateRegistrationStatus(ctx, transactionID, STATUS_CANCELLED, now)
	if err != nil {
		return ReconciliationResult{}, err
	}

	return ReconciliationResult{
		TransactionID: transactionID,
		Status:        STATUS_CANCELLED,
		AlreadyFinal:  !transitioned,
		Transitioned:  transitioned,
	}, nil
}

func fromPaymentsError(transactionID string, err error) error {
	var paymentsErr *payments.Error
	if !errors.As(err, &paymentsErr) {
		return NewProviderError(transactionID, "Payment provider call failed", err)
	}

	switch paymentsErr.Reason {
	case payments.REASON_TIMEOUT:
		return NewTimeoutError(transactionID, "Payment provider timed out", err)
	case payments.REASON_UNAUTHORIZED:
		return NewUnauthorizedError("Payment notification failed authentication", err)
	case payments.REASON_BAD_REQUEST:
		return NewBadRequestError("Payment notification could not be understood", err)
	default:
		return NewProviderError(transactionID, "Payment provider call failed", err)
	}
}

func callbackURL(base, transactionID, status string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}

	q := u.Query()
	q.Set("transactionId", transactionID)
	if status != "" {
		q.Set("status", status)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
