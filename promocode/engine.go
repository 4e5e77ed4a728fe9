package promocode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
)

type Engine struct {
	repo Repository
	now  func() time.Time
}

func NewEngine(repo Repository) *Engine {
	return &Engine{
		repo: repo,
		now:  time.Now,
	}
}

// WithClock returns a copy of the engine that evaluates expirations against now.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	return &Engine{
		repo: e.repo,
		now:  now,
	}
}

// Validate looks up the code and prices it against baseAmount. Unknown, inactive, expired and
// exhausted codes are reported through ValidationResult, not through the error, which is
// reserved for store failures.
func (e *Engine) Validate(ctx context.Context, code string, baseAmount *money.Money) (ValidationResult, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return invalid(normalized, INVALID_NOT_FOUND), nil
	}

	promo, err := e.repo.GetPromoCode(ctx, normalized)
	if err != nil {
		var promoErr *Error
		if errors.As(err, &promoErr) && promoErr.Reason == REASON_PROMO_CODE_DOES_NOT_EXIST {
			return invalid(normalized, INVALID_NOT_FOUND), nil
		}

		return ValidationResult{}, err
	}

	return Validate(promo, baseAmount, e.now()), nil
}

// CommitUsage records one redemption. The store re-checks exhaustion atomically, so this can
// fail with REASON_PROMO_CODE_EXHAUSTED even after a successful Validate.
func (e *Engine) CommitUsage(ctx context.Context, code string) error {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return NewPromoCodeDoesNotExistError("Empty promo code", nil)
	}

	err := e.repo.IncrementPromoCodeUsage(ctx, normalized)
	if err != nil {
		var promoErr *Error
		if errors.As(err, &promoErr) {
			return err
		}
		return NewFailedToWriteError(fmt.Sprintf("Failed to commit usage of promo code %q", normalized), err)
	}

	return nil
}

// Create normalizes and checks a new code before storing it with no redemptions.
func (e *Engine) Create(ctx context.Context, promo PromoCode) (PromoCode, error) {
	promo.Code = NormalizeCode(promo.Code)
	promo.UsageCount = 0
	promo.CreatedAt = e.now().UTC()

	switch {
	case promo.Code == "":
		return PromoCode{}, NewInvalidPromoCodeError("Code must not be empty")
	case !promo.Kind.Valid():
		return PromoCode{}, NewInvalidPromoCodeError(fmt.Sprintf("Unknown discount kind %q", promo.Kind))
	case !promo.Value.IsPositive():
		return PromoCode{}, NewInvalidPromoCodeError("Discount value must be positive")
	case promo.Kind == PERCENTAGE && promo.Value.GreaterThan(hundred):
		return PromoCode{}, NewInvalidPromoCodeError("Percentage discount cannot exceed 100")
	case promo.MaxUses != nil && *promo.MaxUses < 0:
		return PromoCode{}, NewInvalidPromoCodeError("Maximum uses cannot be negative")
	}

	err := e.repo.CreatePromoCode(ctx, promo)
	if err != nil {
		var promoErr *Error
		if errors.As(err, &promoErr) {
			return PromoCode{}, err
		}
		return PromoCode{}, NewFailedToWriteError(fmt.Sprintf("Failed to create promo code %q", promo.Code), err)
	}

	return promo, nil
}
