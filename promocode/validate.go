package promocode

import (
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

type InvalidReason string

const (
	INVALID_NOT_FOUND InvalidReason = "not found"
	INVALID_INACTIVE  InvalidReason = "inactive"
	INVALID_EXPIRED   InvalidReason = "expired"
	INVALID_EXHAUSTED InvalidReason = "exhausted"
)

type ValidationResult struct {
	Valid          bool
	Code           string
	Kind           DiscountKind
	Value          decimal.Decimal
	DiscountAmount *money.Money
	FinalAmount    *money.Money
	Reason         InvalidReason
}

var hundred = decimal.NewFromInt(100)

func invalid(code string, reason InvalidReason) ValidationResult {
	return ValidationResult{
		Valid:  false,
		Code:   code,
		Reason: reason,
	}
}

// Validate checks promo against the evaluation time and prices the discount on baseAmount.
// It never mutates anything.
func Validate(promo PromoCode, baseAmount *money.Money, now time.Time) ValidationResult {
	if !promo.Active {
		return invalid(promo.Code, INVALID_INACTIVE)
	}

	if promo.IsExpired(now) {
		return invalid(promo.Code, INVALID_EXPIRED)
	}

	if promo.IsExhausted() {
		return invalid(promo.Code, INVALID_EXHAUSTED)
	}

	discount := Discount(promo, baseAmount)
	final := money.New(baseAmount.Amount()-discount.Amount(), baseAmount.Currency().Code)

	return ValidationResult{
		Valid:          true,
		Code:           promo.Code,
		Kind:           promo.Kind,
		Value:          promo.Value,
		DiscountAmount: discount,
		FinalAmount:    final,
	}
}

// Discount computes the discount in the base amount's currency, rounded half-up to the
// minor unit and clamped to [0, baseAmount].
func Discount(promo PromoCode, baseAmount *money.Money) *money.Money {
	currency := baseAmount.Currency()

	var minor int64
	switch promo.Kind {
	case PERCENTAGE:
		minor = decimal.NewFromInt(baseAmount.Amount()).
			Mul(promo.Value).
			Div(hundred).
			Round(0).
			IntPart()
	case FIXED:
		minor = promo.Value.Shift(int32(currency.Fraction)).Round(0).IntPart()
	}

	minor = max(minor, 0)
	minor = min(minor, baseAmount.Amount())

	return money.New(minor, currency.Code)
}
