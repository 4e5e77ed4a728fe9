package registration

import (
	"fmt"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TierAmount is the share of basePrice owed for tier, rounded half-up to the minor unit.
// It is the base amount promo codes are priced against.
func TierAmount(basePrice *money.Money, tier PaymentTier) (*money.Money, error) {
	if !tier.Valid() {
		return nil, fmt.Errorf("unsupported payment tier %d", tier)
	}

	minor := decimal.NewFromInt(basePrice.Amount()).
		Mul(decimal.NewFromInt(int64(tier))).
		Div(hundred).
		Round(0).
		IntPart()

	return money.New(minor, basePrice.Currency().Code), nil
}

// ComputeAmount returns the tier share of basePrice minus discount, floored at zero.
// A nil discount means no promo code applies.
func ComputeAmount(basePrice *money.Money, tier PaymentTier, discount *money.Money) (*money.Money, error) {
	amount, err := TierAmount(basePrice, tier)
	if err != nil {
		return nil, err
	}

	if discount == nil {
		return amount, nil
	}

	amount, err = amount.Subtract(discount)
	if err != nil {
		return nil, fmt.Errorf("failed to apply discount: %w", err)
	}

	if amount.IsNegative() {
		return money.New(0, basePrice.Currency().Code), nil
	}
	return amount, nil
}
