package payments

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// MajorUnits converts m to a decimal in its currency's major unit (e.g. 187500 HTG minor -> 1875).
func MajorUnits(m *money.Money) decimal.Decimal {
	return decimal.New(m.Amount(), -int32(m.Currency().Fraction))
}

// FromMajorUnits converts a major unit amount to money, rounding half-up to the minor unit.
func FromMajorUnits(amount decimal.Decimal, currency string) *money.Money {
	shift := int32(2)
	if c := money.GetCurrency(currency); c != nil {
		shift = int32(c.Fraction)
	}
	return money.New(amount.Shift(shift).Round(0).IntPart(), currency)
}
