package promocode

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountKind string

const (
	PERCENTAGE DiscountKind = "percentage"
	FIXED      DiscountKind = "fixed"
)

func (k DiscountKind) Valid() bool {
	return k == PERCENTAGE || k == FIXED
}

type PromoCode struct {
	Code  string
	Kind  DiscountKind
	Value decimal.Decimal
	// ExpiresAt is nil for codes that never expire.
	ExpiresAt *time.Time
	// MaxUses is nil (or 0) for codes with unlimited redemptions.
	MaxUses    *int
	UsageCount int
	Active     bool
	CreatedAt  time.Time
}

func (p PromoCode) HasUsageLimit() bool {
	return p.MaxUses != nil && *p.MaxUses > 0
}

func (p PromoCode) IsExhausted() bool {
	return p.HasUsageLimit() && p.UsageCount >= *p.MaxUses
}

func (p PromoCode) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// Repository is the promo code half of the record store. IncrementPromoCodeUsage must
// apply the exhaustion guard and the increment as a single conditional write.
type Repository interface {
	GetPromoCode(ctx context.Context, code string) (PromoCode, error)
	CreatePromoCode(ctx context.Context, promo PromoCode) error
	IncrementPromoCodeUsage(ctx context.Context, code string) error
}

// NormalizeCode upper-cases and trims a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
