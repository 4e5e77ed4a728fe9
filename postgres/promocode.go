package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/konekte/seminar-registration/promocode"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var _ promocode.Repository = &DB{}

type promoCodeModel struct {
	Code       string          `gorm:"primaryKey"`
	Kind       string          `gorm:"not null"`
	Value      decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ExpiresAt  *time.Time
	MaxUses    *int
	UsageCount int       `gorm:"not null;default:0"`
	Active     bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (promoCodeModel) TableName() string {
	return "promo_codes"
}

func promoCodeModelFromEntity(p promocode.PromoCode) promoCodeModel {
	return promoCodeModel{
		Code:       p.Code,
		Kind:       string(p.Kind),
		Value:      p.Value,
		ExpiresAt:  p.ExpiresAt,
		MaxUses:    p.MaxUses,
		UsageCount: p.UsageCount,
		Active:     p.Active,
		CreatedAt:  p.CreatedAt,
	}
}

func (m promoCodeModel) toEntity() promocode.PromoCode {
	return promocode.PromoCode{
		Code:       m.Code,
		Kind:       promocode.DiscountKind(m.Kind),
		Value:      m.Value,
		ExpiresAt:  m.ExpiresAt,
		MaxUses:    m.MaxUses,
		UsageCount: m.UsageCount,
		Active:     m.Active,
		CreatedAt:  m.CreatedAt,
	}
}

func (d *DB) GetPromoCode(ctx context.Context, code string) (promocode.PromoCode, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var row promoCodeModel
	err := d.db.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return promocode.PromoCode{}, promocode.NewPromoCodeDoesNotExistError(fmt.Sprintf("Promo code %q not found", code), nil)
		case isTimeout(err):
			return promocode.PromoCode{}, promocode.NewTimeoutError("GetPromoCode timed out")
		default:
			return promocode.PromoCode{}, promocode.NewFailedToFetchError(fmt.Sprintf("Failed to fetch promo code %q", code), err)
		}
	}

	return row.toEntity(), nil
}

func (d *DB) CreatePromoCode(ctx context.Context, p promocode.PromoCode) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := promoCodeModelFromEntity(p)
	err := d.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return promocode.NewPromoCodeAlreadyExistsError(fmt.Sprintf("Promo code %q already exists", p.Code), err)
		case isTimeout(err):
			return promocode.NewTimeoutError("CreatePromoCode timed out")
		default:
			return promocode.NewFailedToWriteError("Failed to insert promo code", err)
		}
	}

	return nil
}

// IncrementPromoCodeUsage runs the exhaustion guard and the increment as one UPDATE; the row
// lock Postgres takes for it serialises concurrent redemptions.
func (d *DB) IncrementPromoCodeUsage(ctx context.Context, code string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	result := d.db.WithContext(ctx).
		Model(&promoCodeModel{}).
		Where("code = ? AND (max_uses IS NULL OR max_uses = 0 OR usage_count < max_uses)", code).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if result.Error != nil {
		if isTimeout(result.Error) {
			return promocode.NewTimeoutError("IncrementPromoCodeUsage timed out")
		}
		return promocode.NewFailedToWriteError(fmt.Sprintf("Failed to increment usage of promo code %q", code), result.Error)
	}

	if result.RowsAffected > 0 {
		return nil
	}

	if _, err := d.GetPromoCode(ctx, code); err != nil {
		return err
	}
	return promocode.NewPromoCodeExhaustedError(code, nil)
}
