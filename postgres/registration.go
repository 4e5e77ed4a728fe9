package postgres

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/konekte/seminar-registration/registration"
	"gorm.io/gorm"
)

var _ registration.Repository = &DB{}

type registrationModel struct {
	TransactionID string `gorm:"primaryKey"`
	FullName      string `gorm:"not null"`
	Email         string `gorm:"not null"`
	Phone         string `gorm:"not null"`
	Motivation    string
	Experience    string `gorm:"not null"`
	PaymentTier   int    `gorm:"not null"`
	AmountMinor   int64  `gorm:"not null"`
	Currency      string `gorm:"size:3;not null"`
	PromoCode     *string
	Status        string    `gorm:"index;not null"`
	CreatedAt     time.Time `gorm:"index;not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (registrationModel) TableName() string {
	return "registrations"
}

func registrationModelFromEntity(reg registration.Registration) registrationModel {
	return registrationModel{
		TransactionID: reg.TransactionID,
		FullName:      reg.Contact.FullName,
		Email:         reg.Contact.Email,
		Phone:         reg.Contact.Phone,
		Motivation:    reg.Contact.Motivation,
		Experience:    string(reg.Experience),
		PaymentTier:   int(reg.PaymentTier),
		AmountMinor:   reg.Amount.Amount(),
		Currency:      reg.Amount.Currency().Code,
		PromoCode:     reg.PromoCode,
		Status:        string(reg.Status),
		CreatedAt:     reg.CreatedAt.UTC(),
		UpdatedAt:     reg.UpdatedAt.UTC(),
	}
}

func (m registrationModel) toEntity() registration.Registration {
	return registration.Registration{
		TransactionID: m.TransactionID,
		Contact: registration.Contact{
			FullName:   m.FullName,
			Email:      m.Email,
			Phone:      m.Phone,
			Motivation: m.Motivation,
		},
		Experience:  registration.ExperienceLevel(m.Experience),
		PaymentTier: registration.PaymentTier(m.PaymentTier),
		Amount:      money.New(m.AmountMinor, m.Currency),
		PromoCode:   m.PromoCode,
		Status:      registration.Status(m.Status),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (d *DB) CreateRegistration(ctx context.Context, reg registration.Registration) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	row := registrationModelFromEntity(reg)
	err := d.db.WithContext(ctx).Create(&row).Error
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return registration.NewRegistrationAlreadyExistsError(fmt.Sprintf("Registration with transaction ID %q already exists", reg.TransactionID), err)
		case isTimeout(err):
			return registration.NewTimeoutError(reg.TransactionID, "CreateRegistration timed out", err)
		default:
			return registration.NewFailedToWriteError("Failed to insert registration", err)
		}
	}

	return nil
}

func (d *DB) GetRegistration(ctx context.Context, transactionID string) (registration.Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var row registrationModel
	err := d.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&row).
		Error
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(fmt.Sprintf("Registration with transaction ID %q not found", transactionID), nil)
		case isTimeout(err):
			return registration.Registration{}, registration.NewTimeoutError(transactionID, "GetRegistration timed out", err)
		default:
			return registration.Registration{}, registration.NewFailedToFetchError(fmt.Sprintf("Failed to fetch registration with transaction ID %q", transactionID), err)
		}
	}

	return row.toEntity(), nil
}

func (d *DB) UpdateRegistrationStatus(ctx context.Context, transactionID string, newStatus registration.Status, updatedAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	result := d.db.WithContext(ctx).
		Model(&registrationModel{}).
		Where("transaction_id = ? AND status = ?", transactionID, string(registration.STATUS_PENDING)).
		Updates(map[string]any{
			"status":     string(newStatus),
			"updated_at": updatedAt.UTC(),
		})
	if result.Error != nil {
		if isTimeout(result.Error) {
			return false, registration.NewTimeoutError(transactionID, "UpdateRegistrationStatus timed out", result.Error)
		}
		return false, registration.NewFailedToWriteError(fmt.Sprintf("Failed to update status of registration %q", transactionID), result.Error)
	}

	if result.RowsAffected > 0 {
		return true, nil
	}

	current, err := d.GetRegistration(ctx, transactionID)
	if err != nil {
		return false, err
	}
	if current.Status == newStatus {
		return false, nil
	}
	return false, registration.NewInvalidStatusTransitionError(current.Status, newStatus)
}

func (d *DB) CountActiveRegistrations(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var count int64
	err := d.db.WithContext(ctx).
		Model(&registrationModel{}).
		Where("status <> ?", string(registration.STATUS_CANCELLED)).
		Count(&count).
		Error
	if err != nil {
		if isTimeout(err) {
			return 0, registration.NewTimeoutError("", "CountActiveRegistrations timed out", err)
		}
		return 0, registration.NewFailedToFetchError("Failed to count registrations", err)
	}

	return int(count), nil
}

type listCursor struct {
	CreatedAt     time.Time `json:"createdAt"`
	TransactionID string    `json:"transactionId"`
}

func encodeCursor(row registrationModel) string {
	bytesJSON, _ := json.Marshal(listCursor{CreatedAt: row.CreatedAt, TransactionID: row.TransactionID})
	return base64.StdEncoding.EncodeToString(bytesJSON)
}

func decodeCursor(cursor string) (listCursor, error) {
	bytesJSON, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return listCursor{}, fmt.Errorf("failed to b64 decode: %w", err)
	}

	var c listCursor
	if err := json.Unmarshal(bytesJSON, &c); err != nil {
		return listCursor{}, fmt.Errorf("failed to json decode: %w", err)
	}
	if c.TransactionID == "" {
		return listCursor{}, errors.New("cursor has no transaction id")
	}
	return c, nil
}

func (d *DB) GetAllRegistrations(ctx context.Context, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx := d.db.WithContext(ctx).Model(&registrationModel{})
	if cursor != nil {
		c, err := decodeCursor(*cursor)
		if err != nil {
			return registration.GetAllRegistrationsResponse{}, registration.NewInvalidCursorError("Invalid cursor", err)
		}
		tx = tx.Where("(created_at, transaction_id) < (?, ?)", c.CreatedAt, c.TransactionID)
	}

	var rows []registrationModel
	// Fetch 1 more than limit to check if there is another page or not
	err := tx.Order("created_at DESC, transaction_id DESC").Limit(int(limit) + 1).Find(&rows).Error
	if err != nil {
		if isTimeout(err) {
			return registration.GetAllRegistrationsResponse{}, registration.NewTimeoutError("", "GetAllRegistrations timed out", err)
		}
		return registration.GetAllRegistrationsResponse{}, registration.NewFailedToFetchError("Failed to list registrations", err)
	}

	hasNextPage := len(rows) > int(limit)
	rows = rows[:min(int(limit), len(rows))]

	var newCursor *string
	if hasNextPage && len(rows) > 0 {
		c := encodeCursor(rows[len(rows)-1])
		newCursor = &c
	}

	data := make([]registration.Registration, 0, len(rows))
	for _, row := range rows {
		data = append(data, row.toEntity())
	}

	return registration.GetAllRegistrationsResponse{
		Data:        data,
		Cursor:      newCursor,
		HasNextPage: hasNextPage,
	}, nil
}
