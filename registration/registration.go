package registration

import (
	"context"
	"time"

	"github.com/Rhymond/go-money"
)

type Status string

const (
	STATUS_PENDING   Status = "Pending"
	STATUS_CONFIRMED Status = "Confirmed"
	STATUS_CANCELLED Status = "Cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case STATUS_PENDING, STATUS_CONFIRMED, STATUS_CANCELLED:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == STATUS_CONFIRMED || s == STATUS_CANCELLED
}

type PaymentTier int

const (
	TIER_QUARTER PaymentTier = 25
	TIER_HALF    PaymentTier = 50
	TIER_FULL    PaymentTier = 100
)

func (t PaymentTier) Valid() bool {
	switch t {
	case TIER_QUARTER, TIER_HALF, TIER_FULL:
		return true
	}
	return false
}

type Registration struct {
	TransactionID string
	Contact       Contact
	Experience    ExperienceLevel
	PaymentTier   PaymentTier
	Amount        *money.Money
	PromoCode     *string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type GetAllRegistrationsResponse struct {
	Data        []Registration
	Cursor      *string
	HasNextPage bool
}

type Repository interface {
	CreateRegistration(ctx context.Context, registration Registration) error
	GetRegistration(ctx context.Context, transactionID string) (Registration, error)
	// UpdateRegistrationStatus moves a Pending registration to newStatus in one conditional write.
	// It reports whether this call performed the transition. A registration already in newStatus
	// returns false with no error.
	UpdateRegistrationStatus(ctx context.Context, transactionID string, newStatus Status, updatedAt time.Time) (bool, error)
	CountActiveRegistrations(ctx context.Context) (int, error)
	GetAllRegistrations(ctx context.Context, limit int32, cursor *string) (GetAllRegistrationsResponse, error)
}
