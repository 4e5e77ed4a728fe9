package seminar

import (
	"context"
	"strings"

	"github.com/Rhymond/go-money"
)

const (
	DefaultName      = "Konekte Seminar"
	DefaultBasePrice = 5000
	DefaultCurrency  = "HTG"
)

type Seminar struct {
	Name      string
	BasePrice *money.Money
	// Capacity of 0 means the seat count is not tracked.
	Capacity int
}

type Availability struct {
	Name       string
	Capacity   int
	Registered int
	Remaining  int
}

type ActiveCounter interface {
	CountActiveRegistrations(ctx context.Context) (int, error)
}

func New(name string, basePrice *money.Money, capacity int) (Seminar, error) {
	if strings.TrimSpace(name) == "" {
		return Seminar{}, NewInvalidConfigurationError("Seminar name is empty")
	}
	if basePrice == nil || basePrice.IsNegative() {
		return Seminar{}, NewInvalidConfigurationError("Seminar base price must be zero or more")
	}
	if capacity < 0 {
		return Seminar{}, NewInvalidConfigurationError("Seminar capacity must be zero or more")
	}

	return Seminar{
		Name:      name,
		BasePrice: basePrice,
		Capacity:  capacity,
	}, nil
}

func (s Seminar) Availability(registered int) Availability {
	remaining := 0
	if s.Capacity > 0 {
		remaining = max(s.Capacity-registered, 0)
	}

	return Availability{
		Name:       s.Name,
		Capacity:   s.Capacity,
		Registered: registered,
		Remaining:  remaining,
	}
}

// GetAvailability counts every registration that is not cancelled against the seminar capacity.
func GetAvailability(ctx context.Context, s Seminar, counter ActiveCounter) (Availability, error) {
	count, err := counter.CountActiveRegistrations(ctx)
	if err != nil {
		return Availability{}, NewFailedToFetchError("Failed to count registrations", err)
	}

	return s.Availability(count), nil
}
