package payments

import (
	"context"
	"net/http"

	"github.com/Rhymond/go-money"
)

type Status string

const (
	STATUS_PENDING   Status = "PENDING"
	STATUS_COMPLETED Status = "COMPLETED"
	STATUS_UNKNOWN   Status = "UNKNOWN"
)

type Customer struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

type SessionParams struct {
	Amount        *money.Money
	TransactionID string
	Customer      Customer
	Description   string
	SuccessURL    string
	ErrorURL      string
}

// Session is the hosted payment page the payer is redirected to. It is never persisted.
type Session struct {
	URL     string
	OrderID string
}

// Notification is a provider webhook mapped onto a transaction id. Verified is only set when
// the body carried a valid signature; an unverified status must be checked with the provider.
type Notification struct {
	TransactionID string
	Status        Status
	RawStatus     string
	Verified      bool
}

type Gateway interface {
	CreatePaymentSession(ctx context.Context, params SessionParams) (Session, error)
	CheckStatus(ctx context.Context, transactionID string) (Status, error)
	// ConfirmNotification verifies a webhook against the raw body bytes and normalises it.
	ConfirmNotification(ctx context.Context, payload []byte, headers http.Header) (Notification, error)
}
