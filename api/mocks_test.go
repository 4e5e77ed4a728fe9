package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/konekte/seminar-registration/payments"
	"github.com/konekte/seminar-registration/promocode"
	"github.com/konekte/seminar-registration/registration"
	"github.com/konekte/seminar-registration/seminar"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

var noopLogger = slog.New(slog.DiscardHandler)

var testNow = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

var _ DB = &mockDB{}

type mockDB struct {
	CreateRegistrationFunc       func(ctx context.Context, reg registration.Registration) error
	GetRegistrationFunc          func(ctx context.Context, transactionID string) (registration.Registration, error)
	UpdateRegistrationStatusFunc func(ctx context.Context, transactionID string, newStatus registration.Status, updatedAt time.Time) (bool, error)
	CountActiveRegistrationsFunc func(ctx context.Context) (int, error)
	GetAllRegistrationsFunc      func(ctx context.Context, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error)
	GetPromoCodeFunc             func(ctx context.Context, code string) (promocode.PromoCode, error)
	CreatePromoCodeFunc          func(ctx context.Context, promo promocode.PromoCode) error
	IncrementPromoCodeUsageFunc  func(ctx context.Context, code string) error
}

func (m *mockDB) CreateRegistration(ctx context.Context, reg registration.Registration) error {
	if m.CreateRegistrationFunc != nil {
		return m.CreateRegistrationFunc(ctx, reg)
	}
	return nil
}

func (m *mockDB) GetRegistration(ctx context.Context, transactionID string) (registration.Registration, error) {
	if m.GetRegistrationFunc != nil {
		return m.GetRegistrationFunc(ctx, transactionID)
	}
	return registration.Registration{}, registration.NewRegistrationDoesNotExistsError(transactionID, nil)
}

func (m *mockDB) UpdateRegistrationStatus(ctx context.Context, transactionID string, newStatus registration.Status, updatedAt time.Time) (bool, error) {
	if m.UpdateRegistrationStatusFunc != nil {
		return m.UpdateRegistrationStatusFunc(ctx, transactionID, newStatus, updatedAt)
	}
	return true, nil
}

func (m *mockDB) CountActiveRegistrations(ctx context.Context) (int, error) {
	return m.CountActiveRegistrationsFunc(ctx)
}

func (m *mockDB) GetAllRegistrations(ctx context.Context, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
	return m.GetAllRegistrationsFunc(ctx, limit, cursor)
}

func (m *mockDB) GetPromoCode(ctx context.Context, code string) (promocode.PromoCode, error) {
	if m.GetPromoCodeFunc != nil {
		return m.GetPromoCodeFunc(ctx, code)
	}
	return promocode.PromoCode{}, promocode.NewPromoCodeDoesNotExistError(code, nil)
}

func (m *mockDB) CreatePromoCode(ctx context.Context, promo promocode.PromoCode) error {
	return m.CreatePromoCodeFunc(ctx, promo)
}

func (m *mockDB) IncrementPromoCodeUsage(ctx context.Context, code string) error {
	if m.IncrementPromoCodeUsageFunc != nil {
		return m.IncrementPromoCodeUsageFunc(ctx, code)
	}
	return nil
}

var _ payments.Gateway = &mockGateway{}

type mockGateway struct {
	CreatePaymentSessionFunc func(ctx context.Context, params payments.SessionParams) (payments.Session, error)
	CheckStatusFunc          func(ctx context.Context, transactionID string) (payments.Status, error)
	ConfirmNotificationFunc  func(ctx context.Context, payload []byte, headers http.Header) (payments.Notification, error)

	checkStatusCalls atomic.Int32
}

func (m *mockGateway) CreatePaymentSession(ctx context.Context, params payments.SessionParams) (payments.Session, error) {
	if m.CreatePaymentSessionFunc != nil {
		return m.CreatePaymentSessionFunc(ctx, params)
	}
	return payments.Session{URL: "https://pay.example/" + params.TransactionID, OrderID: params.TransactionID}, nil
}

func (m *mockGateway) CheckStatus(ctx context.Context, transactionID string) (payments.Status, error) {
	m.checkStatusCalls.Add(1)
	if m.CheckStatusFunc != nil {
		return m.CheckStatusFunc(ctx, transactionID)
	}
	return payments.STATUS_PENDING, nil
}

func (m *mockGateway) ConfirmNotification(ctx context.Context, payload []byte, headers http.Header) (payments.Notification, error) {
	return m.ConfirmNotificationFunc(ctx, payload, headers)
}

type mockAuthorizer struct {
	AuthorizeFunc func(ctx context.Context, r *http.Request) (Admin, error)
}

func (m *mockAuthorizer) Authorize(ctx context.Context, r *http.Request) (Admin, error) {
	return m.AuthorizeFunc(ctx, r)
}

var allowAdmin = &mockAuthorizer{
	AuthorizeFunc: func(ctx context.Context, r *http.Request) (Admin, error) {
		return Admin{Email: "admin@konekte.ht", Subject: "1"}, nil
	},
}

var denyAdmin = &mockAuthorizer{
	AuthorizeFunc: func(ctx context.Context, r *http.Request) (Admin, error) {
		return Admin{}, ErrMissingCredentials
	},
}

type mockIdValidator struct {
	ValidateFunc func(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

func (m *mockIdValidator) Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error) {
	return m.ValidateFunc(ctx, idToken, audience)
}

func testSeminar(t *testing.T) seminar.Seminar {
	t.Helper()
	sem, err := seminar.New("Konekte Seminar", money.New(500000, "HTG"), 40)
	require.NoError(t, err)
	return sem
}

func newTestHandler(t *testing.T, db *mockDB, gateway *mockGateway, authorizer Authorizer) http.Handler {
	t.Helper()

	a := NewAPI(db, gateway, testSeminar(t), "https://konekte.example/", noopLogger, LOCAL, authorizer)
	a.now = func() time.Time { return testNow }

	handler, err := a.Handler()
	require.NoError(t, err)

	return handler
}

func doRequest(t *testing.T, handler http.Handler, method string, target string, body string, headers http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header[k] = v
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}
