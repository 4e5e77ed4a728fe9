package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/konekte/seminar-registration/payments"
	"github.com/konekte/seminar-registration/promocode"
	"github.com/konekte/seminar-registration/ptr"
	"github.com/konekte/seminar-registration/registration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validSubmission = `{
	"fullName": "Marie Jean-Baptiste",
	"email": "marie@example.com",
	"phone": "+509 3712 3456",
	"motivation": "Grow my network",
	"experienceLevel": "Beginner",
	"paymentTier": 50,
	"promoCode": "konekte25"
}`

func decodeError(t *testing.T, body []byte) Error {
	t.Helper()
	var e Error
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestPostRegistration(t *testing.T) {
	konekte25 := promocode.PromoCode{Code: "KONEKTE25", Kind: promocode.PERCENTAGE, Value: decimal.NewFromInt(25), Active: true}

	t.Run("records a pending registration and returns the payment page", func(t *testing.T) {
		var saved registration.Registration
		var committed string
		db := &mockDB{
			CreateRegistrationFunc: func(ctx context.Context, reg registration.Registration) error {
				saved = reg
				return nil
			},
			GetPromoCodeFunc: func(ctx context.Context, code string) (promocode.PromoCode, error) {
				return konekte25, nil
			},
			IncrementPromoCodeUsageFunc: func(ctx context.Context, code string) error {
				committed = code
				return nil
			},
		}
		var session payments.SessionParams
		gateway := &mockGateway{
			CreatePaymentSessionFunc: func(ctx context.Context, params payments.SessionParams) (payments.Session, error) {
				session = params
				return payments.Session{URL: "https://pay.example/checkout/abc"}, nil
			},
		}
		handler := newTestHandler(t, db, gateway, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations", validSubmission, nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp SubmitRegistrationResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "https://pay.example/checkout/abc", resp.RedirectUrl)
		assert.Equal(t, json.Number("1875"), resp.Amount)
		assert.Equal(t, saved.TransactionID, resp.TransactionId)
		assert.True(t, registration.IsTransactionID(resp.TransactionId))

		assert.Equal(t, registration.STATUS_PENDING, saved.Status)
		assert.Equal(t, int64(187500), saved.Amount.Amount())
		assert.Equal(t, "KONEKTE25", *saved.PromoCode)
		assert.Equal(t, "KONEKTE25", committed)

		assert.Equal(t, "Marie", session.Customer.FirstName)
		assert.Equal(t, "Jean-Baptiste", session.Customer.LastName)
		assert.True(t, strings.HasPrefix(session.SuccessURL, "https://konekte.example/payment-callback?"))
		assert.Contains(t, session.ErrorURL, "status=error")
	})

	t.Run("invalid fields are all reported", func(t *testing.T) {
		handler := newTestHandler(t, &mockDB{}, &mockGateway{}, allowAdmin)
		body := `{"fullName": "Al", "email": "nope", "phone": "123", "experienceLevel": "Expert", "paymentTier": 30}`

		rec := doRequest(t, handler, http.MethodPost, "/registrations", body, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		e := decodeError(t, rec.Body.Bytes())
		assert.Equal(t, InputValidationError, e.Code)

		var fields []string
		for _, f := range e.Fields {
			fields = append(fields, f.Field)
		}
		assert.ElementsMatch(t, []string{"fullName", "email", "phone", "experienceLevel", "paymentTier"}, fields)
	})

	t.Run("unknown promo code is a field error", func(t *testing.T) {
		created := false
		db := &mockDB{
			CreateRegistrationFunc: func(ctx context.Context, reg registration.Registration) error {
				created = true
				return nil
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations", validSubmission, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		e := decodeError(t, rec.Body.Bytes())
		require.Len(t, e.Fields, 1)
		assert.Equal(t, "promoCode", e.Fields[0].Field)
		assert.False(t, created)
	})

	t.Run("missing body", func(t *testing.T) {
		handler := newTestHandler(t, &mockDB{}, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations", "", nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, InputValidationError, decodeError(t, rec.Body.Bytes()).Code)
	})

	t.Run("wrongly typed field is rejected before the handler", func(t *testing.T) {
		handler := newTestHandler(t, &mockDB{}, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations", `{"paymentTier": "fifty"}`, nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, InputValidationError, decodeError(t, rec.Body.Bytes()).Code)
	})

	t.Run("duplicate transaction id", func(t *testing.T) {
		db := &mockDB{
			GetPromoCodeFunc: func(ctx context.Context, code string) (promocode.PromoCode, error) {
				return konekte25, nil
			},
			CreateRegistrationFunc: func(ctx context.Context, reg registration.Registration) error {
				return registration.NewRegistrationAlreadyExistsError("dup", nil)
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations", validSubmission, nil)

		require.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, AlreadyExists, decodeError(t, rec.Body.Bytes()).Code)
	})

	t.Run("store failure", func(t *testing.T) {
		db := &mockDB{
			GetPromoCodeFunc: func(ctx context.Context, code string) (promocode.PromoCode, error) {
				return konekte25, nil
			},
			CreateRegistrationFunc: func(ctx context.Context, reg registration.Registration) error {
				return errors.New("connection reset")
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations", validSubmission, nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, InternalError, decodeError(t, rec.Body.Bytes()).Code)
	})

	t.Run("provider failure keeps the registration and reports its id", func(t *testing.T) {
		var saved registration.Registration
		committed := false
		db := &mockDB{
			GetPromoCodeFunc: func(ctx context.Context, code string) (promocode.PromoCode, error) {
				return konekte25, nil
			},
			CreateRegistrationFunc: func(ctx context.Context, reg registration.Registration) error {
				saved = reg
				return nil
			},
			IncrementPromoCodeUsageFunc: func(ctx context.Context, code string) error {
				committed = true
				return nil
			},
		}
		gateway := &mockGateway{
			CreatePaymentSessionFunc: func(ctx context.Context, params payments.SessionParams) (payments.Session, error) {
				return payments.Session{}, payments.NewProviderResponseError("token rejected", http.StatusUnauthorized, "{}")
			},
		}
		handler := newTestHandler(t, db, gateway, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations", validSubmission, nil)

		require.Equal(t, http.StatusBadGateway, rec.Code)
		e := decodeError(t, rec.Body.Bytes())
		assert.Equal(t, ProviderError, e.Code)
		assert.Equal(t, saved.TransactionID, e.TransactionId)
		assert.False(t, committed)
	})

	t.Run("provider timeout", func(t *testing.T) {
		gateway := &mockGateway{
			CreatePaymentSessionFunc: func(ctx context.Context, params payments.SessionParams) (payments.Session, error) {
				return payments.Session{}, payments.NewTimeoutError("slow", context.DeadlineExceeded)
			},
		}
		handler := newTestHandler(t, &mockDB{}, gateway, allowAdmin)
		body := strings.Replace(validSubmission, `"konekte25"`, `""`, 1)

		rec := doRequest(t, handler, http.MethodPost, "/registrations", body, nil)

		require.Equal(t, http.StatusGatewayTimeout, rec.Code)
		e := decodeError(t, rec.Body.Bytes())
		assert.Equal(t, Timeout, e.Code)
		assert.NotEmpty(t, e.TransactionId)
	})
}

func TestGetRegistrations(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	reg := registration.Registration{
		TransactionID: "KONEKTE-1772357400000-abcdefghi",
		Contact:       registration.Contact{FullName: "Jean Pierre", Email: "jean@example.com", Phone: "37123456"},
		Experience:    registration.INTERMEDIATE,
		PaymentTier:   registration.TIER_QUARTER,
		Amount:        money.New(125000, "HTG"),
		Status:        registration.STATUS_CONFIRMED,
		CreatedAt:     createdAt,
	}

	t.Run("requires an admin", func(t *testing.T) {
		handler := newTestHandler(t, &mockDB{}, &mockGateway{}, denyAdmin)

		rec := doRequest(t, handler, http.MethodGet, "/registrations", "", nil)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, AuthError, decodeError(t, rec.Body.Bytes()).Code)
	})

	t.Run("default page", func(t *testing.T) {
		db := &mockDB{
			GetAllRegistrationsFunc: func(ctx context.Context, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
				assert.Equal(t, int32(10), limit)
				assert.Nil(t, cursor)
				return registration.GetAllRegistrationsResponse{
					Data:        []registration.Registration{reg},
					Cursor:      ptr.String("next"),
					HasNextPage: true,
				}, nil
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodGet, "/registrations", "", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var page RegistrationPage
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
		require.Len(t, page.Data, 1)
		assert.True(t, page.HasNextPage)
		assert.Equal(t, "next", *page.Cursor)

		got := page.Data[0]
		assert.Equal(t, reg.TransactionID, got.TransactionId)
		assert.Equal(t, "jean@example.com", string(got.Email))
		assert.Equal(t, "Intermediate", got.ExperienceLevel)
		assert.Equal(t, 25, got.PaymentTier)
		assert.Equal(t, json.Number("1250"), got.Amount)
		assert.Equal(t, "HTG", got.Currency)
		assert.Equal(t, "Confirmed", got.Status)
		assert.Nil(t, got.PromoCode)
		assert.True(t, createdAt.Equal(got.CreatedAt))
	})

	t.Run("limit and cursor are passed through", func(t *testing.T) {
		db := &mockDB{
			GetAllRegistrationsFunc: func(ctx context.Context, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
				assert.Equal(t, int32(5), limit)
				require.NotNil(t, cursor)
				assert.Equal(t, "abc", *cursor)
				return registration.GetAllRegistrationsResponse{}, nil
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodGet, "/registrations?limit=5&cursor=abc", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data": [], "hasNextPage": false}`, rec.Body.String())
	})

	for _, limit := range []string{"0", "51"} {
		t.Run("limit out of bounds "+limit, func(t *testing.T) {
			handler := newTestHandler(t, &mockDB{}, &mockGateway{}, allowAdmin)

			rec := doRequest(t, handler, http.MethodGet, "/registrations?limit="+limit, "", nil)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, LimitOutOfBounds, decodeError(t, rec.Body.Bytes()).Code)
		})
	}

	t.Run("invalid cursor", func(t *testing.T) {
		db := &mockDB{
			GetAllRegistrationsFunc: func(ctx context.Context, limit int32, cursor *string) (registration.GetAllRegistrationsResponse, error) {
				return registration.GetAllRegistrationsResponse{}, registration.NewInvalidCursorError("bad", nil)
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodGet, "/registrations?cursor=zzz", "", nil)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, InvalidCursor, decodeError(t, rec.Body.Bytes()).Code)
	})
}

func TestPostCancelRegistration(t *testing.T) {
	const transactionID = "KONEKTE-1772357400000-abcdefghi"

	t.Run("cancels a pending registration", func(t *testing.T) {
		db := &mockDB{
			UpdateRegistrationStatusFunc: func(ctx context.Context, id string, newStatus registration.Status, updatedAt time.Time) (bool, error) {
				assert.Equal(t, transactionID, id)
				assert.Equal(t, registration.STATUS_CANCELLED, newStatus)
				return true, nil
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations/"+transactionID+"/cancel", "", nil)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.JSONEq(t, `{"transactionId": "`+transactionID+`", "status": "Cancelled"}`, rec.Body.String())
	})

	t.Run("confirmed registrations cannot be cancelled", func(t *testing.T) {
		db := &mockDB{
			UpdateRegistrationStatusFunc: func(ctx context.Context, id string, newStatus registration.Status, updatedAt time.Time) (bool, error) {
				return false, registration.NewInvalidStatusTransitionError(registration.STATUS_CONFIRMED, newStatus)
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations/"+transactionID+"/cancel", "", nil)

		require.Equal(t, http.StatusConflict, rec.Code)
		e := decodeError(t, rec.Body.Bytes())
		assert.Equal(t, InvalidTransition, e.Code)
		assert.Equal(t, transactionID, e.TransactionId)
	})

	t.Run("unknown registration", func(t *testing.T) {
		db := &mockDB{
			UpdateRegistrationStatusFunc: func(ctx context.Context, id string, newStatus registration.Status, updatedAt time.Time) (bool, error) {
				return false, registration.NewRegistrationDoesNotExistsError(id, nil)
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations/"+transactionID+"/cancel", "", nil)

		require.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("requires an admin", func(t *testing.T) {
		handler := newTestHandler(t, &mockDB{}, &mockGateway{}, denyAdmin)

		rec := doRequest(t, handler, http.MethodPost, "/registrations/"+transactionID+"/cancel", "", nil)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetAvailability(t *testing.T) {
	t.Run("remaining seats", func(t *testing.T) {
		db := &mockDB{
			CountActiveRegistrationsFunc: func(ctx context.Context) (int, error) {
				return 12, nil
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodGet, "/seminar/availability", "", nil)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"name": "Konekte Seminar", "capacity": 40, "registered": 12, "remaining": 28}`, rec.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		db := &mockDB{
			CountActiveRegistrationsFunc: func(ctx context.Context) (int, error) {
				return 0, errors.New("boom")
			},
		}
		handler := newTestHandler(t, db, &mockGateway{}, allowAdmin)

		rec := doRequest(t, handler, http.MethodGet, "/seminar/availability", "", nil)

		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestRegistrationErrorResponse(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   ErrorCode
	}{
		{"invalid input", registration.NewInvalidInputError([]registration.FieldError{{Field: "email", Message: "bad"}}), http.StatusBadRequest, InputValidationError},
		{"conflict", registration.NewRegistrationAlreadyExistsError("x", nil), http.StatusConflict, AlreadyExists},
		{"not found", registration.NewRegistrationDoesNotExistsError("x", nil), http.StatusNotFound, NotFound},
		{"provider", registration.NewProviderError("KONEKTE-1-a", "x", nil), http.StatusBadGateway, ProviderError},
		{"timeout", registration.NewTimeoutError("KONEKTE-1-a", "x", nil), http.StatusGatewayTimeout, Timeout},
		{"unauthorized", registration.NewUnauthorizedError("x", nil), http.StatusUnauthorized, Unauthorized},
		{"bad request", registration.NewBadRequestError("x", nil), http.StatusBadRequest, BadRequest},
		{"store", registration.NewFailedToWriteError("x", nil), http.StatusInternalServerError, InternalError},
		{"not a registration error", errors.New("x"), http.StatusInternalServerError, InternalError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, resp := registrationErrorResponse(tc.err)

			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, resp.Code)
		})
	}
}
