package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/konekte/seminar-registration/payments"
	"github.com/konekte/seminar-registration/promocode"
	"github.com/konekte/seminar-registration/registration"
	"github.com/konekte/seminar-registration/seminar"
)

type Environment int

const (
	LOCAL Environment = iota
	PROD
)

const (
	callbackPath = "/payment-callback"
	webhookPath  = "/webhooks/bazik"
)

type DB interface {
	registration.Repository
	promocode.Repository
}

type API struct {
	db          DB
	gateway     payments.Gateway
	promos      *promocode.Engine
	seminar     seminar.Seminar
	baseURL     string
	callbackURL string
	logger      *slog.Logger
	env         Environment
	authorizer  Authorizer
	now         func() time.Time
}

// NewAPI builds the HTTP surface. publicBaseURL is the externally reachable origin of this
// service, used for the provider redirect and as the allowed CORS origin in PROD.
func NewAPI(db DB, gateway payments.Gateway, sem seminar.Seminar, publicBaseURL string, logger *slog.Logger, env Environment, authorizer Authorizer) *API {
	base := strings.TrimRight(publicBaseURL, "/")

	return &API{
		db:          db,
		gateway:     gateway,
		promos:      promocode.NewEngine(db),
		seminar:     sem,
		baseURL:     base,
		callbackURL: base + callbackPath,
		logger:      logger,
		env:         env,
		authorizer:  authorizer,
		now:         time.Now,
	}
}

func (a *API) Handler() (http.Handler, error) {
	swagger, err := loadOpenAPISpec()
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /promo-codes/validate", a.postValidatePromoCode)
	mux.HandleFunc("POST /promo-codes", a.requireAdmin(a.postPromoCode))
	mux.HandleFunc("POST /registrations", a.postRegistration)
	mux.HandleFunc("GET /registrations", a.requireAdmin(a.getRegistrations))
	mux.HandleFunc("POST /registrations/{transactionId}/cancel", a.requireAdmin(a.postCancelRegistration))
	mux.HandleFunc("GET "+callbackPath, a.getPaymentCallback)
	mux.HandleFunc("GET /seminar/availability", a.getAvailability)

	return useMiddlewares(
		mux,
		a.openapiValidateMiddleware(swagger),
		a.bazikWebhookMiddleware("POST "+webhookPath),
		a.loggingMiddleware(),
		a.requestContextMiddleware(),
		a.corsMiddleware(),
	), nil
}

func (a *API) deps(ctx context.Context) registration.Dependencies {
	return registration.Dependencies{
		Registrations: a.db,
		Promos:        a.promos,
		Gateway:       a.gateway,
		Seminar:       a.seminar,
		CallbackURL:   a.callbackURL,
		Logger:        a.getLoggerOrBaseLogger(ctx),
		Now:           a.now,
	}
}

func (a *API) allowedOrigins() []string {
	u, err := url.Parse(a.baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Scheme + "://" + u.Host}
}
