package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/api/idtoken"
)

const googleAuthCookie = "GOOGLE_AUTH_JWT"

var ErrMissingCredentials = errors.New("no admin credentials on request")

type Admin struct {
	Email   string
	Subject string
}

// Authorizer decides whether a request was made by a seminar administrator.
type Authorizer interface {
	Authorize(ctx context.Context, r *http.Request) (Admin, error)
}

type GoogleIdValidator interface {
	Validate(ctx context.Context, idToken string, audience string) (*idtoken.Payload, error)
}

var _ GoogleIdValidator = (*idtoken.Validator)(nil)

// GoogleAdminAuthorizer accepts Google ID tokens issued for audience to accounts of hostedDomain.
type GoogleAdminAuthorizer struct {
	validator    GoogleIdValidator
	audience     string
	hostedDomain string
}

func NewGoogleAdminAuthorizer(validator GoogleIdValidator, audience string, hostedDomain string) *GoogleAdminAuthorizer {
	return &GoogleAdminAuthorizer{
		validator:    validator,
		audience:     audience,
		hostedDomain: hostedDomain,
	}
}

func (g *GoogleAdminAuthorizer) Authorize(ctx context.Context, r *http.Request) (Admin, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return Admin{}, ErrMissingCredentials
	}

	jwt, err := g.validator.Validate(ctx, token, g.audience)
	if err != nil {
		return Admin{}, fmt.Errorf("invalid id token: %w", err)
	}

	org, ok := jwt.Claims["hd"]
	if !ok {
		return Admin{}, fmt.Errorf("hd claim not in JWT")
	}
	if org != g.hostedDomain {
		return Admin{}, fmt.Errorf("user is not an admin")
	}

	email, _ := jwt.Claims["email"].(string)

	return Admin{Email: email, Subject: jwt.Subject}, nil
}

// LocalAuthorizer lets every request through. Only wired in LOCAL.
type LocalAuthorizer struct{}

func (LocalAuthorizer) Authorize(ctx context.Context, r *http.Request) (Admin, error) {
	return Admin{Email: "local@localhost", Subject: "local"}, nil
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if found {
			return strings.TrimSpace(token)
		}
	}

	cookie, err := r.Cookie(googleAuthCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := a.getLoggerOrBaseLogger(ctx)

		if a.authorizer == nil {
			logger.Error("No admin authorizer configured")
			a.writeError(ctx, w, http.StatusUnauthorized, AuthError, "Admin access is not configured")
			return
		}

		admin, err := a.authorizer.Authorize(ctx, r)
		if err != nil {
			logger.Warn("Rejected admin request", slog.String("error", err.Error()))
			a.writeError(ctx, w, http.StatusUnauthorized, AuthError, "Admin credentials are required")
			return
		}

		ctx = ctxWithLogger(ctxWithAdmin(ctx, admin), logger.With(slog.String("admin", admin.Email)))
		next(w, r.WithContext(ctx))
	}
}
