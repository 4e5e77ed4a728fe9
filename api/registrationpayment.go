package api

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/konekte/seminar-registration/registration"
)

//go:embed templates/callback.html
var templateFS embed.FS

var callbackTemplate = template.Must(template.ParseFS(templateFS, "templates/callback.html"))

type WebhookResponse struct {
	Success       bool   `json:"success"`
	TransactionId string `json:"transactionId"`
	Status        string `json:"status"`
}

type callbackOutcome string

const (
	outcomeSuccess callbackOutcome = "success"
	outcomePending callbackOutcome = "pending"
	outcomeError   callbackOutcome = "error"
)

type callbackPage struct {
	SeminarName   string
	Outcome       callbackOutcome
	Title         string
	Message       string
	TransactionId string
	Reference     string
}

// bazikWebhookMiddleware answers provider notifications before request validation runs, since
// the signature covers the raw body and the body shape is not fixed.
func (a *API) bazikWebhookMiddleware(pattern string) middlewareFunc {
	server := http.NewServeMux()

	server.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		logger := a.getLoggerOrBaseLogger(ctx)

		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			logger.Warn("Failed to read bazik webhook body", slog.String("error", err.Error()))

			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				a.writeError(ctx, w, http.StatusRequestEntityTooLarge, PayloadTooLarge, "Body is too large")
				return
			}
			a.writeError(ctx, w, http.StatusBadRequest, InvalidBody, "Failed to read body")
			return
		}

		result, err := registration.HandlePaymentNotification(ctx, payload, r.Header, a.deps(ctx))
		if registration.IsReason(err, registration.REASON_REGISTRATION_DOES_NOT_EXIST) {
			// Acknowledge unknown ids; the provider redelivers anything non-2xx.
			logger.Warn("Payment notification for unknown transaction", slog.String("transactionId", result.TransactionID))
			a.writeJSON(ctx, w, http.StatusOK, WebhookResponse{
				Success:       false,
				TransactionId: result.TransactionID,
			})
			return
		}
		if err != nil {
			status, resp := registrationErrorResponse(err)
			logFailure(logger, "Failed to handle payment notification", status, err)
			a.writeJSON(ctx, w, status, resp)
			return
		}

		logger.Info("Payment notification handled",
			slog.String("transactionId", result.TransactionID),
			slog.String("status", string(result.Status)),
			slog.Bool("transitioned", result.Transitioned),
		)

		a.writeJSON(ctx, w, http.StatusOK, WebhookResponse{
			Success:       true,
			TransactionId: result.TransactionID,
			Status:        string(result.Status),
		})
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler, matchedPath := server.Handler(r)

			if matchedPath == "" {
				next.ServeHTTP(w, r)
				return
			}

			handler.ServeHTTP(w, r)
		})
	}
}

func (a *API) getPaymentCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	transactionId := firstQueryValue(query, "transactionId", "transaction_id", "orderId")
	hintStatus := firstQueryValue(query, "status", "paymentStatus")

	logger := a.getLoggerOrBaseLogger(ctx).With(slog.String("transactionId", transactionId), slog.String("hint", hintStatus))

	page := callbackPage{
		SeminarName:   a.seminar.Name,
		TransactionId: transactionId,
	}
	if requestId, ok := getRequestIdFromCtx(ctx); ok {
		page.Reference = requestId.String()
	}

	if transactionId == "" {
		logger.Warn("Payment callback without a transaction id")
		page.Outcome, page.Title, page.Message = outcomeError, "Paiement non confirmé", "Transaction introuvable."
		a.renderCallback(w, r, http.StatusBadRequest, page)
		return
	}

	result, err := registration.ReconcilePayment(ctx, transactionId, registration.Hint{
		Source:    registration.HINT_SOURCE_REDIRECT,
		RawStatus: hintStatus,
	}, a.deps(ctx))
	if err != nil {
		status, _ := registrationErrorResponse(err)
		logFailure(logger, "Failed to reconcile payment from callback", status, err)

		if registration.IsReason(err, registration.REASON_REGISTRATION_DOES_NOT_EXIST) {
			page.Outcome, page.Title, page.Message = outcomeError, "Paiement non confirmé", "Transaction introuvable."
		} else {
			page.Outcome, page.Title, page.Message = outcomeError, "Erreur", "Une erreur est survenue lors de la vérification du paiement. Votre inscription est en attente."
		}
		a.renderCallback(w, r, status, page)
		return
	}

	switch result.Status {
	case registration.STATUS_CONFIRMED:
		page.Outcome, page.Title, page.Message = outcomeSuccess, "Paiement confirmé !", "Votre inscription est validée."
	case registration.STATUS_CANCELLED:
		page.Outcome, page.Title, page.Message = outcomeError, "Inscription annulée", "Cette inscription a été annulée. Contactez-nous si vous avez effectué le paiement."
	default:
		page.Outcome, page.Title, page.Message = outcomePending, "Paiement non confirmé", "Le paiement n'a pas pu être confirmé. Votre inscription reste en attente, contactez-nous si vous avez effectué le paiement."
	}

	a.renderCallback(w, r, http.StatusOK, page)
}

func (a *API) renderCallback(w http.ResponseWriter, r *http.Request, status int, page callbackPage) {
	var buf bytes.Buffer
	err := callbackTemplate.Execute(&buf, page)
	if err != nil {
		a.getLoggerOrBaseLogger(r.Context()).Error("Failed to render payment callback page", slog.String("error", err.Error()))
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func firstQueryValue(query url.Values, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(query.Get(key)); v != "" {
			return v
		}
	}
	return ""
}
