package bazik

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/konekte/seminar-registration/payments"
)

var signatureHeaders = []string{
	"X-Bazik-Signature",
	"Bazik-Signature",
	"X-Signature",
	"Signature",
	"X-Webhook-Signature",
}

var (
	transactionIDKeys = []string{"transaction_id", "transactionId", "reference", "referenceId", "order_id", "orderId", "id"}
	statusKeys        = []string{"status", "payment_status", "state"}
	completedStatuses = []string{"paid", "success", "completed", "successful"}
)

// Normalized is the result of mapping a webhook body. It is either Recognized or Unrecognized.
type Normalized interface {
	isNormalized()
}

type Recognized struct {
	TransactionID string
	Status        payments.Status
	RawStatus     string
}

type Unrecognized struct {
	Reason string
}

func (Recognized) isNormalized()   {}
func (Unrecognized) isNormalized() {}

// Sign returns the hex HMAC-SHA256 of payload under secret, the form Bazik sends.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(strings.TrimPrefix(secret, "whsec_")))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the exact raw body.
func VerifySignature(secret string, payload []byte, headers http.Header) bool {
	provided := signatureFromHeaders(headers)
	if provided == "" {
		return false
	}

	expected, err := hex.DecodeString(Sign(secret, payload))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(provided))
	if err != nil {
		return false
	}

	return hmac.Equal(expected, got)
}

func signatureFromHeaders(headers http.Header) string {
	for _, h := range signatureHeaders {
		v := strings.TrimSpace(headers.Get(h))
		if v == "" {
			continue
		}
		v = strings.TrimPrefix(v, "whsec_")
		v = strings.TrimPrefix(v, "sha256=")
		return v
	}
	return ""
}

// Normalize maps a webhook body onto a transaction id and payment status.
func Normalize(raw []byte) Normalized {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return Unrecognized{Reason: "body is not a JSON object"}
	}

	candidates := []map[string]any{body}
	if data, ok := body["data"].(map[string]any); ok {
		candidates = append(candidates, data)
	}

	var txID, rawStatus string
	for _, c := range candidates {
		if txID == "" {
			txID = firstScalar(c, transactionIDKeys...)
		}
		if rawStatus == "" {
			rawStatus = firstScalar(c, statusKeys...)
		}
	}

	if txID == "" {
		return Unrecognized{Reason: "no transaction identifier in body"}
	}

	status := payments.STATUS_PENDING
	if isCompleted(body, rawStatus) {
		status = payments.STATUS_COMPLETED
	}

	return Recognized{
		TransactionID: txID,
		Status:        status,
		RawStatus:     rawStatus,
	}
}

func isCompleted(body map[string]any, rawStatus string) bool {
	for _, s := range completedStatuses {
		if strings.EqualFold(strings.TrimSpace(rawStatus), s) {
			return true
		}
	}
	if paid, ok := body["paid"].(bool); ok && paid {
		return true
	}
	if t, ok := body["type"].(string); ok && t == "payment.completed" {
		return true
	}
	return false
}

func firstScalar(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func (c *Client) ConfirmNotification(ctx context.Context, payload []byte, headers http.Header) (payments.Notification, error) {
	verified := false
	if c.webhookSecret == "" {
		c.logger.WarnContext(ctx, "Bazik webhook secret is not configured, status will be checked with the provider")
	} else if !VerifySignature(c.webhookSecret, payload, headers) {
		return payments.Notification{}, payments.NewUnauthorizedError("Missing or invalid Bazik webhook signature")
	} else {
		verified = true
	}

	switch n := Normalize(payload).(type) {
	case Recognized:
		c.logger.InfoContext(ctx, "Bazik webhook received",
			slog.String("transactionId", n.TransactionID),
			slog.String("status", n.RawStatus),
		)
		return payments.Notification{
			TransactionID: n.TransactionID,
			Status:        n.Status,
			RawStatus:     n.RawStatus,
			Verified:      verified,
		}, nil
	case Unrecognized:
		return payments.Notification{}, payments.NewBadRequestError("Unrecognized Bazik webhook: "+n.Reason, nil)
	default:
		return payments.Notification{}, payments.NewBadRequestError("Unrecognized Bazik webhook", nil)
	}
}
