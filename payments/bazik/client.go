package bazik

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/konekte/seminar-registration/payments"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseURL = "https://api.bazik.io"
	DefaultTimeout = 30 * time.Second

	tokenSafetyMargin = 60 * time.Second
	maxResponseBytes  = 1 << 20
)

type Config struct {
	BaseURL string
	UserID  string
	APIKey  string
	// WebhookSecret may carry a "whsec_" prefix. Empty disables signature checks.
	WebhookSecret string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

type cachedToken struct {
	value     string
	expiresAt time.Time
}

var _ payments.Gateway = (*Client)(nil)

type Client struct {
	baseURL       string
	userID        string
	apiKey        string
	webhookSecret string
	timeout       time.Duration
	httpClient    *http.Client
	logger        *slog.Logger
	now           func() time.Time

	tokenMu sync.Mutex
	token   cachedToken
	tokenSF singleflight.Group
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	return &Client{
		baseURL:       baseURL,
		userID:        cfg.UserID,
		apiKey:        cfg.APIKey,
		webhookSecret: cfg.WebhookSecret,
		timeout:       timeout,
		httpClient:    httpClient,
		logger:        logger,
		now:           time.Now,
	}
}

type tokenRequest struct {
	UserID    string `json:"userID"`
	SecretKey string `json:"secretKey"`
}

// Authenticate fetches a fresh bearer token, bypassing the cache.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "/token", "", tokenRequest{UserID: c.userID, SecretKey: c.apiKey})
	if err != nil {
		return "", err
	}
	if !isSuccess(status) {
		return "", payments.NewProviderResponseError("Bazik authentication failed", status, string(body))
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", payments.NewProviderError("Bazik authentication response is not JSON", err)
	}

	token := firstString(resp, "access_token", "token", "accessToken")
	if token == "" {
		return "", payments.NewProviderError("Bazik authentication response has no token", nil)
	}

	if expiresIn, ok := resp["expires_in"].(float64); ok {
		ttl := time.Duration(expiresIn)*time.Second - tokenSafetyMargin
		if ttl > 0 {
			c.tokenMu.Lock()
			c.token = cachedToken{value: token, expiresAt: c.now().Add(ttl)}
			c.tokenMu.Unlock()
		}
	}

	return token, nil
}

func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	cached := c.token
	c.tokenMu.Unlock()

	if cached.value != "" && c.now().Before(cached.expiresAt) {
		return cached.value, nil
	}

	// Shared by concurrent callers; do still applies the client timeout.
	v, err, _ := c.tokenSF.Do("token", func() (any, error) {
		return c.Authenticate(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

type createPaymentRequest struct {
	Gdes              json.Number `json:"gdes"`
	UserID            string      `json:"userID"`
	ReferenceID       string      `json:"referenceId"`
	Description       string      `json:"description"`
	CustomerFirstName string      `json:"customerFirstName"`
	CustomerLastName  string      `json:"customerLastName"`
	CustomerEmail     string      `json:"customerEmail"`
	SuccessURL        string      `json:"successUrl"`
	ErrorURL          string      `json:"errorUrl"`
}

func (c *Client) CreatePaymentSession(ctx context.Context, params payments.SessionParams) (payments.Session, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return payments.Session{}, err
	}

	req := createPaymentRequest{
		Gdes:              json.Number(payments.MajorUnits(params.Amount).String()),
		UserID:            c.userID,
		ReferenceID:       params.TransactionID,
		Description:       params.Description,
		CustomerFirstName: params.Customer.FirstName,
		CustomerLastName:  params.Customer.LastName,
		CustomerEmail:     params.Customer.Email,
		SuccessURL:        params.SuccessURL,
		ErrorURL:          params.ErrorURL,
	}

	status, body, err := c.do(ctx, http.MethodPost, "/moncash/token", token, req)
	if err != nil {
		return payments.Session{}, err
	}
	if !isSuccess(status) {
		return payments.Session{}, payments.NewProviderResponseError("Bazik refused to create the payment", status, string(body))
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		return payments.Session{}, payments.NewProviderError("Bazik payment response is not JSON", err)
	}

	redirect := firstString(resp, "paymentUrl", "payment_url", "url", "redirectUrl", "redirect_url")
	if redirect == "" {
		return payments.Session{}, payments.NewProviderError("Protocol violation: Bazik payment response has no redirect URL", nil)
	}

	orderID := firstString(resp, "orderId", "order_id", "referenceId")
	if orderID == "" {
		orderID = params.TransactionID
	}

	return payments.Session{
		URL:     redirect,
		OrderID: orderID,
	}, nil
}

func (c *Client) CheckStatus(ctx context.Context, transactionID string) (payments.Status, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return payments.STATUS_UNKNOWN, err
	}

	status, body, err := c.do(ctx, http.MethodGet, "/moncash/payments/"+url.PathEscape(transactionID), token, nil)
	if err != nil {
		return payments.STATUS_UNKNOWN, err
	}

	if status == http.StatusNotFound {
		return payments.STATUS_PENDING, nil
	}
	if !isSuccess(status) {
		return payments.STATUS_UNKNOWN, payments.NewProviderResponseError("Bazik status check failed", status, string(body))
	}

	var resp map[string]any
	if err := json.Unmarshal(body, &resp); err != nil {
		c.logger.WarnContext(ctx, "Undecodable Bazik status response", slog.String("transactionId", transactionID), slog.String("error", err.Error()))
		return payments.STATUS_UNKNOWN, nil
	}

	if paymentIsSuccessful(resp) {
		return payments.STATUS_COMPLETED, nil
	}
	return payments.STATUS_PENDING, nil
}

func paymentIsSuccessful(resp map[string]any) bool {
	fields := []map[string]any{resp}
	if nested, ok := resp["payment"].(map[string]any); ok {
		fields = append([]map[string]any{nested}, fields...)
	}

	for _, f := range fields {
		for _, key := range []string{"message", "status"} {
			if v, ok := f[key].(string); ok && strings.EqualFold(strings.TrimSpace(v), "successful") {
				return true
			}
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, payments.NewProviderError(fmt.Sprintf("Failed to encode request to %s", path), err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, payments.NewProviderError(fmt.Sprintf("Failed to build request to %s", path), err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, payments.NewTimeoutError(fmt.Sprintf("Bazik did not answer %s %s in %s", method, path, c.timeout), err)
		}
		return 0, nil, payments.NewProviderError(fmt.Sprintf("Failed to call Bazik %s %s", method, path), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, payments.NewTimeoutError(fmt.Sprintf("Bazik response to %s %s timed out", method, path), err)
		}
		return 0, nil, payments.NewProviderError(fmt.Sprintf("Failed to read Bazik response to %s %s", method, path), err)
	}

	return resp.StatusCode, respBody, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
