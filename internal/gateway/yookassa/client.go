// Package yookassa is a minimal client for the YooKassa v3 payments API.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL      = "https://api.yookassa.ru/v3"
	defaultMaxRetries   = 3
	defaultInitialDelay = 500 * time.Millisecond
)

// Payment statuses.
const (
	StatusPending           = "pending"
	StatusWaitingForCapture = "waiting_for_capture"
	StatusSucceeded         = "succeeded"
	StatusCanceled          = "canceled"
)

type Amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type Confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type PaymentMethodData struct {
	Type string `json:"type"`
}

// PaymentRequest is the body of POST /payments.
type PaymentRequest struct {
	Amount            Amount             `json:"amount"`
	PaymentMethodData *PaymentMethodData `json:"payment_method_data,omitempty"`
	Confirmation      Confirmation       `json:"confirmation"`
	Capture           bool               `json:"capture"`
	Description       string             `json:"description,omitempty"`
	Metadata          map[string]string  `json:"metadata,omitempty"`
}

// Payment is the gateway's payment object, as returned by the API and
// embedded in webhook notifications.
type Payment struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	Paid         bool              `json:"paid"`
	Amount       Amount            `json:"amount"`
	Confirmation *Confirmation     `json:"confirmation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ConfirmationURL returns the redirect URL, or "" when none was issued.
func (p *Payment) ConfirmationURL() string {
	if p == nil || p.Confirmation == nil {
		return ""
	}
	return p.Confirmation.ConfirmationURL
}

// Notification is a webhook delivery: {"type":"notification","event":"payment.succeeded","object":{...}}.
type Notification struct {
	Type   string  `json:"type"`
	Event  string  `json:"event"`
	Object Payment `json:"object"`
}

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode  int
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("yookassa: %d %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("yookassa: status %d", e.StatusCode)
}

// Temporary reports whether a retry may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client talks to the gateway with HTTP basic auth (shop id, secret key).
type Client struct {
	baseURL      string
	shopID       string
	secretKey    string
	client       *http.Client
	maxRetries   int
	initialDelay time.Duration
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.client = hc } }

// WithRetry sets the attempt count and the first backoff delay.
func WithRetry(attempts int, initialDelay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxRetries = attempts
		}
		c.initialDelay = initialDelay
	}
}

// New creates a gateway client. An empty baseURL selects DefaultBaseURL.
func New(baseURL, shopID, secretKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		shopID:       shopID,
		secretKey:    secretKey,
		client:       &http.Client{Timeout: 15 * time.Second},
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreatePayment creates a payment. The idempotence key is sent on every
// attempt, so retries never create a second charge.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest, idempotenceKey string) (*Payment, error) {
	if idempotenceKey == "" {
		return nil, errors.New("yookassa: idempotence key required")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("yookassa: marshal request: %w", err)
	}
	var p Payment
	if err := c.do(ctx, http.MethodPost, "/payments", body, idempotenceKey, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPayment fetches the current state of a payment.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	if id == "" {
		return nil, errors.New("yookassa: payment id required")
	}
	var p Payment
	if err := c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, "", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotenceKey string, out any) error {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: d, 2d, 4d
			delay := c.initialDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return fmt.Errorf("yookassa: build request: %w", err)
		}
		httpReq.SetBasicAuth(c.shopID, c.secretKey)
		httpReq.Header.Set("Accept", "application/json")
		if body != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if idempotenceKey != "" {
			httpReq.Header.Set("Idempotence-Key", idempotenceKey)
		}

		resp, err := c.client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("yookassa: request failed: %w", err)
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("yookassa: read response: %w", err)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			_ = json.Unmarshal(respBody, apiErr)
			lastErr = apiErr
			if apiErr.Temporary() {
				continue
			}
			return apiErr
		}

		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("yookassa: decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("yookassa: max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}
