// Package mercadopago talks to the Mercado Pago REST API and verifies the
// signature of its webhook deliveries.
package mercadopago

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.mercadopago.com"

// Payment statuses reported by the API.
const (
	StatusApproved    = "approved"
	StatusPending     = "pending"
	StatusInProcess   = "in_process"
	StatusRejected    = "rejected"
	StatusCancelled   = "cancelled"
	StatusRefunded    = "refunded"
	StatusChargedBack = "charged_back"
)

// ErrInvalidCategoryIDs is returned when metadata.category_ids cannot be
// decoded into a non-empty list.
var ErrInvalidCategoryIDs = errors.New("mercadopago: invalid category_ids metadata")

// UpstreamError reports a failed call to the API: a non-2xx response or a
// transport failure (Status 0).
type UpstreamError struct {
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("mercadopago: request failed: %v", e.Err)
	}
	return fmt.Sprintf("mercadopago: status=%d body=%s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Payer is the buyer attached to a payment.
type Payer struct {
	Email string `json:"email"`
}

// Metadata is the free-form object the checkout attached to the preference.
// CategoryIDs holds the raw JSON value: normally a string containing a JSON
// array, occasionally the array itself.
type Metadata struct {
	UserID      string          `json:"user_id"`
	UserEmail   string          `json:"user_email"`
	CategoryIDs json.RawMessage `json:"category_ids"`
}

// Payment is the subset of the payment resource the platform consumes.
type Payment struct {
	ID                int64    `json:"id"`
	Status            string   `json:"status"`
	StatusDetail      string   `json:"status_detail"`
	CurrencyID        string   `json:"currency_id"`
	PaymentMethodID   string   `json:"payment_method_id"`
	TransactionAmount float64  `json:"transaction_amount"`
	ExternalReference string   `json:"external_reference"`
	Payer             Payer    `json:"payer"`
	Metadata          Metadata `json:"metadata"`
}

// TransactionID is the payment id as stored on entitlements.
func (p *Payment) TransactionID() string { return strconv.FormatInt(p.ID, 10) }

// UserID resolves the buyer: metadata.user_id, else the first "_" segment of
// external_reference.
func (p *Payment) UserID() string {
	if id := strings.TrimSpace(p.Metadata.UserID); id != "" {
		return id
	}
	ref := strings.TrimSpace(p.ExternalReference)
	if ref == "" {
		return ""
	}
	return strings.SplitN(ref, "_", 2)[0]
}

// Email returns metadata.user_email, else the payer email.
func (p *Payment) Email() string {
	if p.Metadata.UserEmail != "" {
		return p.Metadata.UserEmail
	}
	return p.Payer.Email
}

// CategoryIDs decodes metadata.category_ids. Empty lists are an error.
func (p *Payment) CategoryIDs() ([]string, error) {
	raw := p.Metadata.CategoryIDs
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrInvalidCategoryIDs
	}

	var ids []string
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if err := json.Unmarshal([]byte(encoded), &ids); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCategoryIDs, err)
		}
	} else if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCategoryIDs, err)
	}

	out := ids[:0]
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil, ErrInvalidCategoryIDs
	}
	return out, nil
}

// Client is a minimal authenticated API client.
type Client struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
}

// NewClient returns a client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		AccessToken: accessToken,
		HTTPClient:  &http.Client{Timeout: timeout},
	}
}

// GetPayment fetches the authoritative payment resource by id.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	endpoint := c.BaseURL + "/v1/payments/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var p Payment
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("mercadopago: decode payment %s: %w", id, err)
	}
	return &p, nil
}
