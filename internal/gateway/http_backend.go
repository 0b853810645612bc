package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
)

// HTTPBackend charges through a provider's JSON charge endpoint. Each
// configured provider gets its own instance with its own credentials.
type HTTPBackend struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewHTTPBackend(name, endpoint, apiKey string, timeout time.Duration) *HTTPBackend {
	return &HTTPBackend{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (b *HTTPBackend) Name() string { return b.name }

type chargePayload struct {
	Amount          string            `json:"amount"`
	Currency        string            `json:"currency"`
	Email           string            `json:"email"`
	CustomerID      string            `json:"customer_id,omitempty"`
	PaymentToken    string            `json:"payment_token"`
	Capture         bool              `json:"capture"`
	BillingAddress  domain.Address    `json:"billing_address"`
	ShippingAddress domain.Address    `json:"shipping_address"`
	Items           []domain.LineItem `json:"items"`
	ClientIP        string            `json:"client_ip,omitempty"`
	UserAgent       string            `json:"user_agent,omitempty"`
	Reference       string            `json:"reference,omitempty"`
}

type chargeResult struct {
	Approved       bool   `json:"approved"`
	TransactionID  string `json:"transaction_id"`
	DeclineReason  string `json:"decline_reason"`
	RequiresAction bool   `json:"requires_action"`
	ActionRef      string `json:"action_ref"`
}

// Charge posts the normalized charge to the provider. Any transport or
// provider-side failure is returned as an error; an approved=false body is
// a decline outcome, not an error.
func (b *HTTPBackend) Charge(ctx context.Context, req *Request) (*domain.PaymentOutcome, error) {
	payload := chargePayload{
		Amount:          req.Amount.StringFixed(2),
		Currency:        req.Currency,
		Email:           req.Email,
		CustomerID:      req.CustomerID,
		PaymentToken:    req.PaymentToken,
		Capture:         req.Capture,
		BillingAddress:  req.BillingAddress,
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
		ClientIP:        req.ClientIP,
		UserAgent:       req.UserAgent,
		Reference:       req.Reference,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("charge call to %s failed: %w", b.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("gateway %s returned status %d", b.name, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", b.name, err)
	}

	var result chargeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", b.name, err)
	}

	return &domain.PaymentOutcome{
		Success:        result.Approved && !result.RequiresAction,
		Gateway:        b.name,
		TransactionID:  result.TransactionID,
		DeclineReason:  result.DeclineReason,
		RequiresAction: result.RequiresAction,
		ActionRef:      result.ActionRef,
	}, nil
}
