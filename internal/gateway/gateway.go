// Package gateway routes charges to one of several payment backends behind
// a single normalized charge interface.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
)

// Request is the normalized charge passed to every backend. Backend-specific
// request shaping stays inside the backend implementation.
type Request struct {
	Amount          decimal.Decimal
	Currency        string
	Email           string
	CustomerID      string
	PaymentToken    string
	Capture         bool
	BillingAddress  domain.Address
	ShippingAddress domain.Address
	Items           []domain.LineItem
	ClientIP        string
	UserAgent       string
	Reference       string
}

// Gateway is one payment backend. Charge returns an outcome for any
// business result, including declines; an error return means a transport
// fault only.
type Gateway interface {
	Name() string
	Charge(ctx context.Context, req *Request) (*domain.PaymentOutcome, error)
}
