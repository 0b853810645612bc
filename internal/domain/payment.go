package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundingTolerance is the maximum allowed difference between the
// server-computed charge amount and the amount the client declared.
var RoundingTolerance = decimal.NewFromFloat(0.01)

// MaxChargeAmount bounds a single settlement. Amounts outside
// (0, MaxChargeAmount] are rejected before any reconciliation runs.
var MaxChargeAmount = decimal.NewFromInt(999999)

type LineItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// GiftCardUse is one requested gift-card application. A zero
// RequestedAmount means "apply the full remaining balance".
type GiftCardUse struct {
	Code            string          `json:"code"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
}

// ChargeRequest is the normalized settlement input. Amount is the portion
// the client expects to be charged to the card after gift cards are applied;
// it is cross-checked against the server-side total, never trusted.
type ChargeRequest struct {
	Email            string          `json:"email" binding:"required,email"`
	CustomerID       string          `json:"customer_id"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency" binding:"required,len=3"`
	Items            []LineItem      `json:"items" binding:"required,min=1"`
	BillingAddress   Address         `json:"billing_address"`
	ShippingAddress  Address         `json:"shipping_address"`
	GiftCards        []GiftCardUse   `json:"gift_cards"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	DonationAmount   decimal.Decimal `json:"donation_amount"`
	InsuranceAmount  decimal.Decimal `json:"insurance_amount"`
	PaymentToken     string          `json:"payment_token" binding:"required"`
	PreferredGateway string          `json:"preferred_gateway"`
	Notes            string          `json:"notes"`
	IdempotencyKey   string          `json:"idempotency_key"`

	// Set from the request by the handler, not client JSON.
	ClientIP  string `json:"-"`
	UserAgent string `json:"-"`
}

type GiftCardStatus string

const (
	GiftCardActive  GiftCardStatus = "active"
	GiftCardPending GiftCardStatus = "pending"
	GiftCardVoid    GiftCardStatus = "void"
)

// GiftCard is a stored-value instrument. Balance decreases only through
// a confirmed redemption, never on settlement failure.
type GiftCard struct {
	Code      string          `json:"code"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	Status    GiftCardStatus  `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Allocation is one planned gift-card application. BalanceBefore is the
// card balance observed at planning time.
type Allocation struct {
	Code          string          `json:"code"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
}

// RedemptionPlan is a pure computation over a balance snapshot. Nothing is
// deducted until the plan is committed against a settled order.
type RedemptionPlan struct {
	Allocations []Allocation    `json:"allocations"`
	Total       decimal.Decimal `json:"total"`
}

// PaymentOutcome is the terminal result of one gateway invocation. The
// orchestrator never retries a declined outcome.
type PaymentOutcome struct {
	Success        bool   `json:"success"`
	Gateway        string `json:"gateway"`
	TransactionID  string `json:"transaction_id"`
	DeclineReason  string `json:"decline_reason,omitempty"`
	RequiresAction bool   `json:"requires_action,omitempty"`
	ActionRef      string `json:"action_ref,omitempty"`
}

// AppliedGiftCard records one committed redemption on an order.
type AppliedGiftCard struct {
	Code         string          `json:"code"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

type OrderStatus string

const (
	OrderStatusSettled OrderStatus = "SETTLED"
)

// Order is the durable settlement record. It is created only after a
// successful PaymentOutcome and is immutable here after creation.
type Order struct {
	OrderID          string            `json:"order_id"`
	OrderNumber      string            `json:"order_number"`
	Email            string            `json:"email"`
	CustomerID       string            `json:"customer_id,omitempty"`
	Currency         string            `json:"currency"`
	Items            []LineItem        `json:"items"`
	BillingAddress   Address           `json:"billing_address"`
	ShippingAddress  Address           `json:"shipping_address"`
	Subtotal         decimal.Decimal   `json:"subtotal"`
	ShippingCost     decimal.Decimal   `json:"shipping_cost"`
	TaxAmount        decimal.Decimal   `json:"tax_amount"`
	DiscountAmount   decimal.Decimal   `json:"discount_amount"`
	DonationAmount   decimal.Decimal   `json:"donation_amount"`
	InsuranceAmount  decimal.Decimal   `json:"insurance_amount"`
	Total            decimal.Decimal   `json:"total"`
	GiftCardTotal    decimal.Decimal   `json:"gift_card_total"`
	AmountCharged    decimal.Decimal   `json:"amount_charged"`
	Gateway          string            `json:"gateway"`
	TransactionID    string            `json:"transaction_id"`
	AppliedGiftCards []AppliedGiftCard `json:"applied_gift_cards"`
	Status           OrderStatus       `json:"status"`
	RequestID        string            `json:"request_id"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ProcessResponse is the success payload for a settlement request.
// OrderPending marks a degraded success: the charge was captured but the
// order write failed and is awaiting manual reconciliation; WarningCode
// carries CodeOrderPersistence so callers can distinguish it.
type ProcessResponse struct {
	OrderID          string            `json:"order_id,omitempty"`
	OrderNumber      string            `json:"order_number,omitempty"`
	TransactionID    string            `json:"transaction_id"`
	Gateway          string            `json:"gateway"`
	AmountCharged    decimal.Decimal   `json:"amount_charged"`
	GiftCardTotal    decimal.Decimal   `json:"gift_card_total"`
	AppliedGiftCards []AppliedGiftCard `json:"applied_gift_cards"`
	OrderPending     bool              `json:"order_pending,omitempty"`
	WarningCode      ErrorCode         `json:"warning_code,omitempty"`
	Message          string            `json:"message"`
}
