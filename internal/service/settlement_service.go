package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/events"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/gateway"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/ledger"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/pricing"
)

// Charger routes one charge to a payment backend.
type Charger interface {
	Charge(ctx context.Context, req *gateway.Request, preferred string) (*domain.PaymentOutcome, error)
}

// OrderStore durably records settled orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// Publisher emits settlement events; failures are log-only.
type Publisher interface {
	PublishOrderSettled(event events.OrderSettledEvent) error
}

// SettlementService runs one settlement attempt end to end:
// reconcile -> plan -> charge -> record -> commit. Steps are strictly
// sequential and nothing after the charge may reverse it.
type SettlementService struct {
	reconciler *pricing.Reconciler
	ledger     *ledger.Ledger
	router     Charger
	orders     OrderStore
	producer   Publisher
	logger     *zap.Logger
}

func NewSettlementService(
	reconciler *pricing.Reconciler,
	ledger *ledger.Ledger,
	router Charger,
	orders OrderStore,
	producer Publisher,
	logger *zap.Logger,
) *SettlementService {
	return &SettlementService{
		reconciler: reconciler,
		ledger:     ledger,
		router:     router,
		orders:     orders,
		producer:   producer,
		logger:     logger,
	}
}

// Settle processes one charge request. All validation and reconciliation
// failures return before any gateway is touched.
func (s *SettlementService) Settle(ctx context.Context, req *domain.ChargeRequest, requestID string) (*domain.ProcessResponse, error) {
	total, err := s.reconciler.Reconcile(req)
	if err != nil {
		return nil, err
	}

	plan, err := s.ledger.Plan(ctx, total, req.GiftCards)
	if err != nil {
		return nil, err
	}

	if err := s.reconciler.VerifyCharge(total, plan.Total, req.Amount, len(req.GiftCards) > 0); err != nil {
		return nil, err
	}

	// Once the charge is submitted the attempt must run to the recorder
	// even if the caller goes away; an abandoned request must not leave a
	// captured payment with no order.
	ctx = context.WithoutCancel(ctx)

	outcome, err := s.router.Charge(ctx, buildGatewayRequest(req, requestID), req.PreferredGateway)
	if err != nil {
		return nil, err
	}
	if outcome.RequiresAction {
		s.logger.Info("charge requires additional authentication",
			zap.String("request_id", requestID),
			zap.String("gateway", outcome.Gateway),
			zap.String("action_ref", outcome.ActionRef))
		return nil, domain.RequiresActionError(outcome)
	}
	if !outcome.Success {
		s.logger.Info("charge declined",
			zap.String("request_id", requestID),
			zap.String("gateway", outcome.Gateway),
			zap.String("decline_reason", outcome.DeclineReason))
		return nil, domain.DeclinedError(outcome)
	}

	order := buildOrder(req, plan, outcome, total, requestID)

	if err := s.orders.CreateOrder(ctx, order); err != nil {
		// Payment captured, order missing. This is an operational incident
		// for manual reconciliation; re-charging is never an option.
		s.logger.Error("order persistence failed after captured payment, manual reconciliation required",
			zap.String("request_id", requestID),
			zap.String("order_id", order.OrderID),
			zap.String("gateway", outcome.Gateway),
			zap.String("transaction_id", outcome.TransactionID),
			zap.String("amount", req.Amount.String()),
			zap.Error(err))

		return &domain.ProcessResponse{
			TransactionID:    outcome.TransactionID,
			Gateway:          outcome.Gateway,
			AmountCharged:    req.Amount,
			GiftCardTotal:    plan.Total,
			AppliedGiftCards: []domain.AppliedGiftCard{},
			OrderPending:     true,
			WarningCode:      domain.CodeOrderPersistence,
			Message:          "Payment succeeded; order confirmation is pending.",
		}, nil
	}

	applied, failedCommits := s.ledger.Commit(ctx, plan, order.OrderID, order.OrderNumber)
	if failedCommits > 0 {
		s.logger.Error("gift card commits incomplete for settled order",
			zap.String("order_id", order.OrderID),
			zap.Int("failed", failedCommits))
	}

	event := events.OrderSettledEvent{
		EventID:          uuid.New().String(),
		OrderID:          order.OrderID,
		OrderNumber:      order.OrderNumber,
		Email:            order.Email,
		Currency:         order.Currency,
		AmountCharged:    order.AmountCharged,
		GiftCardTotal:    order.GiftCardTotal,
		AppliedGiftCards: applied,
		Gateway:          order.Gateway,
		TransactionID:    order.TransactionID,
		Timestamp:        time.Now().UTC(),
		RequestID:        requestID,
	}
	if err := s.producer.PublishOrderSettled(event); err != nil {
		s.logger.Error("Failed to publish settlement event",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}

	s.logger.Info("Order settled",
		zap.String("order_id", order.OrderID),
		zap.String("order_number", order.OrderNumber),
		zap.String("gateway", order.Gateway),
		zap.String("transaction_id", order.TransactionID),
		zap.String("amount_charged", order.AmountCharged.String()),
		zap.String("gift_card_total", order.GiftCardTotal.String()))

	return &domain.ProcessResponse{
		OrderID:          order.OrderID,
		OrderNumber:      order.OrderNumber,
		TransactionID:    order.TransactionID,
		Gateway:          order.Gateway,
		AmountCharged:    order.AmountCharged,
		GiftCardTotal:    order.GiftCardTotal,
		AppliedGiftCards: applied,
		Message:          "Order settled successfully.",
	}, nil
}

// GetOrder fetches a settled order by id.
func (s *SettlementService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func buildGatewayRequest(req *domain.ChargeRequest, requestID string) *gateway.Request {
	return &gateway.Request{
		Amount:          req.Amount,
		Currency:        strings.ToUpper(req.Currency),
		Email:           req.Email,
		CustomerID:      req.CustomerID,
		PaymentToken:    req.PaymentToken,
		Capture:         true,
		BillingAddress:  domain.SanitizeAddress(req.BillingAddress),
		ShippingAddress: domain.SanitizeAddress(req.ShippingAddress),
		Items:           sanitizeItems(req.Items),
		ClientIP:        req.ClientIP,
		UserAgent:       req.UserAgent,
		Reference:       requestID,
	}
}

func buildOrder(req *domain.ChargeRequest, plan *domain.RedemptionPlan, outcome *domain.PaymentOutcome, total decimal.Decimal, requestID string) *domain.Order {
	orderID := uuid.New().String()

	// Snapshot the planned redemptions; the commit step reports the actual
	// resulting balances in the response.
	planned := make([]domain.AppliedGiftCard, 0, len(plan.Allocations))
	for _, alloc := range plan.Allocations {
		planned = append(planned, domain.AppliedGiftCard{
			Code:         alloc.Code,
			Amount:       alloc.Amount,
			BalanceAfter: alloc.BalanceBefore.Sub(alloc.Amount),
		})
	}

	return &domain.Order{
		OrderID:          orderID,
		OrderNumber:      orderNumber(orderID),
		Email:            req.Email,
		CustomerID:       req.CustomerID,
		Currency:         strings.ToUpper(req.Currency),
		Items:            sanitizeItems(req.Items),
		BillingAddress:   domain.SanitizeAddress(req.BillingAddress),
		ShippingAddress:  domain.SanitizeAddress(req.ShippingAddress),
		Subtotal:         req.Subtotal,
		ShippingCost:     req.ShippingCost,
		TaxAmount:        req.TaxAmount,
		DiscountAmount:   req.DiscountAmount,
		DonationAmount:   req.DonationAmount,
		InsuranceAmount:  req.InsuranceAmount,
		Total:            total,
		GiftCardTotal:    plan.Total,
		AmountCharged:    req.Amount,
		Gateway:          outcome.Gateway,
		TransactionID:    outcome.TransactionID,
		AppliedGiftCards: planned,
		Status:           domain.OrderStatusSettled,
		RequestID:        requestID,
		CreatedAt:        time.Now().UTC(),
	}
}

func sanitizeItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(items))
	for _, li := range items {
		li.SKU = domain.SanitizeText(li.SKU)
		li.Name = domain.SanitizeText(li.Name)
		out = append(out, li)
	}
	return out
}

func orderNumber(orderID string) string {
	short := strings.ToUpper(strings.ReplaceAll(orderID, "-", ""))
	if len(short) > 8 {
		short = short[:8]
	}
	return "FF-" + short
}
