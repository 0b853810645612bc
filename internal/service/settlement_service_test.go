package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/events"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/gateway"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/ledger"
	"github.com/scootsmagoo/filtersfast-next-sub004/internal/pricing"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeCardStore struct {
	cards map[string]*domain.GiftCard
}

func (s *fakeCardStore) GetCard(_ context.Context, code string) (*domain.GiftCard, error) {
	card, ok := s.cards[code]
	if !ok {
		return nil, domain.ErrGiftCardNotFound
	}
	copy := *card
	return &copy, nil
}

func (s *fakeCardStore) RedeemCard(_ context.Context, code string, amount decimal.Decimal, _, _ string) (decimal.Decimal, error) {
	card, ok := s.cards[code]
	if !ok {
		return decimal.Zero, domain.ErrGiftCardNotFound
	}
	if card.Balance.LessThan(amount) {
		return decimal.Zero, errors.New("insufficient balance")
	}
	card.Balance = card.Balance.Sub(amount)
	return card.Balance, nil
}

type fakeCharger struct {
	calls   int
	outcome *domain.PaymentOutcome
	err     error
	lastReq *gateway.Request
}

func (c *fakeCharger) Charge(_ context.Context, req *gateway.Request, _ string) (*domain.PaymentOutcome, error) {
	c.calls++
	c.lastReq = req
	if c.err != nil {
		return nil, c.err
	}
	return c.outcome, nil
}

type fakeOrderStore struct {
	orders    []*domain.Order
	createErr error
}

func (s *fakeOrderStore) CreateOrder(_ context.Context, order *domain.Order) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.orders = append(s.orders, order)
	return nil
}

func (s *fakeOrderStore) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	for _, o := range s.orders {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return nil, errors.New("order not found")
}

type fakePublisher struct {
	events []events.OrderSettledEvent
	err    error
}

func (p *fakePublisher) PublishOrderSettled(ev events.OrderSettledEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	svc     *SettlementService
	cards   *fakeCardStore
	charger *fakeCharger
	orders  *fakeOrderStore
	pub     *fakePublisher
}

func newFixture(cards ...*domain.GiftCard) *fixture {
	store := &fakeCardStore{cards: make(map[string]*domain.GiftCard)}
	for _, c := range cards {
		store.cards[c.Code] = c
	}
	charger := &fakeCharger{outcome: &domain.PaymentOutcome{
		Success:       true,
		Gateway:       "authorize",
		TransactionID: "tx_1",
	}}
	orders := &fakeOrderStore{}
	pub := &fakePublisher{}
	logger := zap.NewNop()

	svc := NewSettlementService(
		pricing.NewReconciler(logger),
		ledger.NewLedger(store, logger),
		charger,
		orders,
		pub,
		logger,
	)
	return &fixture{svc: svc, cards: store, charger: charger, orders: orders, pub: pub}
}

// chargeRequest builds the worked scenario: 90 subtotal + 10 shipping = 100
// total due, to be split between gift cards and the card charge.
func chargeRequest(amount string, uses ...domain.GiftCardUse) *domain.ChargeRequest {
	return &domain.ChargeRequest{
		Email:        "buyer@example.com",
		Amount:       d(amount),
		Currency:     "usd",
		Subtotal:     d("90"),
		ShippingCost: d("10"),
		Items: []domain.LineItem{
			{SKU: "FF-1001", Name: "Refrigerator Filter", UnitPrice: d("45"), Quantity: 2},
		},
		GiftCards:    uses,
		PaymentToken: "tok_visa",
	}
}

func TestSettleFullCardCharge(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.Settle(context.Background(), chargeRequest("100"), "req-1")
	require.NoError(t, err)

	assert.Equal(t, "tx_1", resp.TransactionID)
	assert.Equal(t, "authorize", resp.Gateway)
	assert.True(t, resp.AmountCharged.Equal(d("100")))
	assert.True(t, resp.GiftCardTotal.Equal(d("0")))
	assert.False(t, resp.OrderPending)

	require.Len(t, f.orders.orders, 1)
	order := f.orders.orders[0]
	assert.Equal(t, resp.OrderID, order.OrderID)
	assert.Equal(t, domain.OrderStatusSettled, order.Status)
	assert.Equal(t, "USD", order.Currency)
	assert.True(t, order.Total.Equal(d("100")))
	assert.Contains(t, order.OrderNumber, "FF-")

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, order.OrderID, f.pub.events[0].OrderID)
}

func TestSettlePartialGiftCardScenario(t *testing.T) {
	f := newFixture(&domain.GiftCard{
		Code:    "GC25",
		Balance: d("25"),
		Status:  domain.GiftCardActive,
	})

	resp, err := f.svc.Settle(context.Background(), chargeRequest("75", domain.GiftCardUse{Code: "gc25"}), "req-1")
	require.NoError(t, err)

	assert.True(t, resp.AmountCharged.Equal(d("75")))
	assert.True(t, resp.GiftCardTotal.Equal(d("25")))
	require.Len(t, resp.AppliedGiftCards, 1)
	assert.Equal(t, "GC25", resp.AppliedGiftCards[0].Code)
	assert.True(t, resp.AppliedGiftCards[0].Amount.Equal(d("25")))
	assert.True(t, resp.AppliedGiftCards[0].BalanceAfter.Equal(d("0")))

	assert.True(t, f.cards.cards["GC25"].Balance.Equal(d("0")), "card balance reduced by exactly the allocation")
	assert.True(t, f.charger.lastReq.Amount.Equal(d("75")))

	require.Len(t, f.orders.orders, 1)
	order := f.orders.orders[0]
	require.Len(t, order.AppliedGiftCards, 1)
	assert.True(t, order.AppliedGiftCards[0].BalanceAfter.Equal(d("0")))
}

func TestSettleThirtySeventySplit(t *testing.T) {
	f := newFixture(&domain.GiftCard{
		Code:    "GC30",
		Balance: d("30"),
		Status:  domain.GiftCardActive,
	})

	resp, err := f.svc.Settle(context.Background(), chargeRequest("70", domain.GiftCardUse{Code: "GC30"}), "req-1")
	require.NoError(t, err)

	assert.True(t, resp.GiftCardTotal.Equal(d("30")))
	assert.True(t, resp.AmountCharged.Equal(d("70")))
	assert.True(t, f.cards.cards["GC30"].Balance.Equal(d("0")))
}

func TestSettleRejectsBeforeGatewayOnMismatch(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Settle(context.Background(), chargeRequest("50"), "req-1")
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Zero(t, f.charger.calls, "a malformed request must never reach a gateway")
	assert.Empty(t, f.orders.orders)
}

func TestSettleRejectsGiftCardMismatchBeforeGateway(t *testing.T) {
	f := newFixture(&domain.GiftCard{
		Code:    "GC30",
		Balance: d("30"),
		Status:  domain.GiftCardActive,
	})

	// Declared amount ignores the gift card allocation.
	_, err := f.svc.Settle(context.Background(), chargeRequest("100", domain.GiftCardUse{Code: "GC30"}), "req-1")
	assert.ErrorIs(t, err, domain.ErrGiftCardTotalMismatch)
	assert.Zero(t, f.charger.calls)
}

func TestSettleInvalidAmountBeforeGateway(t *testing.T) {
	f := newFixture()

	req := chargeRequest("100")
	req.Amount = d("-1")
	_, err := f.svc.Settle(context.Background(), req, "req-1")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	assert.Zero(t, f.charger.calls)
}

func TestSettleDeclineCreatesNoOrder(t *testing.T) {
	f := newFixture(&domain.GiftCard{
		Code:    "GC25",
		Balance: d("25"),
		Status:  domain.GiftCardActive,
	})
	f.charger.outcome = &domain.PaymentOutcome{
		Success:       false,
		Gateway:       "authorize",
		DeclineReason: "do_not_honor",
	}

	_, err := f.svc.Settle(context.Background(), chargeRequest("75", domain.GiftCardUse{Code: "GC25"}), "req-1")
	require.Error(t, err)

	var domErr *domain.Error
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.CodePaymentDeclined, domErr.Code)
	assert.Equal(t, "do_not_honor", domErr.DeclineReason)

	assert.Empty(t, f.orders.orders, "no order for a declined outcome")
	assert.Empty(t, f.pub.events)
	assert.True(t, f.cards.cards["GC25"].Balance.Equal(d("25")), "declines never touch gift card balances")
}

func TestSettleRequiresActionCreatesNoOrder(t *testing.T) {
	f := newFixture()
	f.charger.outcome = &domain.PaymentOutcome{
		Success:        false,
		Gateway:        "authorize",
		RequiresAction: true,
		ActionRef:      "3ds_session_9",
	}

	_, err := f.svc.Settle(context.Background(), chargeRequest("100"), "req-1")
	require.Error(t, err)

	var domErr *domain.Error
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, domain.CodeRequiresAction, domErr.Code)
	assert.Equal(t, "3ds_session_9", domErr.ActionRef)
	assert.Empty(t, f.orders.orders)
}

func TestSettleGatewayUnavailable(t *testing.T) {
	f := newFixture()
	f.charger.err = domain.ErrGatewayUnavailable

	_, err := f.svc.Settle(context.Background(), chargeRequest("100"), "req-1")
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	assert.Empty(t, f.orders.orders)
}

func TestSettleDegradedSuccessOnOrderWriteFailure(t *testing.T) {
	f := newFixture(&domain.GiftCard{
		Code:    "GC25",
		Balance: d("25"),
		Status:  domain.GiftCardActive,
	})
	f.orders.createErr = errors.New("provisioned throughput exceeded")

	resp, err := f.svc.Settle(context.Background(), chargeRequest("75", domain.GiftCardUse{Code: "GC25"}), "req-1")
	require.NoError(t, err, "a captured payment is reported as a degraded success, never an error")

	assert.True(t, resp.OrderPending)
	assert.Equal(t, domain.CodeOrderPersistence, resp.WarningCode)
	assert.Equal(t, "tx_1", resp.TransactionID)
	assert.Equal(t, 1, f.charger.calls, "the charge must never be re-attempted")
	assert.True(t, f.cards.cards["GC25"].Balance.Equal(d("25")), "no ledger commit without a durable order")
	assert.Empty(t, f.pub.events)
}

func TestSettleSanitizesPersistedText(t *testing.T) {
	f := newFixture()

	req := chargeRequest("100")
	req.Items[0].Name = "Refrigerator\x00 Filter\n"
	req.BillingAddress = domain.Address{Name: "Pat\x1b[31m Doe", Line1: "1 Main St"}

	_, err := f.svc.Settle(context.Background(), req, "req-1")
	require.NoError(t, err)

	order := f.orders.orders[0]
	assert.Equal(t, "Refrigerator Filter", order.Items[0].Name)
	assert.Equal(t, "Pat[31m Doe", order.BillingAddress.Name)
}

func TestSettleEventFailureDoesNotFailSettlement(t *testing.T) {
	f := newFixture()
	f.pub.err = errors.New("broker unreachable")

	resp, err := f.svc.Settle(context.Background(), chargeRequest("100"), "req-1")
	require.NoError(t, err)
	assert.False(t, resp.OrderPending)
	require.Len(t, f.orders.orders, 1)
}
