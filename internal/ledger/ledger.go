// Package ledger plans and commits gift-card redemptions against an order's
// due amount. Planning is a pure computation over a balance snapshot; card
// balances are only mutated by Commit, after the order has settled.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
)

// CardStore is the persistence boundary for gift cards. RedeemCard must be
// an atomic decrement-if-sufficient at the storage layer and returns the
// resulting balance.
type CardStore interface {
	GetCard(ctx context.Context, code string) (*domain.GiftCard, error)
	RedeemCard(ctx context.Context, code string, amount decimal.Decimal, orderID, orderNumber string) (decimal.Decimal, error)
}

type Ledger struct {
	cards  CardStore
	logger *zap.Logger
}

func NewLedger(cards CardStore, logger *zap.Logger) *Ledger {
	return &Ledger{cards: cards, logger: logger}
}

// Plan allocates the requested gift cards against totalDue in caller order.
// No card balance changes here.
func (l *Ledger) Plan(ctx context.Context, totalDue decimal.Decimal, uses []domain.GiftCardUse) (*domain.RedemptionPlan, error) {
	plan := &domain.RedemptionPlan{Total: decimal.Zero}
	if len(uses) == 0 {
		return plan, nil
	}

	// Duplicates are a validation error before any card is looked up.
	seen := make(map[string]struct{}, len(uses))
	for _, use := range uses {
		code := domain.NormalizeGiftCardCode(use.Code)
		if code == "" {
			return nil, domain.ErrGiftCardNotFound.WithDetail("empty gift card code")
		}
		if _, dup := seen[code]; dup {
			return nil, domain.ErrDuplicateGiftCard.WithDetail("code %s listed more than once", code)
		}
		seen[code] = struct{}{}
	}

	remaining := totalDue
	for _, use := range uses {
		code := domain.NormalizeGiftCardCode(use.Code)

		card, err := l.cards.GetCard(ctx, code)
		if err != nil {
			return nil, err
		}
		switch card.Status {
		case domain.GiftCardVoid:
			return nil, domain.ErrGiftCardVoid.WithDetail("card %s is void", code)
		case domain.GiftCardPending:
			return nil, domain.ErrGiftCardPending.WithDetail("card %s is pending activation", code)
		}
		if card.Balance.LessThanOrEqual(decimal.Zero) {
			return nil, domain.ErrGiftCardEmpty.WithDetail("card %s has balance %s", code, card.Balance)
		}

		requested := use.RequestedAmount
		if requested.LessThanOrEqual(decimal.Zero) {
			requested = card.Balance
		}
		amount := decimal.Min(requested, card.Balance, remaining)
		if amount.LessThanOrEqual(decimal.Zero) {
			// A prior card already covered the due amount; skip, not an error.
			continue
		}

		plan.Allocations = append(plan.Allocations, domain.Allocation{
			Code:          code,
			Amount:        amount,
			BalanceBefore: card.Balance,
		})
		plan.Total = plan.Total.Add(amount)
		remaining = remaining.Sub(amount)
	}

	return plan, nil
}

// Commit applies a plan against a settled order. Each allocation is an
// independent conditional decrement; a failing card is surfaced for manual
// reconciliation and never blocks the others or unwinds the payment.
func (l *Ledger) Commit(ctx context.Context, plan *domain.RedemptionPlan, orderID, orderNumber string) ([]domain.AppliedGiftCard, int) {
	applied := make([]domain.AppliedGiftCard, 0, len(plan.Allocations))
	failed := 0

	for _, alloc := range plan.Allocations {
		newBalance, err := l.cards.RedeemCard(ctx, alloc.Code, alloc.Amount, orderID, orderNumber)
		if err != nil {
			failed++
			l.logger.Error("gift card redemption failed after settlement, manual reconciliation required",
				zap.String("order_id", orderID),
				zap.String("order_number", orderNumber),
				zap.String("gift_card_code", alloc.Code),
				zap.String("amount", alloc.Amount.String()),
				zap.Error(err))
			continue
		}
		applied = append(applied, domain.AppliedGiftCard{
			Code:         alloc.Code,
			Amount:       alloc.Amount,
			BalanceAfter: newBalance,
		})
	}

	return applied, failed
}
