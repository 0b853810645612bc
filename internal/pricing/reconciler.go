package pricing

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
)

// Reconciler recomputes the authoritative order total on the server. The
// client-supplied amount is only ever compared against it, never used.
type Reconciler struct {
	logger *zap.Logger
}

func NewReconciler(logger *zap.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Reconcile validates the declared charge amount bounds and returns the
// authoritative total due for the request.
func (r *Reconciler) Reconcile(req *domain.ChargeRequest) (decimal.Decimal, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) || req.Amount.GreaterThan(domain.MaxChargeAmount) {
		return decimal.Zero, domain.ErrInvalidAmount.WithDetail("amount %s outside (0, %s]",
			req.Amount, domain.MaxChargeAmount)
	}

	total := req.Subtotal.
		Add(req.ShippingCost).
		Add(req.TaxAmount).
		Sub(req.DiscountAmount).
		Add(req.DonationAmount).
		Add(req.InsuranceAmount)

	// Line-item subtotal is cross-checked in logs only; taxes and promos
	// may have been computed upstream of the declared subtotal.
	itemSubtotal := decimal.Zero
	for _, item := range req.Items {
		itemSubtotal = itemSubtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if !itemSubtotal.Equal(req.Subtotal) {
		r.logger.Debug("line-item subtotal differs from declared subtotal",
			zap.String("declared_subtotal", req.Subtotal.String()),
			zap.String("item_subtotal", itemSubtotal.String()))
	}

	return total, nil
}

// VerifyCharge checks that the declared amount covers the total due minus
// the planned gift-card allocation, within the rounding tolerance.
func (r *Reconciler) VerifyCharge(total, giftCardTotal, amount decimal.Decimal, usedGiftCards bool) error {
	diff := total.Sub(giftCardTotal).Sub(amount).Abs()
	if diff.LessThanOrEqual(domain.RoundingTolerance) {
		return nil
	}

	r.logger.Warn("charge amount failed reconciliation",
		zap.String("calculated_total", total.String()),
		zap.String("gift_card_total", giftCardTotal.String()),
		zap.String("declared_amount", amount.String()))

	if usedGiftCards {
		return domain.ErrGiftCardTotalMismatch.WithDetail("total %s - gift cards %s != amount %s",
			total, giftCardTotal, amount)
	}
	return domain.ErrAmountMismatch.WithDetail("total %s != amount %s", total, amount)
}
