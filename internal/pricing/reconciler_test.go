package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func baseRequest() *domain.ChargeRequest {
	return &domain.ChargeRequest{
		Amount:       d("100"),
		Subtotal:     d("90"),
		ShippingCost: d("10"),
		Items: []domain.LineItem{
			{SKU: "FF-1001", Name: "Refrigerator Filter", UnitPrice: d("45"), Quantity: 2},
		},
	}
}

func TestReconcileComputesTotal(t *testing.T) {
	r := NewReconciler(zap.NewNop())

	req := baseRequest()
	req.TaxAmount = d("7.25")
	req.DiscountAmount = d("5")
	req.DonationAmount = d("1")
	req.InsuranceAmount = d("2.75")

	total, err := r.Reconcile(req)
	require.NoError(t, err)
	assert.True(t, total.Equal(d("106")), "got %s", total)
}

func TestReconcileRejectsAmountBounds(t *testing.T) {
	r := NewReconciler(zap.NewNop())

	tests := []struct {
		name   string
		amount string
	}{
		{"zero", "0"},
		{"negative", "-5"},
		{"above cap", "1000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := baseRequest()
			req.Amount = d(tt.amount)
			_, err := r.Reconcile(req)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
}

func TestReconcileAcceptsAmountCap(t *testing.T) {
	r := NewReconciler(zap.NewNop())

	req := baseRequest()
	req.Amount = d("999999")
	_, err := r.Reconcile(req)
	assert.NoError(t, err)
}

func TestVerifyChargeTolerance(t *testing.T) {
	r := NewReconciler(zap.NewNop())

	tests := []struct {
		name          string
		total         string
		giftCardTotal string
		amount        string
		usedGiftCards bool
		wantErr       *domain.Error
	}{
		{"exact", "100", "0", "100", false, nil},
		{"within tolerance under", "100", "0", "99.99", false, nil},
		{"within tolerance over", "100", "0", "100.01", false, nil},
		{"beyond tolerance", "100", "0", "99.98", false, domain.ErrAmountMismatch},
		{"gift card exact", "100", "30", "70", true, nil},
		{"gift card mismatch", "100", "30", "75", true, domain.ErrGiftCardTotalMismatch},
		{"tampered amount", "100", "0", "1", false, domain.ErrAmountMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.VerifyCharge(d(tt.total), d(tt.giftCardTotal), d(tt.amount), tt.usedGiftCards)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
