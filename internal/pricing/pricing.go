package pricing

import (
	"github.com/shopspring/decimal"

	"VoiceOrder/internal/session"
)

// DefaultTaxRate is the sales tax applied when none is configured.
var DefaultTaxRate = decimal.RequireFromString("0.08")

// Totals holds the money breakdown for an order, at full precision.
// Rounding happens only at the presentation boundary.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// Rounded returns the totals rounded to cents for display or
// serialization.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal: t.Subtotal.Round(2),
		Tax:      t.Tax.Round(2),
		Total:    t.Total.Round(2),
	}
}

// Service derives order totals. Totals are always recomputed from the
// session's items and never accepted from client input.
type Service struct {
	taxRate decimal.Decimal
}

// NewService creates a pricing service with the given tax rate
func NewService(taxRate decimal.Decimal) *Service {
	return &Service{taxRate: taxRate}
}

// TaxRate returns the configured tax rate
func (s *Service) TaxRate() decimal.Decimal {
	return s.taxRate
}

// Totals computes subtotal, tax, and total for a session's current
// items.
func (s *Service) Totals(sess *session.Session) Totals {
	return s.TotalsForItems(sess.SnapshotItems())
}

// TotalsForItems computes subtotal, tax, and total for an item list
func (s *Service) TotalsForItems(items []session.Item) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	tax := subtotal.Mul(s.taxRate)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}
