package sales

import (
	"github.com/shopspring/decimal"

	"mitienda/backend/internal/domain"
)

// DeriveStatus maps payment amounts onto a sale status. Cancelled is never
// derived here; it is an explicit transition owned by the store layer.
func DeriveStatus(owed, paid decimal.Decimal) string {
	switch {
	case paid.Sign() <= 0:
		return domain.SaleStatusPending
	case paid.LessThan(owed):
		return domain.SaleStatusPartial
	default:
		return domain.SaleStatusPaid
	}
}

// ChangeDue is the amount handed back to the customer. It is recomputed on
// every create and update and goes negative while a balance is outstanding.
func ChangeDue(owed, paid decimal.Decimal) decimal.Decimal {
	return paid.Sub(owed)
}
