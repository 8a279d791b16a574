package sales

import (
	"sort"

	"mitienda/backend/internal/domain"
)

// LineQuantities collapses a line set into a product-to-quantity map,
// summing duplicate product references into one net quantity.
func LineQuantities(lines []domain.SaleLine) map[int64]int {
	out := make(map[int64]int, len(lines))
	for _, line := range lines {
		out[line.ProductID] += line.Quantity
	}
	return out
}

// DeductionPlan computes how much additional stock each product needs when
// a sale's line set is replaced. Without reactivation only the net increase
// per product is deducted; quantities that shrink or disappear deduct
// nothing further, since their original deduction already happened and is
// left untouched. When the sale is coming back from cancelled, the prior
// cancellation already returned everything to the pool, so the full new
// quantity must be re-deducted. Only positive deductions are returned.
func DeductionPlan(oldQty, newQty map[int64]int, reactivating bool) map[int64]int {
	plan := make(map[int64]int, len(newQty))
	for productID, qty := range newQty {
		toDeduct := qty
		if !reactivating {
			toDeduct = qty - oldQty[productID]
		}
		if toDeduct > 0 {
			plan[productID] = toDeduct
		}
	}
	return plan
}

// SortedProductIDs returns the map's keys ascending. Stock rows are always
// locked in this order so that overlapping sales cannot deadlock.
func SortedProductIDs(qty map[int64]int) []int64 {
	ids := make([]int64, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
