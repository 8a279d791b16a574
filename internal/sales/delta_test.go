package sales

import (
	"testing"

	"github.com/shopspring/decimal"

	"mitienda/backend/internal/domain"
)

func TestLineQuantitiesSumsDuplicateProducts(t *testing.T) {
	lines := []domain.SaleLine{
		{ProductID: 3, Quantity: 2, Subtotal: decimal.NewFromInt(20)},
		{ProductID: 5, Quantity: 1, Subtotal: decimal.NewFromInt(15)},
		{ProductID: 3, Quantity: 4, Subtotal: decimal.NewFromInt(40)},
	}

	qty := LineQuantities(lines)
	if len(qty) != 2 {
		t.Fatalf("expected 2 products, got %d", len(qty))
	}
	if qty[3] != 6 {
		t.Fatalf("expected product 3 quantity 6, got %d", qty[3])
	}
	if qty[5] != 1 {
		t.Fatalf("expected product 5 quantity 1, got %d", qty[5])
	}
}

func TestDeductionPlanOnlyDeductsNetIncrease(t *testing.T) {
	oldQty := map[int64]int{1: 4, 2: 3}
	newQty := map[int64]int{1: 6, 2: 3, 3: 2}

	plan := DeductionPlan(oldQty, newQty, false)
	if len(plan) != 2 {
		t.Fatalf("expected 2 deductions, got %v", plan)
	}
	if plan[1] != 2 {
		t.Fatalf("expected product 1 to deduct 2 more, got %d", plan[1])
	}
	if plan[3] != 2 {
		t.Fatalf("expected new product 3 to deduct 2, got %d", plan[3])
	}
}

func TestDeductionPlanIgnoresReducedLines(t *testing.T) {
	oldQty := map[int64]int{1: 10}
	newQty := map[int64]int{1: 4}

	plan := DeductionPlan(oldQty, newQty, false)
	if len(plan) != 0 {
		t.Fatalf("a reduced line must not deduct further, got %v", plan)
	}
}

func TestDeductionPlanReactivationDeductsFullQuantities(t *testing.T) {
	oldQty := map[int64]int{1: 5}
	newQty := map[int64]int{1: 5, 2: 3}

	plan := DeductionPlan(oldQty, newQty, true)
	if plan[1] != 5 || plan[2] != 3 {
		t.Fatalf("reactivation must deduct the full new quantities, got %v", plan)
	}
}

func TestSortedProductIDsAscending(t *testing.T) {
	ids := SortedProductIDs(map[int64]int{9: 1, 2: 1, 5: 1})
	want := []int64{2, 5, 9}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i, id := range want {
		if ids[i] != id {
			t.Fatalf("position %d: expected %d, got %d", i, id, ids[i])
		}
	}
}
