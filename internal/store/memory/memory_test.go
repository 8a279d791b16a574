package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/sales"
	"mitienda/backend/internal/store"
)

func fixture(t *testing.T) (*Store, domain.Customer, domain.Product, domain.Product) {
	t.Helper()
	ctx := context.Background()
	s := NewSeeded()

	customer, err := s.CreateCustomer(ctx, domain.Customer{Name: "Cliente de prueba", Phone: "55 1234 5678"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	productA, err := s.CreateProduct(ctx, domain.Product{CategoryID: 1, Name: "Café soluble 200g", Price: price("80.00"), Quantity: 10})
	if err != nil {
		t.Fatalf("create product A: %v", err)
	}
	productB, err := s.CreateProduct(ctx, domain.Product{CategoryID: 1, Name: "Azúcar 1kg", Price: price("28.00"), Quantity: 5})
	if err != nil {
		t.Fatalf("create product B: %v", err)
	}
	return s, *customer, *productA, *productB
}

func saleRequest(customerID, productID int64, qty int, owed, paid string) domain.SaleRequest {
	return domain.SaleRequest{
		CustomerID: customerID,
		TotalOwed:  price(owed),
		TotalPaid:  price(paid),
		Lines: []domain.SaleLine{
			{ProductID: productID, Quantity: qty, Subtotal: price(owed)},
		},
	}
}

func timeNowUTC() time.Time { return time.Now().UTC() }

func time24hAgo() time.Time { return time.Now().UTC().Add(-24 * time.Hour) }

func stockOf(t *testing.T, s *Store, productID int64) int {
	t.Helper()
	product, err := s.GetProduct(context.Background(), productID)
	if err != nil {
		t.Fatalf("get product %d: %v", productID, err)
	}
	return product.Quantity
}

func TestCreateSaleDeductsStockAndDerivesStatus(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	sale, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 4, "320.00", "320.00"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if sale.Status != domain.SaleStatusPaid {
		t.Fatalf("expected status paid, got %q", sale.Status)
	}
	if !sale.Change.IsZero() {
		t.Fatalf("expected zero change, got %s", sale.Change)
	}
	if got := stockOf(t, s, product.ID); got != 6 {
		t.Fatalf("expected stock 6 after deduction, got %d", got)
	}
}

func TestSaleLifecycleRestoresStock(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	sale, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 4, "320.00", "320.00"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if got := stockOf(t, s, product.ID); got != 6 {
		t.Fatalf("after create: expected stock 6, got %d", got)
	}

	updated, err := s.UpdateSale(ctx, sale.ID, saleRequest(customer.ID, product.ID, 6, "480.00", "200.00"))
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if updated.Status != domain.SaleStatusPartial {
		t.Fatalf("expected status partial, got %q", updated.Status)
	}
	if !updated.Change.Equal(price("-280.00")) {
		t.Fatalf("expected change -280.00, got %s", updated.Change)
	}
	if got := stockOf(t, s, product.ID); got != 4 {
		t.Fatalf("after raising to 6 units: expected stock 4, got %d", got)
	}

	result, err := s.CancelSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if result.AlreadyCancelled {
		t.Fatalf("first cancel must not report already cancelled")
	}
	if got := stockOf(t, s, product.ID); got != 10 {
		t.Fatalf("after cancel: expected stock restored to 10, got %d", got)
	}

	again, err := s.CancelSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !again.AlreadyCancelled {
		t.Fatalf("second cancel must be idempotent")
	}
	if got := stockOf(t, s, product.ID); got != 10 {
		t.Fatalf("second cancel must not restore again, got stock %d", got)
	}
}

func TestCreateSaleInsufficientStockLeavesEverythingUntouched(t *testing.T) {
	ctx := context.Background()
	s, customer, productA, productB := fixture(t)

	req := domain.SaleRequest{
		CustomerID: customer.ID,
		TotalOwed:  price("500.00"),
		TotalPaid:  price("500.00"),
		Lines: []domain.SaleLine{
			{ProductID: productA.ID, Quantity: 3, Subtotal: price("240.00")},
			{ProductID: productB.ID, Quantity: 8, Subtotal: price("260.00")},
		},
	}

	_, err := s.CreateSale(ctx, req)
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	var stockErr *store.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected typed stock error, got %T", err)
	}
	if stockErr.ProductID != productB.ID || stockErr.Available != 5 || stockErr.Requested != 8 {
		t.Fatalf("unexpected stock error detail: %+v", stockErr)
	}

	if got := stockOf(t, s, productA.ID); got != 10 {
		t.Fatalf("product A must be untouched, got stock %d", got)
	}
	if got := stockOf(t, s, productB.ID); got != 5 {
		t.Fatalf("product B must be untouched, got stock %d", got)
	}
	salesList, err := s.ListSales(ctx, domain.SaleListFilter{CustomerID: customer.ID})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(salesList) != 0 {
		t.Fatalf("no sale must be stored after a failed create, got %d", len(salesList))
	}
}

func TestCreateSaleSumsDuplicateLines(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	req := domain.SaleRequest{
		CustomerID: customer.ID,
		TotalOwed:  price("560.00"),
		TotalPaid:  price("560.00"),
		Lines: []domain.SaleLine{
			{ProductID: product.ID, Quantity: 3, Subtotal: price("240.00")},
			{ProductID: product.ID, Quantity: 4, Subtotal: price("320.00")},
		},
	}
	if _, err := s.CreateSale(ctx, req); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if got := stockOf(t, s, product.ID); got != 3 {
		t.Fatalf("duplicate lines must deduct their sum, expected stock 3, got %d", got)
	}
}

func TestUpdateSaleReducedQuantityDoesNotRestock(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	sale, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 8, "640.00", "640.00"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if got := stockOf(t, s, product.ID); got != 2 {
		t.Fatalf("after create: expected stock 2, got %d", got)
	}

	if _, err := s.UpdateSale(ctx, sale.ID, saleRequest(customer.ID, product.ID, 3, "240.00", "240.00")); err != nil {
		t.Fatalf("update sale: %v", err)
	}
	// Reducing a line keeps its original deduction in place.
	if got := stockOf(t, s, product.ID); got != 2 {
		t.Fatalf("reduced quantity must not return stock, expected 2, got %d", got)
	}
}

func TestUpdateSaleReactivationDeductsFullQuantities(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	sale, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 4, "320.00", "320.00"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := s.CancelSale(ctx, sale.ID); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if got := stockOf(t, s, product.ID); got != 10 {
		t.Fatalf("after cancel: expected stock 10, got %d", got)
	}

	updated, err := s.UpdateSale(ctx, sale.ID, saleRequest(customer.ID, product.ID, 5, "400.00", "400.00"))
	if err != nil {
		t.Fatalf("reactivating update: %v", err)
	}
	if updated.Status != domain.SaleStatusPaid {
		t.Fatalf("expected reactivated sale to be paid, got %q", updated.Status)
	}
	if got := stockOf(t, s, product.ID); got != 5 {
		t.Fatalf("reactivation must deduct the full new quantity, expected stock 5, got %d", got)
	}
}

func TestUpdateSaleInsufficientStockLeavesSaleUnchanged(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	sale, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 4, "320.00", "320.00"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	_, err = s.UpdateSale(ctx, sale.ID, saleRequest(customer.ID, product.ID, 40, "3200.00", "3200.00"))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	reloaded, err := s.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if len(reloaded.Lines) != 1 || reloaded.Lines[0].Quantity != 4 {
		t.Fatalf("failed update must leave lines unchanged, got %+v", reloaded.Lines)
	}
	if got := stockOf(t, s, product.ID); got != 6 {
		t.Fatalf("failed update must leave stock unchanged, got %d", got)
	}
}

func TestDeleteSaleRestoresStock(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	sale, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 4, "320.00", "320.00"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if got := stockOf(t, s, product.ID); got != 10 {
		t.Fatalf("delete must restore stock, expected 10, got %d", got)
	}
	if _, err := s.GetSale(ctx, sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted sale to be gone, got %v", err)
	}
}

func TestDeleteCancelledSaleDoesNotRestoreTwice(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	sale, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 4, "320.00", "320.00"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := s.CancelSale(ctx, sale.ID); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if got := stockOf(t, s, product.ID); got != 10 {
		t.Fatalf("deleting a cancelled sale must not restore again, expected 10, got %d", got)
	}
}

func TestCreateSaleRejectsInvalidRequestBeforeTouchingStock(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	req := saleRequest(customer.ID, product.ID, 4, "320.00", "320.00")
	req.TotalOwed = decimal.Zero
	req.CustomerID = 0

	_, err := s.CreateSale(ctx, req)
	var verr *sales.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Violations) != 2 {
		t.Fatalf("expected both violations reported, got %v", verr.Violations)
	}
	if got := stockOf(t, s, product.ID); got != 10 {
		t.Fatalf("validation failure must not touch stock, got %d", got)
	}
}

func TestCreateSaleUnknownProduct(t *testing.T) {
	ctx := context.Background()
	s, customer, _, _ := fixture(t)

	_, err := s.CreateSale(ctx, saleRequest(customer.ID, 9999, 1, "10.00", "10.00"))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestListSalesFiltersByStatus(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	paid, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 1, "80.00", "80.00"))
	if err != nil {
		t.Fatalf("create paid sale: %v", err)
	}
	pending, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 1, "80.00", "0"))
	if err != nil {
		t.Fatalf("create pending sale: %v", err)
	}
	if _, err := s.CancelSale(ctx, pending.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := s.ListSales(ctx, domain.SaleListFilter{Status: domain.SaleStatusPaid, CustomerID: customer.ID})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(got) != 1 || got[0].ID != paid.ID {
		t.Fatalf("expected only the paid sale, got %+v", got)
	}

	cancelled, err := s.ListSales(ctx, domain.SaleListFilter{Status: domain.SaleStatusCancelled, CustomerID: customer.ID})
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(cancelled) != 1 || cancelled[0].ID != pending.ID {
		t.Fatalf("expected the cancelled sale, got %+v", cancelled)
	}
}

func TestUnitsSoldSinceSkipsCancelledSales(t *testing.T) {
	ctx := context.Background()
	s, customer, productA, productB := fixture(t)

	if _, err := s.CreateSale(ctx, saleRequest(customer.ID, productA.ID, 3, "240.00", "240.00")); err != nil {
		t.Fatalf("create sale: %v", err)
	}
	cancelled, err := s.CreateSale(ctx, saleRequest(customer.ID, productB.ID, 2, "56.00", "56.00"))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := s.CancelSale(ctx, cancelled.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	units, err := s.UnitsSoldSince(ctx, time24hAgo())
	if err != nil {
		t.Fatalf("units sold: %v", err)
	}
	if units[productA.ID] != 3 {
		t.Fatalf("expected 3 units of product A, got %d", units[productA.ID])
	}
	if units[productB.ID] != 0 {
		t.Fatalf("cancelled sale must not count, got %d", units[productB.ID])
	}
}

func TestDashboardSummaryTracksPendingBalance(t *testing.T) {
	ctx := context.Background()
	s, customer, product, _ := fixture(t)

	if _, err := s.CreateSale(ctx, saleRequest(customer.ID, product.ID, 2, "160.00", "60.00")); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	summary, err := s.DashboardSummary(ctx, timeNowUTC())
	if err != nil {
		t.Fatalf("dashboard summary: %v", err)
	}
	if summary.SalesToday != 1 {
		t.Fatalf("expected 1 sale today, got %d", summary.SalesToday)
	}
	if !summary.RevenueToday.Equal(price("160.00")) {
		t.Fatalf("expected revenue 160.00, got %s", summary.RevenueToday)
	}
	if !summary.PendingBalance.Equal(price("100.00")) {
		t.Fatalf("expected pending balance 100.00, got %s", summary.PendingBalance)
	}
}
