package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"mitienda/backend/internal/domain"
)

func TestSaleLifecycleAgainstPostgres(t *testing.T) {
	databaseURL := os.Getenv("MITIENDA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set MITIENDA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	categoryName := fmt.Sprintf("Categoría IT %d", stamp)
	customerName := fmt.Sprintf("Cliente IT %d", stamp)
	productName := fmt.Sprintf("Producto IT %d", stamp)

	var categoryID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, description, created_at, updated_at)
		VALUES ($1, '', now(), now())
		RETURNING id
	`, categoryName).Scan(&categoryID); err != nil {
		t.Fatalf("insert category: %v", err)
	}

	var customerID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone, email, address, created_at, updated_at)
		VALUES ($1, null, null, null, now(), now())
		RETURNING id
	`, customerName).Scan(&customerID); err != nil {
		t.Fatalf("insert customer: %v", err)
	}

	var productID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (category_id, name, description, price, quantity, image_url, created_at, updated_at)
		VALUES ($1, $2, null, 32.50, 10, null, now(), now())
		RETURNING id
	`, categoryID, productName).Scan(&productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_lines WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE customer_id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, customerID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, categoryID)
	})

	stock := func() int {
		var qty int
		if err := s.db.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = $1`, productID).Scan(&qty); err != nil {
			t.Fatalf("query stock: %v", err)
		}
		return qty
	}

	req := domain.SaleRequest{
		CustomerID: customerID,
		TotalOwed:  decimal.RequireFromString("130.00"),
		TotalPaid:  decimal.RequireFromString("130.00"),
		Lines: []domain.SaleLine{
			{ProductID: productID, Quantity: 4, Subtotal: decimal.RequireFromString("130.00")},
		},
	}

	sale, err := s.CreateSale(ctx, req)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.Status != domain.SaleStatusPaid {
		t.Fatalf("expected status paid, got %q", sale.Status)
	}
	if got := stock(); got != 6 {
		t.Fatalf("expected stock 6 after create, got %d", got)
	}

	req.Lines[0].Quantity = 6
	req.TotalOwed = decimal.RequireFromString("195.00")
	req.TotalPaid = decimal.RequireFromString("100.00")
	req.Lines[0].Subtotal = decimal.RequireFromString("195.00")

	updated, err := s.UpdateSale(ctx, sale.ID, req)
	if err != nil {
		t.Fatalf("update sale: %v", err)
	}
	if updated.Status != domain.SaleStatusPartial {
		t.Fatalf("expected status partial, got %q", updated.Status)
	}
	if got := stock(); got != 4 {
		t.Fatalf("expected stock 4 after raising to 6 units, got %d", got)
	}

	result, err := s.CancelSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if result.AlreadyCancelled {
		t.Fatalf("first cancel must not report already cancelled")
	}
	if got := stock(); got != 10 {
		t.Fatalf("expected stock restored to 10 after cancel, got %d", got)
	}

	again, err := s.CancelSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if !again.AlreadyCancelled {
		t.Fatalf("second cancel must be idempotent")
	}
	if got := stock(); got != 10 {
		t.Fatalf("second cancel must not restore again, got %d", got)
	}

	if err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if got := stock(); got != 10 {
		t.Fatalf("deleting a cancelled sale must not restore again, got %d", got)
	}
}
