package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/sales"
	"mitienda/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(description, '')
		FROM categories
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]domain.Category, 0, 16)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, '')
		FROM categories
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidSale
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, description, created_at, updated_at)
		VALUES ($1, $2, now(), now())
		RETURNING id
	`, category.Name, nullIfEmpty(category.Description)).Scan(&category.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &category, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID <= 0 || strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidSale
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories
		SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
	`, category.ID, category.Name, nullIfEmpty(category.Description))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return &category, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListCustomers(ctx context.Context, search string) ([]domain.Customer, error) {
	query := `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, '')
		FROM customers
	`
	args := []any{}
	if search != "" {
		query += ` WHERE name ILIKE $1 OR phone ILIKE $1`
		args = append(args, "%"+search+"%")
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]domain.Customer, 0, 32)
	for rows.Next() {
		var c domain.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return customers, nil
}

func (s *Store) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, '')
		FROM customers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Address)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidSale
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, phone, email, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id
	`, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), nullIfEmpty(customer.Address)).Scan(&customer.ID)
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID <= 0 || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidSale
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET name = $2, phone = $3, email = $4, address = $5, updated_at = now()
		WHERE id = $1
	`, customer.ID, customer.Name, nullIfEmpty(customer.Phone), nullIfEmpty(customer.Email), nullIfEmpty(customer.Address))
	if err != nil {
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	query := `
		SELECT p.id, p.category_id, c.name, p.name, COALESCE(p.description, ''),
		       p.price, p.quantity, COALESCE(p.image_url, '')
		FROM products p
		JOIN categories c ON c.id = p.category_id
	`
	args := []any{}
	if categoryID > 0 {
		query += ` WHERE p.category_id = $1`
		args = append(args, categoryID)
	}
	query += ` ORDER BY c.name ASC, p.name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.CategoryName, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.ImageURL); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT p.id, p.category_id, c.name, p.name, COALESCE(p.description, ''),
		       p.price, p.quantity, COALESCE(p.image_url, '')
		FROM products p
		JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`, id).Scan(&p.ID, &p.CategoryID, &p.CategoryName, &p.Name, &p.Description, &p.Price, &p.Quantity, &p.ImageURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.CategoryID <= 0 {
		return nil, store.ErrInvalidSale
	}
	if product.Price.Sign() < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidSale
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (category_id, name, description, price, quantity, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id
	`, product.CategoryID, product.Name, nullIfEmpty(product.Description), product.Price, product.Quantity, nullIfEmpty(product.ImageURL)).Scan(&product.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID <= 0 || strings.TrimSpace(product.Name) == "" || product.CategoryID <= 0 {
		return nil, store.ErrInvalidSale
	}
	if product.Price.Sign() < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidSale
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET category_id = $2, name = $3, description = $4, price = $5, quantity = $6, image_url = $7, updated_at = now()
		WHERE id = $1
	`, product.ID, product.CategoryID, product.Name, nullIfEmpty(product.Description), product.Price, product.Quantity, nullIfEmpty(product.ImageURL))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
		}
		return nil, err
	}
	if err := requireAffected(res); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	query := `
		SELECT s.id, s.customer_id, c.name, s.sale_date, s.total_owed, s.total_paid,
		       s.change_due, s.status,
		       (SELECT COUNT(*) FROM sale_lines l WHERE l.sale_id = s.id)
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
	`
	conds := []string{}
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("s.status = $%d", len(args)))
	}
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("s.customer_id = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY s.sale_date DESC, s.id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.Date, &sale.TotalOwed, &sale.TotalPaid, &sale.Change, &sale.Status, &sale.LineCount); err != nil {
			return nil, err
		}
		sale.Date = sale.Date.UTC()
		result = append(result, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.customer_id, c.name, s.sale_date, s.total_owed, s.total_paid, s.change_due, s.status
		FROM sales s
		JOIN customers c ON c.id = s.customer_id
		WHERE s.id = $1
	`, id).Scan(&sale.ID, &sale.CustomerID, &sale.CustomerName, &sale.Date, &sale.TotalOwed, &sale.TotalPaid, &sale.Change, &sale.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	sale.Date = sale.Date.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.product_id, p.name, l.quantity, l.subtotal
		FROM sale_lines l
		JOIN products p ON p.id = l.product_id
		WHERE l.sale_id = $1
		ORDER BY l.id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.SaleLineDetail
		if err := rows.Scan(&line.ID, &line.ProductID, &line.ProductName, &line.Quantity, &line.Subtotal); err != nil {
			return nil, err
		}
		sale.Lines = append(sale.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sale.LineCount = len(sale.Lines)
	return &sale, nil
}

// CreateSale inserts a sale with its lines and deducts every line quantity
// from product stock in one serializable transaction. Nothing is written
// when any product cannot cover its deduction.
func (s *Store) CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	if violations := sales.Validate(&req); len(violations) > 0 {
		return nil, &sales.ValidationError{Violations: violations}
	}
	saleDate, err := parseSaleDate(req.Date)
	if err != nil {
		return nil, err
	}
	status := sales.DeriveStatus(req.TotalOwed, req.TotalPaid)
	change := sales.ChangeDue(req.TotalOwed, req.TotalPaid)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	need := sales.LineQuantities(req.Lines)
	stock, err := lockProductQuantities(ctx, tx, sales.SortedProductIDs(need))
	if err != nil {
		return nil, err
	}
	for _, productID := range sales.SortedProductIDs(need) {
		available, exists := stock[productID]
		if !exists {
			return nil, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
		if available < need[productID] {
			return nil, &store.InsufficientStockError{ProductID: productID, Available: available, Requested: need[productID]}
		}
	}

	var saleID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (customer_id, sale_date, total_owed, total_paid, change_due, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id
	`, req.CustomerID, saleDate, req.TotalOwed, req.TotalPaid, change, status).Scan(&saleID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("customer %d: %w", req.CustomerID, store.ErrNotFound)
		}
		return nil, err
	}

	if err := insertSaleLines(ctx, tx, saleID, req.Lines); err != nil {
		return nil, err
	}
	if err := applyDeductions(ctx, tx, need); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, saleID)
}

// UpdateSale replaces the sale's header and full line set. Stock is
// reconciled per product with net-delta accounting: only quantity growth
// is deducted, while a sale coming back from cancelled re-deducts its
// entire new line set. Quantities that shrink return nothing here.
func (s *Store) UpdateSale(ctx context.Context, id int64, req domain.SaleRequest) (*domain.Sale, error) {
	if violations := sales.Validate(&req); len(violations) > 0 {
		return nil, &sales.ValidationError{Violations: violations}
	}
	saleDate, err := parseSaleDate(req.Date)
	if err != nil {
		return nil, err
	}
	newStatus := sales.DeriveStatus(req.TotalOwed, req.TotalPaid)
	change := sales.ChangeDue(req.TotalOwed, req.TotalPaid)

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var currentStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM sales WHERE id = $1 FOR UPDATE
	`, id).Scan(&currentStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	oldQty, err := saleLineQuantities(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	newQty := sales.LineQuantities(req.Lines)
	reactivating := currentStatus == domain.SaleStatusCancelled && newStatus != domain.SaleStatusCancelled
	plan := sales.DeductionPlan(oldQty, newQty, reactivating)

	stock, err := lockProductQuantities(ctx, tx, sales.SortedProductIDs(newQty))
	if err != nil {
		return nil, err
	}
	for _, productID := range sales.SortedProductIDs(newQty) {
		if _, exists := stock[productID]; !exists {
			return nil, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
	}
	for _, productID := range sales.SortedProductIDs(plan) {
		available := stock[productID]
		if available < plan[productID] {
			return nil, &store.InsufficientStockError{ProductID: productID, Available: available, Requested: plan[productID]}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET customer_id = $2, sale_date = $3, total_owed = $4, total_paid = $5,
		    change_due = $6, status = $7, updated_at = now()
		WHERE id = $1
	`, id, req.CustomerID, saleDate, req.TotalOwed, req.TotalPaid, change, newStatus)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("customer %d: %w", req.CustomerID, store.ErrNotFound)
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, id); err != nil {
		return nil, err
	}
	if err := insertSaleLines(ctx, tx, id, req.Lines); err != nil {
		return nil, err
	}
	if err := applyDeductions(ctx, tx, plan); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, id)
}

// CancelSale returns every line quantity to stock and marks the sale
// cancelled. Cancelling twice is a no-op; stock is restored exactly once.
func (s *Store) CancelSale(ctx context.Context, id int64) (*domain.CancelResult, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM sales WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status == domain.SaleStatusCancelled {
		return &domain.CancelResult{SaleID: id, Status: status, AlreadyCancelled: true}, nil
	}

	lineQty, err := saleLineQuantities(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if _, err := lockProductQuantities(ctx, tx, sales.SortedProductIDs(lineQty)); err != nil {
		return nil, err
	}
	if err := applyRestorations(ctx, tx, lineQty); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales SET status = $2, updated_at = now() WHERE id = $1
	`, id, domain.SaleStatusCancelled); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &domain.CancelResult{SaleID: id, Status: domain.SaleStatusCancelled}, nil
}

// DeleteSale removes the sale and its lines. Stock is restored unless the
// sale was already cancelled, which restored it at cancellation time.
func (s *Store) DeleteSale(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM sales WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	if status != domain.SaleStatusCancelled {
		lineQty, err := saleLineQuantities(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := lockProductQuantities(ctx, tx, sales.SortedProductIDs(lineQty)); err != nil {
			return err
		}
		if err := applyRestorations(ctx, tx, lineQty); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sale_lines WHERE sale_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// lockProductQuantities acquires row locks on the given products and
// returns their current quantities. ORDER BY id keeps lock acquisition
// deterministic across concurrent sales touching overlapping products.
func lockProductQuantities(ctx context.Context, tx *sql.Tx, productIDs []int64) (map[int64]int, error) {
	if len(productIDs) == 0 {
		return map[int64]int{}, nil
	}
	rows, err := tx.QueryContext(ctx, `
		SELECT id, quantity
		FROM products
		WHERE id = ANY($1)
		ORDER BY id ASC
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stock := make(map[int64]int, len(productIDs))
	for rows.Next() {
		var id int64
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		stock[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stock, nil
}

func saleLineQuantities(ctx context.Context, tx *sql.Tx, saleID int64) (map[int64]int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT product_id, quantity FROM sale_lines WHERE sale_id = $1
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	qty := make(map[int64]int, 8)
	for rows.Next() {
		var productID int64
		var quantity int
		if err := rows.Scan(&productID, &quantity); err != nil {
			return nil, err
		}
		qty[productID] += quantity
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return qty, nil
}

func insertSaleLines(ctx context.Context, tx *sql.Tx, saleID int64, lines []domain.SaleLine) error {
	for _, line := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_lines (sale_id, product_id, quantity, subtotal)
			VALUES ($1, $2, $3, $4)
		`, saleID, line.ProductID, line.Quantity, line.Subtotal)
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("product %d: %w", line.ProductID, store.ErrNotFound)
			}
			return err
		}
	}
	return nil
}

func applyDeductions(ctx context.Context, tx *sql.Tx, plan map[int64]int) error {
	for _, productID := range sales.SortedProductIDs(plan) {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity - $1, updated_at = now() WHERE id = $2
		`, plan[productID], productID)
		if err != nil {
			return err
		}
	}
	return nil
}

func applyRestorations(ctx context.Context, tx *sql.Tx, qty map[int64]int) error {
	for _, productID := range sales.SortedProductIDs(qty) {
		_, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity + $1, updated_at = now() WHERE id = $2
		`, qty[productID], productID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) DashboardSummary(ctx context.Context, now time.Time) (domain.DashboardSummary, error) {
	summary := domain.DashboardSummary{Date: now.UTC().Format("2006-01-02")}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_owed), 0)
		FROM sales
		WHERE sale_date = $1 AND status <> $2
	`, nowDateUTC(now), domain.SaleStatusCancelled).Scan(&summary.SalesToday, &summary.RevenueToday)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_owed - total_paid), 0)
		FROM sales
		WHERE status IN ($1, $2)
	`, domain.SaleStatusPending, domain.SaleStatusPartial).Scan(&summary.PendingBalance)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE quantity <= $1),
			COUNT(*)
		FROM products
	`, domain.LowStockThreshold).Scan(&summary.LowStockCount, &summary.ProductCount)
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM customers`).Scan(&summary.CustomerCount)
	if err != nil {
		return domain.DashboardSummary{}, err
	}
	return summary, nil
}

func (s *Store) DailySales(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySalesPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sale_date, COUNT(*), COALESCE(SUM(total_owed), 0)
		FROM sales
		WHERE sale_date >= $1 AND sale_date <= $2 AND status <> $3
		GROUP BY sale_date
		ORDER BY sale_date ASC
	`, nowDateUTC(from), nowDateUTC(to), domain.SaleStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.DailySalesPoint, 0, 31)
	for rows.Next() {
		var day time.Time
		var point domain.DailySalesPoint
		if err := rows.Scan(&day, &point.Sales, &point.Revenue); err != nil {
			return nil, err
		}
		point.Date = day.UTC().Format("2006-01-02")
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) MonthlySales(ctx context.Context, months int) ([]domain.MonthlySalesPoint, error) {
	if months < 1 {
		months = 12
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(sale_date, 'YYYY-MM'), COUNT(*), COALESCE(SUM(total_owed), 0)
		FROM sales
		WHERE sale_date >= date_trunc('month', now()) - ($1 - 1) * INTERVAL '1 month'
		  AND status <> $2
		GROUP BY 1
		ORDER BY 1 ASC
	`, months, domain.SaleStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]domain.MonthlySalesPoint, 0, months)
	for rows.Next() {
		var point domain.MonthlySalesPoint
		if err := rows.Scan(&point.Month, &point.Sales, &point.Revenue); err != nil {
			return nil, err
		}
		points = append(points, point)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

func (s *Store) SalesByCategory(ctx context.Context, from time.Time, to time.Time) ([]domain.CategoryRevenue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, COALESCE(SUM(l.subtotal), 0)
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		JOIN products p ON p.id = l.product_id
		JOIN categories c ON c.id = p.category_id
		WHERE s.sale_date >= $1 AND s.sale_date <= $2 AND s.status <> $3
		GROUP BY c.id, c.name
		ORDER BY 3 DESC
	`, nowDateUTC(from), nowDateUTC(to), domain.SaleStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.CategoryRevenue, 0, 16)
	for rows.Next() {
		var cr domain.CategoryRevenue
		if err := rows.Scan(&cr.CategoryID, &cr.CategoryName, &cr.Revenue); err != nil {
			return nil, err
		}
		result = append(result, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, COALESCE(SUM(l.quantity), 0), COALESCE(SUM(l.subtotal), 0)
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		JOIN products p ON p.id = l.product_id
		WHERE s.status <> $1
		GROUP BY p.id, p.name
		ORDER BY 3 DESC
		LIMIT $2
	`, domain.SaleStatusCancelled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var tp domain.TopProduct
		if err := rows.Scan(&tp.ProductID, &tp.Name, &tp.UnitsSold, &tp.Revenue); err != nil {
			return nil, err
		}
		result = append(result, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UnitsSoldSince(ctx context.Context, since time.Time) (map[int64]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.product_id, COALESCE(SUM(l.quantity), 0)
		FROM sale_lines l
		JOIN sales s ON s.id = l.sale_id
		WHERE s.sale_date >= $1 AND s.status <> $2
		GROUP BY l.product_id
	`, nowDateUTC(since), domain.SaleStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	units := make(map[int64]int64, 32)
	for rows.Next() {
		var productID int64
		var sold int64
		if err := rows.Scan(&productID, &sold); err != nil {
			return nil, err
		}
		units[productID] = sold
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return units, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail), entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, COALESCE(entity_id, ''), COALESCE(detail, ''), created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at <= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidSale
	}
	if user.Role == "" {
		user.Role = domain.RoleClerk
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidSale
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func parseSaleDate(val string) (time.Time, error) {
	if val == "" {
		return nowDateUTC(time.Now()), nil
	}
	day, err := time.Parse("2006-01-02", val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse sale date: %w", err)
	}
	return day, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
