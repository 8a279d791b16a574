// Package memory is an in-process Repository used for tests and for
// running the server without PostgreSQL. Sale mutations follow the same
// all-or-nothing semantics as the postgres store: every availability check
// happens against the live quantities under one lock, and nothing is
// applied until every check has passed.
package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/sales"
	"mitienda/backend/internal/store"
	"mitienda/backend/internal/xid"
)

type saleRecord struct {
	sale  domain.Sale
	lines []domain.SaleLineDetail
}

type Store struct {
	mu         sync.RWMutex
	categories map[int64]domain.Category
	customers  map[int64]domain.Customer
	products   map[int64]domain.Product
	salesByID  map[int64]*saleRecord
	auditLogs  []domain.AuditLog
	users      map[string]domain.UserAccount

	nextCategoryID int64
	nextCustomerID int64
	nextProductID  int64
	nextSaleID     int64
	nextLineID     int64
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD; unset
// variables fall back to dev defaults with a warning. The memory store is
// never the production path (PostgreSQL is used when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	clerkPwd := envOr("SEED_CLERK_PASSWORD", "clerk123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CLERK_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CLERK_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"clerk", clerkPwd, domain.RoleClerk},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func price(val string) decimal.Decimal {
	d, err := decimal.NewFromString(val)
	if err != nil {
		panic(fmt.Sprintf("memory seed: bad price %q", val))
	}
	return d
}

func NewSeeded() *Store {
	s := &Store{
		categories: map[int64]domain.Category{},
		customers:  map[int64]domain.Customer{},
		products:   map[int64]domain.Product{},
		salesByID:  map[int64]*saleRecord{},
		users:      seedUsers(),
	}

	for _, c := range []domain.Category{
		{Name: "Abarrotes", Description: "Pantry staples"},
		{Name: "Bebidas", Description: "Drinks and juices"},
		{Name: "Limpieza", Description: "Cleaning supplies"},
		{Name: "Dulces", Description: "Sweets and snacks"},
	} {
		s.nextCategoryID++
		c.ID = s.nextCategoryID
		s.categories[c.ID] = c
	}

	for _, c := range []domain.Customer{
		{Name: "María López", Phone: "5215512340001", Email: "maria@example.com", Address: "Av. Reforma 12"},
		{Name: "Juan Pérez", Phone: "5215512340002", Address: "Calle 5 de Mayo 33"},
		{Name: "Ana Torres", Phone: "5215512340003", Email: "ana@example.com"},
		{Name: "Público general"},
	} {
		s.nextCustomerID++
		c.ID = s.nextCustomerID
		s.customers[c.ID] = c
	}

	for _, p := range []domain.Product{
		{CategoryID: 1, Name: "Arroz 1kg", Price: price("32.50"), Quantity: 40},
		{CategoryID: 1, Name: "Frijol negro 1kg", Price: price("38.00"), Quantity: 35},
		{CategoryID: 1, Name: "Aceite 1L", Price: price("54.90"), Quantity: 20},
		{CategoryID: 2, Name: "Agua 600ml", Price: price("12.00"), Quantity: 60},
		{CategoryID: 2, Name: "Refresco 2L", Price: price("35.00"), Quantity: 24},
		{CategoryID: 2, Name: "Jugo de naranja 1L", Price: price("28.50"), Quantity: 18},
		{CategoryID: 3, Name: "Jabón de barra", Price: price("17.00"), Quantity: 30},
		{CategoryID: 3, Name: "Cloro 1L", Price: price("22.00"), Quantity: 15},
		{CategoryID: 4, Name: "Chocolate en barra", Price: price("15.50"), Quantity: 50},
		{CategoryID: 4, Name: "Galletas surtidas", Price: price("24.00"), Quantity: 45},
	} {
		s.nextProductID++
		p.ID = s.nextProductID
		if cat, ok := s.categories[p.CategoryID]; ok {
			p.CategoryName = cat.Name
		}
		s.products[p.ID] = p
	}

	return s
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (s *Store) CreateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.nextCategoryID++
	category.ID = s.nextCategoryID
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) UpdateCategory(_ context.Context, category domain.Category) (*domain.Category, error) {
	if category.ID <= 0 || strings.TrimSpace(category.Name) == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[category.ID]; !ok {
		return nil, store.ErrNotFound
	}
	for id, existing := range s.categories {
		if id != category.ID && strings.EqualFold(existing.Name, category.Name) {
			return nil, store.ErrDuplicate
		}
	}
	s.categories[category.ID] = category
	return &category, nil
}

func (s *Store) DeleteCategory(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) ListCustomers(_ context.Context, search string) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(search)
	out := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		if needle != "" &&
			!strings.Contains(strings.ToLower(c.Name), needle) &&
			!strings.Contains(c.Phone, search) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetCustomer(_ context.Context, id int64) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCustomerID++
	customer.ID = s.nextCustomerID
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) UpdateCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	if customer.ID <= 0 || strings.TrimSpace(customer.Name) == "" {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[customer.ID]; !ok {
		return nil, store.ErrNotFound
	}
	s.customers[customer.ID] = customer
	return &customer, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.customers, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, categoryID int64) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if categoryID > 0 && p.CategoryID != categoryID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CategoryName != out[j].CategoryName {
			return out[i].CategoryName < out[j].CategoryName
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.CategoryID <= 0 {
		return nil, store.ErrInvalidSale
	}
	if product.Price.Sign() < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cat, ok := s.categories[product.CategoryID]
	if !ok {
		return nil, fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
	}
	s.nextProductID++
	product.ID = s.nextProductID
	product.CategoryName = cat.Name
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID <= 0 || strings.TrimSpace(product.Name) == "" || product.CategoryID <= 0 {
		return nil, store.ErrInvalidSale
	}
	if product.Price.Sign() < 0 || product.Quantity < 0 {
		return nil, store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; !ok {
		return nil, store.ErrNotFound
	}
	cat, ok := s.categories[product.CategoryID]
	if !ok {
		return nil, fmt.Errorf("category %d: %w", product.CategoryID, store.ErrNotFound)
	}
	product.CategoryName = cat.Name
	s.products[product.ID] = product
	return &product, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.salesByID))
	for _, rec := range s.salesByID {
		sale := rec.sale
		if filter.Status != "" && sale.Status != filter.Status {
			continue
		}
		if filter.CustomerID > 0 && sale.CustomerID != filter.CustomerID {
			continue
		}
		sale.CustomerName = s.customers[sale.CustomerID].Name
		sale.LineCount = len(rec.lines)
		sale.Lines = nil
		out = append(out, sale)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.saleView(rec), nil
}

func (s *Store) CreateSale(_ context.Context, req domain.SaleRequest) (*domain.Sale, error) {
	if violations := sales.Validate(&req); len(violations) > 0 {
		return nil, &sales.ValidationError{Violations: violations}
	}
	saleDate, err := parseSaleDate(req.Date)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[req.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %d: %w", req.CustomerID, store.ErrNotFound)
	}

	need := sales.LineQuantities(req.Lines)
	if err := s.checkAvailability(need); err != nil {
		return nil, err
	}

	s.nextSaleID++
	sale := domain.Sale{
		ID:         s.nextSaleID,
		CustomerID: req.CustomerID,
		Date:       saleDate,
		TotalOwed:  req.TotalOwed,
		TotalPaid:  req.TotalPaid,
		Change:     sales.ChangeDue(req.TotalOwed, req.TotalPaid),
		Status:     sales.DeriveStatus(req.TotalOwed, req.TotalPaid),
	}
	rec := &saleRecord{sale: sale, lines: s.buildLines(req.Lines)}
	s.salesByID[sale.ID] = rec
	s.applyDeductions(need)

	return s.saleView(rec), nil
}

func (s *Store) UpdateSale(_ context.Context, id int64, req domain.SaleRequest) (*domain.Sale, error) {
	if violations := sales.Validate(&req); len(violations) > 0 {
		return nil, &sales.ValidationError{Violations: violations}
	}
	saleDate, err := parseSaleDate(req.Date)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if _, ok := s.customers[req.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %d: %w", req.CustomerID, store.ErrNotFound)
	}

	newStatus := sales.DeriveStatus(req.TotalOwed, req.TotalPaid)
	reactivating := rec.sale.Status == domain.SaleStatusCancelled && newStatus != domain.SaleStatusCancelled

	oldQty := map[int64]int{}
	for _, line := range rec.lines {
		oldQty[line.ProductID] += line.Quantity
	}
	newQty := sales.LineQuantities(req.Lines)
	for _, productID := range sales.SortedProductIDs(newQty) {
		if _, ok := s.products[productID]; !ok {
			return nil, fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
	}
	plan := sales.DeductionPlan(oldQty, newQty, reactivating)
	if err := s.checkAvailability(plan); err != nil {
		return nil, err
	}

	rec.sale.CustomerID = req.CustomerID
	rec.sale.Date = saleDate
	rec.sale.TotalOwed = req.TotalOwed
	rec.sale.TotalPaid = req.TotalPaid
	rec.sale.Change = sales.ChangeDue(req.TotalOwed, req.TotalPaid)
	rec.sale.Status = newStatus
	rec.lines = s.buildLines(req.Lines)
	s.applyDeductions(plan)

	return s.saleView(rec), nil
}

func (s *Store) CancelSale(_ context.Context, id int64) (*domain.CancelResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.salesByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if rec.sale.Status == domain.SaleStatusCancelled {
		return &domain.CancelResult{SaleID: id, Status: rec.sale.Status, AlreadyCancelled: true}, nil
	}

	for _, line := range rec.lines {
		if p, ok := s.products[line.ProductID]; ok {
			p.Quantity += line.Quantity
			s.products[line.ProductID] = p
		}
	}
	rec.sale.Status = domain.SaleStatusCancelled
	return &domain.CancelResult{SaleID: id, Status: domain.SaleStatusCancelled}, nil
}

func (s *Store) DeleteSale(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.salesByID[id]
	if !ok {
		return store.ErrNotFound
	}
	// A cancelled sale already gave its quantities back.
	if rec.sale.Status != domain.SaleStatusCancelled {
		for _, line := range rec.lines {
			if p, ok := s.products[line.ProductID]; ok {
				p.Quantity += line.Quantity
				s.products[line.ProductID] = p
			}
		}
	}
	delete(s.salesByID, id)
	return nil
}

// checkAvailability verifies every planned deduction before any is applied.
func (s *Store) checkAvailability(plan map[int64]int) error {
	for _, productID := range sales.SortedProductIDs(plan) {
		p, ok := s.products[productID]
		if !ok {
			return fmt.Errorf("product %d: %w", productID, store.ErrNotFound)
		}
		if p.Quantity < plan[productID] {
			return &store.InsufficientStockError{ProductID: productID, Available: p.Quantity, Requested: plan[productID]}
		}
	}
	return nil
}

func (s *Store) applyDeductions(plan map[int64]int) {
	for productID, qty := range plan {
		p := s.products[productID]
		p.Quantity -= qty
		s.products[productID] = p
	}
}

func (s *Store) buildLines(lines []domain.SaleLine) []domain.SaleLineDetail {
	out := make([]domain.SaleLineDetail, 0, len(lines))
	for _, line := range lines {
		s.nextLineID++
		out = append(out, domain.SaleLineDetail{
			ID:        s.nextLineID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal,
		})
	}
	return out
}

// saleView builds the joined response shape. Caller holds the lock.
func (s *Store) saleView(rec *saleRecord) *domain.Sale {
	sale := rec.sale
	sale.CustomerName = s.customers[sale.CustomerID].Name
	sale.Lines = make([]domain.SaleLineDetail, len(rec.lines))
	copy(sale.Lines, rec.lines)
	for i := range sale.Lines {
		sale.Lines[i].ProductName = s.products[sale.Lines[i].ProductID].Name
	}
	sale.LineCount = len(sale.Lines)
	return &sale
}

func (s *Store) DashboardSummary(_ context.Context, now time.Time) (domain.DashboardSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	today := nowDateUTC(now)
	summary := domain.DashboardSummary{
		Date:           today.Format("2006-01-02"),
		RevenueToday:   decimal.Zero,
		PendingBalance: decimal.Zero,
	}
	for _, rec := range s.salesByID {
		if rec.sale.Status == domain.SaleStatusPending || rec.sale.Status == domain.SaleStatusPartial {
			summary.PendingBalance = summary.PendingBalance.Add(rec.sale.TotalOwed.Sub(rec.sale.TotalPaid))
		}
		if rec.sale.Status == domain.SaleStatusCancelled {
			continue
		}
		if nowDateUTC(rec.sale.Date).Equal(today) {
			summary.SalesToday++
			summary.RevenueToday = summary.RevenueToday.Add(rec.sale.TotalOwed)
		}
	}
	for _, p := range s.products {
		summary.ProductCount++
		if p.Quantity <= domain.LowStockThreshold {
			summary.LowStockCount++
		}
	}
	summary.CustomerCount = int64(len(s.customers))
	return summary, nil
}

func (s *Store) DailySales(_ context.Context, from time.Time, to time.Time) ([]domain.DailySalesPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := map[string]*domain.DailySalesPoint{}
	for _, rec := range s.salesByID {
		if rec.sale.Status == domain.SaleStatusCancelled {
			continue
		}
		day := nowDateUTC(rec.sale.Date)
		if day.Before(nowDateUTC(from)) || day.After(nowDateUTC(to)) {
			continue
		}
		key := day.Format("2006-01-02")
		point, ok := byDay[key]
		if !ok {
			point = &domain.DailySalesPoint{Date: key, Revenue: decimal.Zero}
			byDay[key] = point
		}
		point.Sales++
		point.Revenue = point.Revenue.Add(rec.sale.TotalOwed)
	}

	out := make([]domain.DailySalesPoint, 0, len(byDay))
	for _, point := range byDay {
		out = append(out, *point)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (s *Store) MonthlySales(_ context.Context, months int) ([]domain.MonthlySalesPoint, error) {
	if months < 1 {
		months = 12
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := time.Now().UTC().AddDate(0, -(months - 1), 0)
	cutoff = time.Date(cutoff.Year(), cutoff.Month(), 1, 0, 0, 0, 0, time.UTC)
	byMonth := map[string]*domain.MonthlySalesPoint{}
	for _, rec := range s.salesByID {
		if rec.sale.Status == domain.SaleStatusCancelled || rec.sale.Date.Before(cutoff) {
			continue
		}
		key := rec.sale.Date.UTC().Format("2006-01")
		point, ok := byMonth[key]
		if !ok {
			point = &domain.MonthlySalesPoint{Month: key, Revenue: decimal.Zero}
			byMonth[key] = point
		}
		point.Sales++
		point.Revenue = point.Revenue.Add(rec.sale.TotalOwed)
	}

	out := make([]domain.MonthlySalesPoint, 0, len(byMonth))
	for _, point := range byMonth {
		out = append(out, *point)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (s *Store) SalesByCategory(_ context.Context, from time.Time, to time.Time) ([]domain.CategoryRevenue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCategory := map[int64]*domain.CategoryRevenue{}
	for _, rec := range s.salesByID {
		if rec.sale.Status == domain.SaleStatusCancelled {
			continue
		}
		day := nowDateUTC(rec.sale.Date)
		if day.Before(nowDateUTC(from)) || day.After(nowDateUTC(to)) {
			continue
		}
		for _, line := range rec.lines {
			p, ok := s.products[line.ProductID]
			if !ok {
				continue
			}
			cr, ok := byCategory[p.CategoryID]
			if !ok {
				cr = &domain.CategoryRevenue{
					CategoryID:   p.CategoryID,
					CategoryName: s.categories[p.CategoryID].Name,
					Revenue:      decimal.Zero,
				}
				byCategory[p.CategoryID] = cr
			}
			cr.Revenue = cr.Revenue.Add(line.Subtotal)
		}
	}

	out := make([]domain.CategoryRevenue, 0, len(byCategory))
	for _, cr := range byCategory {
		out = append(out, *cr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Revenue.GreaterThan(out[j].Revenue) })
	return out, nil
}

func (s *Store) TopProducts(_ context.Context, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := map[int64]*domain.TopProduct{}
	for _, rec := range s.salesByID {
		if rec.sale.Status == domain.SaleStatusCancelled {
			continue
		}
		for _, line := range rec.lines {
			tp, ok := byProduct[line.ProductID]
			if !ok {
				tp = &domain.TopProduct{
					ProductID: line.ProductID,
					Name:      s.products[line.ProductID].Name,
					Revenue:   decimal.Zero,
				}
				byProduct[line.ProductID] = tp
			}
			tp.UnitsSold += int64(line.Quantity)
			tp.Revenue = tp.Revenue.Add(line.Subtotal)
		}
	}

	out := make([]domain.TopProduct, 0, len(byProduct))
	for _, tp := range byProduct {
		out = append(out, *tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitsSold > out[j].UnitsSold })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) UnitsSoldSince(_ context.Context, since time.Time) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	units := map[int64]int64{}
	for _, rec := range s.salesByID {
		if rec.sale.Status == domain.SaleStatusCancelled || nowDateUTC(rec.sale.Date).Before(nowDateUTC(since)) {
			continue
		}
		for _, line := range rec.lines {
			units[line.ProductID] += int64(line.Quantity)
		}
	}
	return units, nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AuditLog, 0, limit)
	for i := len(s.auditLogs) - 1; i >= 0 && len(out) < limit; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || entry.CreatedAt.After(to) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return store.ErrDuplicate
	}
	s.users[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidSale
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[username] = user
	return nil
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

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}
