package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"mitienda/backend/internal/cache"
	"mitienda/backend/internal/domain"
	"mitienda/backend/internal/insights"
	"mitienda/backend/internal/store"
	"mitienda/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const dashboardCacheKey = "mitienda:dashboard:summary"

// restockWindowDays is how far back the restock engine looks at sales.
const restockWindowDays = 30

type Service struct {
	repo      store.Repository
	insights  *insights.Engine
	dashboard cache.DashboardCache
	dashTTL   time.Duration
}

func New(repo store.Repository, engine *insights.Engine, dashboard cache.DashboardCache, dashTTL time.Duration) *Service {
	if engine == nil {
		engine = insights.NewEngine(domain.LowStockThreshold, 14)
	}
	if dashboard == nil {
		dashboard = cache.NoopDashboardCache{}
	}
	if dashTTL <= 0 {
		dashTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		insights:  engine,
		dashboard: dashboard,
		dashTTL:   dashTTL,
	}
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	return s.repo.GetCategory(ctx, id)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryRequest) (domain.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Category{}, store.ErrInvalidSale
	}

	created, err := s.repo.CreateCategory(ctx, domain.Category{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_create", "category", fmt.Sprintf("%d", created.ID), created.Name)
	return *created, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id int64, req domain.CategoryRequest) (domain.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	if id <= 0 || req.Name == "" {
		return domain.Category{}, store.ErrInvalidSale
	}

	updated, err := s.repo.UpdateCategory(ctx, domain.Category{
		ID:          id,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		return domain.Category{}, err
	}

	s.logAudit(ctx, "category_update", "category", fmt.Sprintf("%d", id), updated.Name)
	return *updated, nil
}

func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "category_delete", "category", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListCustomers(ctx context.Context, search string) ([]domain.Customer, error) {
	return s.repo.ListCustomers(ctx, strings.TrimSpace(search))
}

func (s *Service) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return domain.Customer{}, store.ErrInvalidSale
	}

	created, err := s.repo.CreateCustomer(ctx, domain.Customer{
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_create", "customer", fmt.Sprintf("%d", created.ID), created.Name)
	return *created, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id int64, req domain.CustomerRequest) (domain.Customer, error) {
	req.Name = strings.TrimSpace(req.Name)
	if id <= 0 || req.Name == "" {
		return domain.Customer{}, store.ErrInvalidSale
	}

	updated, err := s.repo.UpdateCustomer(ctx, domain.Customer{
		ID:      id,
		Name:    req.Name,
		Phone:   strings.TrimSpace(req.Phone),
		Email:   strings.TrimSpace(req.Email),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Customer{}, err
	}

	s.logAudit(ctx, "customer_update", "customer", fmt.Sprintf("%d", id), updated.Name)
	return *updated, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "customer_delete", "customer", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, categoryID)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.CategoryID <= 0 || req.Price.Sign() < 0 || req.Quantity < 0 {
		return domain.Product{}, store.ErrInvalidSale
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Quantity:    req.Quantity,
		ImageURL:    strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", fmt.Sprintf("%d", created.ID), fmt.Sprintf("name=%s,price=%s,stock=%d", created.Name, created.Price, created.Quantity))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	if id <= 0 || req.Name == "" || req.CategoryID <= 0 || req.Price.Sign() < 0 || req.Quantity < 0 {
		return domain.Product{}, store.ErrInvalidSale
	}

	updated, err := s.repo.UpdateProduct(ctx, domain.Product{
		ID:          id,
		CategoryID:  req.CategoryID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Quantity:    req.Quantity,
		ImageURL:    strings.TrimSpace(req.ImageURL),
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", fmt.Sprintf("%d", id), fmt.Sprintf("name=%s,price=%s,stock=%d", updated.Name, updated.Price, updated.Quantity))
	return *updated, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", "product", fmt.Sprintf("%d", id), "")
	return nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return s.repo.GetSale(ctx, id)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	created, err := s.repo.CreateSale(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_create", "sale", fmt.Sprintf("%d", created.ID), fmt.Sprintf("customer=%d,owed=%s,paid=%s,status=%s", created.CustomerID, created.TotalOwed, created.TotalPaid, created.Status))
	s.invalidateDashboard(ctx)
	return *created, nil
}

func (s *Service) UpdateSale(ctx context.Context, id int64, req domain.SaleRequest) (domain.Sale, error) {
	updated, err := s.repo.UpdateSale(ctx, id, req)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_update", "sale", fmt.Sprintf("%d", id), fmt.Sprintf("customer=%d,owed=%s,paid=%s,status=%s", updated.CustomerID, updated.TotalOwed, updated.TotalPaid, updated.Status))
	s.invalidateDashboard(ctx)
	return *updated, nil
}

func (s *Service) CancelSale(ctx context.Context, id int64) (domain.CancelResult, error) {
	result, err := s.repo.CancelSale(ctx, id)
	if err != nil {
		return domain.CancelResult{}, err
	}

	if !result.AlreadyCancelled {
		s.logAudit(ctx, "sale_cancel", "sale", fmt.Sprintf("%d", id), "")
		s.invalidateDashboard(ctx)
	}
	return *result, nil
}

func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteSale(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "sale_delete", "sale", fmt.Sprintf("%d", id), "")
	s.invalidateDashboard(ctx)
	return nil
}

func (s *Service) DashboardSummary(ctx context.Context) (domain.DashboardSummary, error) {
	if cached, ok, err := s.dashboard.Get(ctx, dashboardCacheKey); err == nil && ok {
		return *cached, nil
	} else if err != nil {
		log.Printf("[service] WARN: dashboard cache read failed: %v", err)
	}

	summary, err := s.repo.DashboardSummary(ctx, time.Now().UTC())
	if err != nil {
		return domain.DashboardSummary{}, err
	}

	if err := s.dashboard.Set(ctx, dashboardCacheKey, &summary, s.dashTTL); err != nil {
		log.Printf("[service] WARN: dashboard cache write failed: %v", err)
	}
	return summary, nil
}

func (s *Service) DailySales(ctx context.Context, days int) ([]domain.DailySalesPoint, error) {
	if days < 1 || days > 366 {
		days = 30
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -(days - 1))
	return s.repo.DailySales(ctx, from, to)
}

func (s *Service) MonthlySales(ctx context.Context, months int) ([]domain.MonthlySalesPoint, error) {
	if months < 1 || months > 36 {
		months = 12
	}
	return s.repo.MonthlySales(ctx, months)
}

func (s *Service) SalesByCategory(ctx context.Context, days int) ([]domain.CategoryRevenue, error) {
	if days < 1 || days > 366 {
		days = 30
	}
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -(days - 1))
	return s.repo.SalesByCategory(ctx, from, to)
}

func (s *Service) TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	return s.repo.TopProducts(ctx, limit)
}

func (s *Service) RestockSuggestions(ctx context.Context) ([]domain.RestockSuggestion, error) {
	products, err := s.repo.ListProducts(ctx, 0)
	if err != nil {
		return nil, err
	}
	since := time.Now().UTC().AddDate(0, 0, -restockWindowDays)
	unitsSold, err := s.repo.UnitsSoldSince(ctx, since)
	if err != nil {
		return nil, err
	}
	return s.insights.Restock(products, unitsSold, restockWindowDays), nil
}

// BuildCatalogMessage renders a WhatsApp-ready product list for one
// customer, plus a wa.me link when the customer has a phone on file.
// Delivery is on the caller; this only builds the text.
func (s *Service) BuildCatalogMessage(ctx context.Context, req domain.CatalogMessageRequest) (domain.CatalogMessage, error) {
	customer, err := s.repo.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return domain.CatalogMessage{}, fmt.Errorf("load customer: %w", err)
	}

	products, err := s.repo.ListProducts(ctx, req.CategoryID)
	if err != nil {
		return domain.CatalogMessage{}, err
	}
	if len(req.ProductIDs) > 0 {
		wanted := make(map[int64]struct{}, len(req.ProductIDs))
		for _, id := range req.ProductIDs {
			wanted[id] = struct{}{}
		}
		filtered := products[:0]
		for _, p := range products {
			if _, ok := wanted[p.ID]; ok {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}
	if len(products) == 0 {
		return domain.CatalogMessage{}, fmt.Errorf("catalog: %w", store.ErrNotFound)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "¡Hola %s! Este es nuestro catálogo:\n\n", customer.Name)
	lastCategory := ""
	for _, p := range products {
		if p.Quantity <= 0 {
			continue
		}
		if p.CategoryName != lastCategory {
			fmt.Fprintf(&b, "*%s*\n", p.CategoryName)
			lastCategory = p.CategoryName
		}
		fmt.Fprintf(&b, "- %s: $%s\n", p.Name, p.Price.StringFixed(2))
	}
	b.WriteString("\nPídenos por este medio y te lo llevamos.")
	message := b.String()

	result := domain.CatalogMessage{
		CustomerName: customer.Name,
		Phone:        customer.Phone,
		Message:      message,
	}
	if digits := digitsOnly(customer.Phone); digits != "" {
		result.WhatsAppLink = "https://wa.me/" + digits + "?text=" + url.QueryEscape(message)
	}

	s.logAudit(ctx, "catalog_share", "customer", fmt.Sprintf("%d", customer.ID), fmt.Sprintf("products=%d", len(products)))
	return result, nil
}

func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}

	day := time.Now().UTC()
	if strings.TrimSpace(date) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(date))
		if err != nil {
			return nil, fmt.Errorf("parse date: %w", err)
		}
		day = parsed
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24*time.Hour - time.Nanosecond)
	return s.repo.ListAuditLogs(ctx, from, to, limit)
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return errors.New("admin role required")
	}
	return nil
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	if err := s.dashboard.Invalidate(ctx, dashboardCacheKey); err != nil {
		log.Printf("[service] WARN: dashboard cache invalidation failed: %v", err)
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
		CreatedAt:     time.Now().UTC(),
	}); err != nil {
		log.Printf("[audit] WARN: failed to write audit log action=%s entity=%s/%s: %v", action, entityType, entityID, err)
	}
}

func digitsOnly(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
