package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mitienda/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidSale       = errors.New("invalid sale")
	ErrDuplicate         = errors.New("already exists")
)

// InsufficientStockError reports which product could not cover a deduction.
// It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d", e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

type Repository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error

	ListCustomers(ctx context.Context, search string) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	UpdateCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id int64) error

	ListProducts(ctx context.Context, categoryID int64) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListSales(ctx context.Context, filter domain.SaleListFilter) ([]domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	CreateSale(ctx context.Context, req domain.SaleRequest) (*domain.Sale, error)
	UpdateSale(ctx context.Context, id int64, req domain.SaleRequest) (*domain.Sale, error)
	CancelSale(ctx context.Context, id int64) (*domain.CancelResult, error)
	DeleteSale(ctx context.Context, id int64) error

	DashboardSummary(ctx context.Context, now time.Time) (domain.DashboardSummary, error)
	DailySales(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySalesPoint, error)
	MonthlySales(ctx context.Context, months int) ([]domain.MonthlySalesPoint, error)
	SalesByCategory(ctx context.Context, from time.Time, to time.Time) ([]domain.CategoryRevenue, error)
	TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error)
	UnitsSoldSince(ctx context.Context, since time.Time) (map[int64]int64, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
