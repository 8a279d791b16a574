package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Customer struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type CustomerRequest struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type Product struct {
	ID           int64           `json:"id"`
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name,omitempty"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Quantity     int             `json:"quantity"`
	ImageURL     string          `json:"image_url,omitempty"`
}

type ProductRequest struct {
	CategoryID  int64           `json:"category_id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"image_url"`
}

// SaleLine is one product position on a sale as submitted by the caller.
type SaleLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// SaleLineDetail is a stored line joined with its product name for display.
type SaleLineDetail struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type SaleRequest struct {
	CustomerID int64           `json:"customer_id"`
	Date       string          `json:"date"`
	TotalOwed  decimal.Decimal `json:"total_owed"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
	Lines      []SaleLine      `json:"lines"`
}

type Sale struct {
	ID           int64            `json:"id"`
	CustomerID   int64            `json:"customer_id"`
	CustomerName string           `json:"customer_name,omitempty"`
	Date         time.Time        `json:"date"`
	TotalOwed    decimal.Decimal  `json:"total_owed"`
	TotalPaid    decimal.Decimal  `json:"total_paid"`
	Change       decimal.Decimal  `json:"change"`
	Status       string           `json:"status"`
	LineCount    int              `json:"line_count"`
	Lines        []SaleLineDetail `json:"lines,omitempty"`
}

// SaleListFilter narrows ListSales. Zero values mean "no filter".
type SaleListFilter struct {
	Status     string
	CustomerID int64
	Limit      int
}

type CancelResult struct {
	SaleID           int64  `json:"sale_id"`
	Status           string `json:"status"`
	AlreadyCancelled bool   `json:"already_cancelled"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type DashboardSummary struct {
	Date           string          `json:"date"`
	SalesToday     int64           `json:"sales_today"`
	RevenueToday   decimal.Decimal `json:"revenue_today"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
	LowStockCount  int64           `json:"low_stock_count"`
	ProductCount   int64           `json:"product_count"`
	CustomerCount  int64           `json:"customer_count"`
}

type DailySalesPoint struct {
	Date    string          `json:"date"`
	Sales   int64           `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
}

type MonthlySalesPoint struct {
	Month   string          `json:"month"`
	Sales   int64           `json:"sales"`
	Revenue decimal.Decimal `json:"revenue"`
}

type CategoryRevenue struct {
	CategoryID   int64           `json:"category_id"`
	CategoryName string          `json:"category_name"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type TopProduct struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	UnitsSold int64           `json:"units_sold"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type RestockSuggestion struct {
	ProductID    int64  `json:"product_id"`
	Name         string `json:"name"`
	CategoryName string `json:"category_name,omitempty"`
	CurrentStock int    `json:"current_stock"`
	SoldRecently int64  `json:"sold_recently"`
	SuggestedQty int    `json:"suggested_qty"`
}

type CatalogMessageRequest struct {
	CustomerID int64   `json:"customer_id"`
	CategoryID int64   `json:"category_id,omitempty"`
	ProductIDs []int64 `json:"product_ids,omitempty"`
}

type CatalogMessage struct {
	CustomerName string `json:"customer_name"`
	Phone        string `json:"phone"`
	Message      string `json:"message"`
	WhatsAppLink string `json:"whatsapp_link"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	SaleStatusPending   = "pending"
	SaleStatusPartial   = "partial"
	SaleStatusPaid      = "paid"
	SaleStatusCancelled = "cancelled"
)

const (
	RoleAdmin = "admin"
	RoleClerk = "clerk"
)

// LowStockThreshold marks products that the dashboard flags for restocking.
const LowStockThreshold = 5
