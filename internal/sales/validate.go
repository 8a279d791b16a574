// Package sales holds the pure pieces of the sale lifecycle: request
// validation, payment-status derivation, and the stock-delta arithmetic
// shared by every store implementation. Nothing in this package touches
// storage or performs I/O.
package sales

import (
	"fmt"
	"strings"
	"time"

	"mitienda/backend/internal/domain"
)

// ValidationError carries every violation found in a sale request so the
// caller can report all of them at once.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "invalid sale: " + strings.Join(e.Violations, "; ")
}

// Validate checks the shape of a sale request and accumulates all
// violations instead of stopping at the first. Line violations are tagged
// with their 1-based position. The request is never mutated. A nil return
// means the request is valid.
func Validate(req *domain.SaleRequest) []string {
	var violations []string

	if req.CustomerID <= 0 {
		violations = append(violations, "a valid customer must be selected")
	}
	if req.Date != "" {
		if _, err := time.Parse("2006-01-02", req.Date); err != nil {
			violations = append(violations, "date must be in YYYY-MM-DD format")
		}
	}
	if !req.TotalOwed.IsPositive() {
		violations = append(violations, "total owed must be greater than 0")
	}
	if req.TotalPaid.IsNegative() {
		violations = append(violations, "total paid cannot be negative")
	}
	if len(req.Lines) == 0 {
		violations = append(violations, "at least one product line is required")
	}
	for i, line := range req.Lines {
		pos := i + 1
		if line.ProductID <= 0 {
			violations = append(violations, fmt.Sprintf("line %d: a valid product must be selected", pos))
		}
		if line.Quantity <= 0 {
			violations = append(violations, fmt.Sprintf("line %d: quantity must be greater than 0", pos))
		}
		if !line.Subtotal.IsPositive() {
			violations = append(violations, fmt.Sprintf("line %d: subtotal must be greater than 0", pos))
		}
	}
	return violations
}
