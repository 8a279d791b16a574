// Package insights turns raw stock levels and recent sales history into
// restock suggestions for the dashboard. The engine is pure: callers feed
// it the product list and a units-sold map, it ranks what to reorder.
package insights

import (
	"math"
	"sort"

	"mitienda/backend/internal/domain"
)

type Engine struct {
	lowStockThreshold int
	coverDays         int
}

func NewEngine(lowStockThreshold int, coverDays int) *Engine {
	if lowStockThreshold < 1 {
		lowStockThreshold = domain.LowStockThreshold
	}
	if coverDays < 1 {
		coverDays = 14
	}

	return &Engine{
		lowStockThreshold: lowStockThreshold,
		coverDays:         coverDays,
	}
}

// Restock ranks products that need reordering. A product qualifies when its
// stock is at or below the low-stock threshold, or when recent demand would
// exhaust the remaining stock before the cover window ends. windowDays is
// the number of days the unitsSold map covers.
func (e *Engine) Restock(products []domain.Product, unitsSold map[int64]int64, windowDays int) []domain.RestockSuggestion {
	if windowDays < 1 {
		windowDays = 30
	}

	suggestions := make([]domain.RestockSuggestion, 0, 8)
	for _, p := range products {
		sold := unitsSold[p.ID]
		dailyRate := float64(sold) / float64(windowDays)
		coverNeed := int(math.Ceil(dailyRate * float64(e.coverDays)))

		lowStock := p.Quantity <= e.lowStockThreshold
		runningOut := coverNeed > p.Quantity
		if !lowStock && !runningOut {
			continue
		}

		suggested := coverNeed - p.Quantity
		if suggested < e.lowStockThreshold {
			// Even a slow mover gets topped up past the alert level.
			suggested = e.lowStockThreshold*2 - p.Quantity
		}
		if suggested < 1 {
			suggested = 1
		}

		suggestions = append(suggestions, domain.RestockSuggestion{
			ProductID:    p.ID,
			Name:         p.Name,
			CategoryName: p.CategoryName,
			CurrentStock: p.Quantity,
			SoldRecently: sold,
			SuggestedQty: suggested,
		})
	}

	// Most urgent first: fastest sellers relative to what is left.
	sort.Slice(suggestions, func(i, j int) bool {
		ui := urgency(suggestions[i])
		uj := urgency(suggestions[j])
		if ui != uj {
			return ui > uj
		}
		return suggestions[i].Name < suggestions[j].Name
	})
	return suggestions
}

func urgency(s domain.RestockSuggestion) float64 {
	return float64(s.SoldRecently) / float64(s.CurrentStock+1)
}
