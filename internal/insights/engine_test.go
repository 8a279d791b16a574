package insights

import (
	"testing"

	"mitienda/backend/internal/domain"
)

func TestRestockSkipsHealthyStock(t *testing.T) {
	engine := NewEngine(5, 14)
	products := []domain.Product{
		{ID: 1, Name: "Arroz 1kg", Quantity: 40},
	}

	suggestions := engine.Restock(products, map[int64]int64{1: 10}, 30)
	if len(suggestions) != 0 {
		t.Fatalf("healthy stock must not be suggested, got %+v", suggestions)
	}
}

func TestRestockFlagsLowStock(t *testing.T) {
	engine := NewEngine(5, 14)
	products := []domain.Product{
		{ID: 1, Name: "Cloro 1L", Quantity: 3},
	}

	suggestions := engine.Restock(products, nil, 30)
	if len(suggestions) != 1 {
		t.Fatalf("expected one suggestion, got %+v", suggestions)
	}
	if suggestions[0].SuggestedQty < 1 {
		t.Fatalf("suggested quantity must be at least 1, got %d", suggestions[0].SuggestedQty)
	}
}

func TestRestockFlagsFastSellerBeforeThreshold(t *testing.T) {
	engine := NewEngine(5, 14)
	products := []domain.Product{
		{ID: 1, Name: "Refresco 2L", Quantity: 10},
	}

	// 60 units in 30 days burns 2 a day; 10 left will not cover 14 days.
	suggestions := engine.Restock(products, map[int64]int64{1: 60}, 30)
	if len(suggestions) != 1 {
		t.Fatalf("expected fast seller to be flagged, got %+v", suggestions)
	}
	if suggestions[0].SuggestedQty != 18 {
		t.Fatalf("expected suggestion to cover the window, got %d", suggestions[0].SuggestedQty)
	}
}

func TestRestockOrdersByUrgency(t *testing.T) {
	engine := NewEngine(5, 14)
	products := []domain.Product{
		{ID: 1, Name: "Jabón de barra", Quantity: 4},
		{ID: 2, Name: "Chocolate en barra", Quantity: 1},
	}
	unitsSold := map[int64]int64{1: 2, 2: 20}

	suggestions := engine.Restock(products, unitsSold, 30)
	if len(suggestions) != 2 {
		t.Fatalf("expected both products flagged, got %+v", suggestions)
	}
	if suggestions[0].ProductID != 2 {
		t.Fatalf("fastest seller relative to stock must come first, got %+v", suggestions)
	}
}
