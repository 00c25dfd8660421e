package inventory

import (
	"errors"
	"testing"

	"github.com/boutiqueops/checkout/internal/domain"
)

func TestPlanAllocations(t *testing.T) {
	t.Run("single location covers the whole debit", func(t *testing.T) {
		plan, err := planAllocations([]locationStock{{"main", 10}}, "v1", 4)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(plan) != 1 || plan[0].LocationID != "main" || plan[0].Quantity != 4 {
			t.Errorf("unexpected plan: %+v", plan)
		}
	})

	t.Run("splits across locations in given order", func(t *testing.T) {
		stocks := []locationStock{{"preferred", 2}, {"big", 5}, {"small", 1}}
		plan, err := planAllocations(stocks, "v1", 6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(plan) != 2 {
			t.Fatalf("expected 2 allocations, got %d: %+v", len(plan), plan)
		}
		if plan[0].LocationID != "preferred" || plan[0].Quantity != 2 {
			t.Errorf("unexpected first allocation: %+v", plan[0])
		}
		if plan[1].LocationID != "big" || plan[1].Quantity != 4 {
			t.Errorf("unexpected second allocation: %+v", plan[1])
		}
		if plan.Total() != 6 {
			t.Errorf("expected total 6, got %d", plan.Total())
		}
	})

	t.Run("fails when locations cannot cover the quantity", func(t *testing.T) {
		_, err := planAllocations([]locationStock{{"a", 2}, {"b", 1}}, "v1", 5)
		var ise *domain.InsufficientStockError
		if !errors.As(err, &ise) {
			t.Fatalf("expected InsufficientStockError, got %v", err)
		}
		if ise.Requested != 5 || ise.Available != 3 {
			t.Errorf("unexpected error detail: %+v", ise)
		}
	})

	t.Run("zero locations", func(t *testing.T) {
		_, err := planAllocations(nil, "v1", 1)
		if !domain.IsInsufficientStock(err) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
	})
}
