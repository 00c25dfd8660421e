package inventory

import "github.com/boutiqueops/checkout/internal/domain"

type locationStock struct {
	LocationID string
	OnHand     int
}

// planAllocations splits a debit of quantity units across the given location
// stocks, in the order they were provided (preferred location first, then
// descending on-hand). Fails with InsufficientStockError when the locations
// cannot cover the full quantity.
func planAllocations(stocks []locationStock, variantID string, quantity int) (domain.AllocationPlan, error) {
	remaining := quantity
	var plan domain.AllocationPlan

	for _, ls := range stocks {
		if remaining <= 0 {
			break
		}
		take := min(ls.OnHand, remaining)
		if take <= 0 {
			continue
		}
		plan = append(plan, domain.Allocation{LocationID: ls.LocationID, Quantity: take})
		remaining -= take
	}

	if remaining > 0 {
		return nil, &domain.InsufficientStockError{
			VariantID: variantID,
			Requested: quantity,
			Available: quantity - remaining,
		}
	}
	return plan, nil
}
