package domain

// StockLevel reports availability for one variant: physical on-hand summed
// across locations, quantity held by active unexpired reservations, and the
// difference a new checkout can actually draw on.
type StockLevel struct {
	VariantID string `json:"variant_id"`
	Physical  int    `json:"physical"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
}

// Allocation is one location's share of a ledger debit.
type Allocation struct {
	LocationID string `json:"location_id"`
	Quantity   int    `json:"quantity"`
}

// AllocationPlan is the per-location breakdown of a debit, kept for audit.
type AllocationPlan []Allocation

func (p AllocationPlan) Total() int {
	total := 0
	for _, a := range p {
		total += a.Quantity
	}
	return total
}
