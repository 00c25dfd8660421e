package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderStatusReserved, OrderStatusFulfilled, true},
		{OrderStatusReserved, OrderStatusCancelled, true},
		{OrderStatusReserved, OrderStatusExpired, true},
		{OrderStatusFulfilled, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusReserved, false},
		{OrderStatusExpired, OrderStatusFulfilled, false},
		{OrderStatusReserved, OrderStatusReserved, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if OrderStatusReserved.IsTerminal() {
		t.Error("reserved must not be terminal")
	}
	for _, status := range []OrderStatus{OrderStatusFulfilled, OrderStatusCancelled, OrderStatusExpired} {
		if !status.IsTerminal() {
			t.Errorf("%s must be terminal", status)
		}
	}
}

func TestIsInsufficientStock(t *testing.T) {
	base := &InsufficientStockError{VariantID: "v1", ProductName: "Remera Azul", Requested: 3, Available: 1}

	if !IsInsufficientStock(base) {
		t.Error("expected direct match")
	}
	if !IsInsufficientStock(fmt.Errorf("reserve: %w", base)) {
		t.Error("expected wrapped match")
	}
	if IsInsufficientStock(errors.New("something else")) {
		t.Error("unexpected match for unrelated error")
	}
}

func TestInsufficientStockError_Message(t *testing.T) {
	withName := &InsufficientStockError{VariantID: "v1", ProductName: "Remera Azul", Requested: 3, Available: 1}
	if got := withName.Error(); got != `insufficient stock for "Remera Azul": requested 3, available 1` {
		t.Errorf("unexpected message: %s", got)
	}

	// Falls back to the variant id when the product name is unknown.
	withoutName := &InsufficientStockError{VariantID: "v1", Requested: 2, Available: 0}
	if got := withoutName.Error(); got != `insufficient stock for "v1": requested 2, available 0` {
		t.Errorf("unexpected message: %s", got)
	}
}
