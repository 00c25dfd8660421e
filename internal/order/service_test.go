package order

import (
	"errors"
	"testing"

	"github.com/boutiqueops/checkout/internal/cart"
	"github.com/boutiqueops/checkout/internal/domain"
)

func TestValidateDelivery(t *testing.T) {
	t.Run("pickup always ships free", func(t *testing.T) {
		got, err := validateDelivery(domain.DeliveryPickup, 50000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 0 {
			t.Errorf("expected shipping 0 for pickup, got %d", got)
		}
	})

	t.Run("shipping keeps the quoted cost", func(t *testing.T) {
		got, err := validateDelivery(domain.DeliveryShipping, 75000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 75000 {
			t.Errorf("expected shipping 75000, got %d", got)
		}
	})

	t.Run("rejects negative shipping", func(t *testing.T) {
		_, err := validateDelivery(domain.DeliveryShipping, -1)
		if !errors.Is(err, domain.ErrInvalidDeliveryOption) {
			t.Errorf("expected ErrInvalidDeliveryOption, got %v", err)
		}
	})

	t.Run("rejects unknown delivery type", func(t *testing.T) {
		_, err := validateDelivery("drone", 0)
		if !errors.Is(err, domain.ErrInvalidDeliveryOption) {
			t.Errorf("expected ErrInvalidDeliveryOption, got %v", err)
		}
	})
}

func TestBuildOrder(t *testing.T) {
	items := []cart.Item{
		{VariantID: "v1", ProductName: "Remera Azul", Quantity: 2, UnitPriceCents: 150000},
		{VariantID: "v2", ProductName: "Jean Negro", Quantity: 1, UnitPriceCents: 400000},
	}

	order := buildOrder("user-1", items, 50000, CheckoutRequest{
		DeliveryType:    domain.DeliveryShipping,
		ShippingAddress: "Calle Falsa 123",
		PaymentMethod:   "transferencia",
	})

	if order.ID == "" {
		t.Fatal("expected order ID to be set")
	}
	if order.Status != domain.OrderStatusReserved {
		t.Errorf("expected status %s, got %s", domain.OrderStatusReserved, order.Status)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	if order.Items[0].SubtotalCents != 300000 {
		t.Errorf("expected line subtotal 300000, got %d", order.Items[0].SubtotalCents)
	}
	if order.SubtotalCents != 700000 {
		t.Errorf("expected subtotal 700000, got %d", order.SubtotalCents)
	}
	if order.TotalCents != 750000 {
		t.Errorf("expected total 750000, got %d", order.TotalCents)
	}
}

func TestCancelReason(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"user_cancelled", "Pedido cancelado por el cliente"},
		{"payment_failed", "Pedido cancelado por fallo en el pago"},
		{"expired", "Pedido cancelado automáticamente por expiración de reserva"},
		{"anything-else", "Pedido cancelado"},
	}
	for _, tt := range tests {
		if got := cancelReason(tt.reason); got != tt.want {
			t.Errorf("cancelReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
