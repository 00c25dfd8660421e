package domain

import "time"

type OrderStatus string

const (
	OrderStatusReserved  OrderStatus = "reserved"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// IsTerminal reports whether no further transition may leave the status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFulfilled || s == OrderStatusCancelled || s == OrderStatusExpired
}

// CanTransition reports whether the state machine allows from -> to.
// The only legal transitions are reserved -> fulfilled|cancelled|expired.
func CanTransition(from, to OrderStatus) bool {
	if from != OrderStatusReserved {
		return false
	}
	switch to {
	case OrderStatusFulfilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

type DeliveryType string

const (
	DeliveryShipping DeliveryType = "envio"
	DeliveryPickup   DeliveryType = "retiro"
)

type OrderItem struct {
	ID             string `json:"id"`
	VariantID      string `json:"variant_id"`
	ProductName    string `json:"product_name"`
	ProductCode    string `json:"product_code,omitempty"`
	SizeName       string `json:"size_name,omitempty"`
	ColorName      string `json:"color_name,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type Order struct {
	ID                    string          `json:"id"`
	UserID                string          `json:"user_id"`
	Status                OrderStatus     `json:"status"`
	FulfillmentNote       string          `json:"fulfillment_note,omitempty"`
	Items                 []OrderItem     `json:"items"`
	SubtotalCents         int64           `json:"subtotal_cents"`
	ShippingCents         int64           `json:"shipping_cents"`
	TotalCents            int64           `json:"total_cents"`
	DeliveryType          DeliveryType    `json:"delivery_type"`
	ShippingAddress       string          `json:"shipping_address,omitempty"`
	PreferredLocation     string          `json:"preferred_location,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	PaymentReference      string          `json:"payment_reference,omitempty"`
	PaymentMethod         string          `json:"payment_method,omitempty"`
	ReservationExpiresAt  *time.Time      `json:"reservation_expires_at,omitempty"`
	Tracking              []TrackingEntry `json:"tracking,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// TrackingEntry is an append-only customer-facing status log line.
type TrackingEntry struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Status      string    `json:"status"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
