package domain

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation is a time-bounded hold of inventory against one pending order.
// Rows are never deleted; status transitions keep the audit trail.
type Reservation struct {
	ID        string            `json:"id"`
	OrderID   string            `json:"order_id"`
	VariantID string            `json:"variant_id"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}
