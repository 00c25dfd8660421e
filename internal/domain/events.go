package domain

import "time"

// Kafka topics carrying order lifecycle events.
const (
	TopicOrderReserved  = "order.reserved"
	TopicOrderFulfilled = "order.fulfilled"
	TopicOrderCancelled = "order.cancelled"
	TopicOrderExpired   = "order.expired"
)

type OrderEvent struct {
	OrderID    string      `json:"order_id"`
	UserID     string      `json:"user_id"`
	Status     OrderStatus `json:"status"`
	TotalCents int64       `json:"total_cents"`
	ItemCount  int         `json:"item_count"`
	Timestamp  time.Time   `json:"timestamp"`
}
