package payment

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/boutiqueops/checkout/internal/cart"
	"github.com/boutiqueops/checkout/internal/domain"
	"github.com/boutiqueops/checkout/internal/inventory"
	"github.com/boutiqueops/checkout/internal/order"
	"github.com/boutiqueops/checkout/internal/reservation"
	"github.com/boutiqueops/checkout/internal/telemetry"
)

// Confirmer is the single idempotent choke point that finalizes payment for
// an order. It is safe to call concurrently from the user-facing confirm
// endpoint, the gateway webhook and manual reconciliation: the exclusive lock
// on the order row serializes them, and a second call on a fulfilled order is
// a success no-op that never re-debits stock.
type Confirmer struct {
	orders  *order.Repository
	store   *reservation.Store
	ledger  *inventory.Ledger
	carts   cart.Provider
	events  order.EventPublisher
	metrics *telemetry.Metrics
	logger  *slog.Logger

	// AllowLateConfirmation honors a payment arriving after the reservation
	// TTL as long as physical stock still covers every line. Off by default:
	// the expired order is rejected and the money becomes a manual-review
	// case.
	AllowLateConfirmation bool
}

func NewConfirmer(orders *order.Repository, store *reservation.Store, ledger *inventory.Ledger, carts cart.Provider, events order.EventPublisher, metrics *telemetry.Metrics, logger *slog.Logger) *Confirmer {
	return &Confirmer{
		orders:  orders,
		store:   store,
		ledger:  ledger,
		carts:   carts,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}
}

// Confirm transitions a reserved order to fulfilled: ledger debit per active
// reservation, reservations confirmed, cart cleared and tracking appended,
// all in one transaction. The returned order reflects the post-confirmation
// state.
func (c *Confirmer) Confirm(ctx context.Context, orderID, paymentRef, method string) (*domain.Order, error) {
	tx, err := c.orders.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ord, err := c.orders.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if ord == nil {
		return nil, domain.ErrOrderNotFound
	}

	if ord.Status == domain.OrderStatusFulfilled {
		c.logger.Info("order already fulfilled, skipping", "order_id", orderID)
		return c.orders.GetByID(ctx, orderID)
	}
	if ord.Status != domain.OrderStatusReserved {
		return nil, domain.ErrOrderNotConfirmable
	}

	late := ord.ReservationExpiresAt != nil && time.Now().After(*ord.ReservationExpiresAt)
	if late && !c.AllowLateConfirmation {
		if err := c.expireInPlace(ctx, tx, orderID); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		if c.metrics != nil {
			c.metrics.OrdersExpired.Add(ctx, 1)
		}
		c.logger.Warn("order expired before payment confirmation", "order_id", orderID, "payment_reference", paymentRef)
		return nil, domain.ErrReservationExpired
	}
	if late {
		c.logger.Warn("honoring late payment confirmation", "order_id", orderID, "expired_at", *ord.ReservationExpiresAt)
	}

	reservations, err := c.store.ConfirmTx(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("confirm reservations: %w", err)
	}

	for _, r := range reservations {
		plan, err := c.ledger.Debit(ctx, tx, r.VariantID, r.Quantity, ord.PreferredLocation)
		if err != nil {
			// The ledger is the final authority: if physical stock vanished
			// between reservation and confirmation, the whole confirmation
			// fails and nothing is debited.
			return nil, err
		}
		c.logger.Info("stock debited", "order_id", orderID, "variant_id", r.VariantID,
			"quantity", r.Quantity, "allocations", len(plan))
	}

	if err := c.orders.UpdateStatusTx(ctx, tx, orderID, domain.OrderStatusFulfilled, "preparando"); err != nil {
		return nil, err
	}
	if err := c.orders.SetPaymentTx(ctx, tx, orderID, paymentRef, method); err != nil {
		return nil, err
	}
	if err := c.carts.ClearTx(ctx, tx, ord.UserID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	if err := c.orders.AppendTrackingTx(ctx, tx, orderID, "preparando",
		fmt.Sprintf("Pago confirmado. Pedido en preparación. Método: %s", method), "Sistema Web"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.OrdersFulfilled.Add(ctx, 1)
	}
	c.logger.Info("payment confirmed", "order_id", orderID, "payment_reference", paymentRef, "method", method)

	fulfilled, err := c.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if c.events != nil {
		event := domain.OrderEvent{
			OrderID:    fulfilled.ID,
			UserID:     fulfilled.UserID,
			Status:     fulfilled.Status,
			TotalCents: fulfilled.TotalCents,
			ItemCount:  len(fulfilled.Items),
			Timestamp:  time.Now().UTC(),
		}
		if err := c.events.Publish(ctx, domain.TopicOrderFulfilled, fulfilled.ID, event); err != nil {
			c.logger.Error("failed to publish fulfilled event", "error", err, "order_id", fulfilled.ID)
		}
	}

	return fulfilled, nil
}

// expireInPlace applies the reserved -> expired transition inside the
// caller's transaction, converging with the sweeper's eager path.
func (c *Confirmer) expireInPlace(ctx context.Context, tx *sql.Tx, orderID string) error {
	if err := c.orders.UpdateStatusTx(ctx, tx, orderID, domain.OrderStatusExpired, "cancelado"); err != nil {
		return err
	}
	if err := c.store.ReleaseTx(ctx, tx, orderID, domain.ReservationExpired); err != nil {
		return err
	}
	return c.orders.AppendTrackingTx(ctx, tx, orderID, "cancelado",
		"Pedido cancelado automáticamente por expiración de reserva", "Sistema Automático")
}
