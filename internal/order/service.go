package order

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/boutiqueops/checkout/internal/cart"
	"github.com/boutiqueops/checkout/internal/domain"
	"github.com/boutiqueops/checkout/internal/reservation"
	"github.com/boutiqueops/checkout/internal/telemetry"
)

// DefaultReservationTTL is how long a checkout holds stock before the order
// expires unpaid.
const DefaultReservationTTL = 30 * time.Minute

// PaymentGateway is the slice of the gateway client checkout needs. Intents
// are created after the checkout transaction commits, never inside it.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency, externalRef string) (intentID, checkoutURL string, err error)
	CancelIntent(ctx context.Context, intentID string) error
}

// EventPublisher pushes order lifecycle events to the message bus.
// Failures are logged, never propagated into order state.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

type Config struct {
	ReservationTTL  time.Duration
	Currency        string
	AutoCancelPrior bool
}

// Service owns the order state machine: checkout creates reserved orders,
// cancel and expire finish them. Payment confirmation lives in the payment
// package but drives the same transitions through this package's repository.
type Service struct {
	repo    *Repository
	store   *reservation.Store
	carts   cart.Provider
	gateway PaymentGateway
	events  EventPublisher
	metrics *telemetry.Metrics
	logger  *slog.Logger
	cfg     Config
}

func NewService(repo *Repository, store *reservation.Store, carts cart.Provider, gateway PaymentGateway, events EventPublisher, metrics *telemetry.Metrics, logger *slog.Logger, cfg Config) *Service {
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = DefaultReservationTTL
	}
	if cfg.Currency == "" {
		cfg.Currency = "ARS"
	}
	return &Service{
		repo:    repo,
		store:   store,
		carts:   carts,
		gateway: gateway,
		events:  events,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
	}
}

type CheckoutRequest struct {
	DeliveryType      domain.DeliveryType
	ShippingAddress   string
	ShippingCents     int64
	PreferredLocation string
	Notes             string
	PaymentMethod     string
}

type CheckoutResult struct {
	OrderID              string    `json:"order_id"`
	ReservationExpiresAt time.Time `json:"reservation_expires_at"`
	CheckoutURL          string    `json:"checkout_url,omitempty"`
	TotalCents           int64     `json:"total_cents"`
}

// Checkout turns the user's cart into a reserved order: price snapshot,
// totals, order + items + reservations in one transaction. The cart is NOT
// cleared here; that happens at payment confirmation so a failed payment does
// not lose the cart.
func (s *Service) Checkout(ctx context.Context, userID string, req CheckoutRequest) (*CheckoutResult, error) {
	shippingCents, err := validateDelivery(req.DeliveryType, req.ShippingCents)
	if err != nil {
		return nil, err
	}

	items, err := s.carts.Items(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if len(items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	order := buildOrder(userID, items, shippingCents, req)

	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if s.cfg.AutoCancelPrior {
		if err := s.cancelPriorReservedTx(ctx, tx, userID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.CreateTx(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	lines := make([]reservation.Line, len(order.Items))
	for i, item := range order.Items {
		lines[i] = reservation.Line{
			VariantID:   item.VariantID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
		}
	}
	// Lock variants in a stable order so concurrent checkouts sharing items
	// cannot deadlock.
	sort.Slice(lines, func(i, j int) bool { return lines[i].VariantID < lines[j].VariantID })

	expiresAt, err := s.store.ReserveTx(ctx, tx, order.ID, lines, s.cfg.ReservationTTL)
	if err != nil {
		if domain.IsInsufficientStock(err) && s.metrics != nil {
			s.metrics.StockRejections.Add(ctx, 1)
		}
		return nil, err
	}

	if err := s.repo.SetReservationExpiryTx(ctx, tx, order.ID, expiresAt); err != nil {
		return nil, err
	}
	order.ReservationExpiresAt = &expiresAt

	if err := s.repo.AppendTrackingTx(ctx, tx, order.ID, "pendiente",
		"Pedido creado. Esperando confirmación de pago.", "Sistema Web"); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.OrdersReserved.Add(ctx, 1)
	}
	s.logger.Info("order reserved", "order_id", order.ID, "user_id", userID,
		"total_cents", order.TotalCents, "expires_at", expiresAt)

	result := &CheckoutResult{
		OrderID:              order.ID,
		ReservationExpiresAt: expiresAt,
		TotalCents:           order.TotalCents,
	}

	// Gateway intent creation is deliberately outside the transaction: no DB
	// lock should wait on third-party latency. A failure here leaves a valid
	// reserved order the client can retry payment for.
	if s.gateway != nil {
		intentID, checkoutURL, err := s.gateway.CreateIntent(ctx, order.TotalCents, s.cfg.Currency, ExternalRef(order.ID))
		if err != nil {
			s.logger.Error("failed to create payment intent", "error", err, "order_id", order.ID)
		} else {
			result.CheckoutURL = checkoutURL
			if err := s.repo.SetPaymentIntent(ctx, order.ID, intentID); err != nil {
				s.logger.Error("failed to record payment intent", "error", err, "order_id", order.ID)
			}
		}
	}

	s.publish(ctx, domain.TopicOrderReserved, order)
	return result, nil
}

// Cancel performs the reserved -> cancelled transition on behalf of the user
// or the business.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) error {
	var cancelled *domain.Order

	err := s.withOrderTx(ctx, orderID, func(tx *sql.Tx, order *domain.Order) error {
		if !domain.CanTransition(order.Status, domain.OrderStatusCancelled) {
			return domain.ErrOrderAlreadyFinalized
		}
		if err := s.repo.UpdateStatusTx(ctx, tx, orderID, domain.OrderStatusCancelled, "cancelado"); err != nil {
			return err
		}
		if err := s.store.ReleaseTx(ctx, tx, orderID, domain.ReservationCancelled); err != nil {
			return err
		}
		cancelled = order
		return s.repo.AppendTrackingTx(ctx, tx, orderID, "cancelado", cancelReason(reason), "Sistema Web")
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.OrdersCancelled.Add(ctx, 1)
	}
	s.logger.Info("order cancelled", "order_id", orderID, "reason", reason)

	// Best effort: tell the gateway to drop the intent so a late payment
	// attempt dies at the source.
	if s.gateway != nil {
		if intentID, err := s.repo.PaymentIntentID(ctx, orderID); err == nil && intentID != "" {
			if err := s.gateway.CancelIntent(ctx, intentID); err != nil {
				s.logger.Warn("failed to cancel payment intent", "error", err, "order_id", orderID)
			}
		}
	}

	cancelled.Status = domain.OrderStatusCancelled
	s.publish(ctx, domain.TopicOrderCancelled, cancelled)
	return nil
}

// Expire performs the reserved -> expired transition. It is the sweeper's
// entry point and also serves lazy expiry; an order that already reached a
// terminal state is left alone.
func (s *Service) Expire(ctx context.Context, orderID string) error {
	var expired *domain.Order

	err := s.withOrderTx(ctx, orderID, func(tx *sql.Tx, order *domain.Order) error {
		if order.Status != domain.OrderStatusReserved {
			// A concurrent confirm or cancel won the race while we waited on
			// the row lock. Nothing to do.
			return nil
		}
		if err := s.repo.UpdateStatusTx(ctx, tx, orderID, domain.OrderStatusExpired, "cancelado"); err != nil {
			return err
		}
		if err := s.store.ReleaseTx(ctx, tx, orderID, domain.ReservationExpired); err != nil {
			return err
		}
		expired = order
		return s.repo.AppendTrackingTx(ctx, tx, orderID, "cancelado",
			"Pedido cancelado automáticamente por expiración de reserva", "Sistema Automático")
	})
	if err != nil {
		return err
	}

	if expired != nil {
		if s.metrics != nil {
			s.metrics.OrdersExpired.Add(ctx, 1)
		}
		s.logger.Info("order expired", "order_id", orderID)
		expired.Status = domain.OrderStatusExpired
		s.publish(ctx, domain.TopicOrderExpired, expired)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// withOrderTx runs fn with the order row locked, committing on success.
func (s *Service) withOrderTx(ctx context.Context, orderID string, fn func(tx *sql.Tx, order *domain.Order) error) error {
	tx, err := s.repo.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order, err := s.repo.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return domain.ErrOrderNotFound
	}

	if err := fn(tx, order); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Service) cancelPriorReservedTx(ctx context.Context, tx *sql.Tx, userID string) error {
	ids, err := s.repo.ReservedByUserTx(ctx, tx, userID)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.repo.UpdateStatusTx(ctx, tx, id, domain.OrderStatusCancelled, "cancelado"); err != nil {
			return err
		}
		if err := s.store.ReleaseTx(ctx, tx, id, domain.ReservationCancelled); err != nil {
			return err
		}
		if err := s.repo.AppendTrackingTx(ctx, tx, id, "cancelado",
			"Pedido cancelado automáticamente: el cliente inició una nueva compra", "Sistema Web"); err != nil {
			return err
		}
		s.logger.Info("cancelled prior pending order", "order_id", id, "user_id", userID)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic string, order *domain.Order) {
	if s.events == nil {
		return
	}
	event := domain.OrderEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     order.Status,
		TotalCents: order.TotalCents,
		ItemCount:  len(order.Items),
		Timestamp:  time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, topic, order.ID, event); err != nil {
		s.logger.Error("failed to publish order event", "error", err, "topic", topic, "order_id", order.ID)
	}
}

func buildOrder(userID string, items []cart.Item, shippingCents int64, req CheckoutRequest) *domain.Order {
	order := &domain.Order{
		ID:                uuid.New().String(),
		UserID:            userID,
		Status:            domain.OrderStatusReserved,
		FulfillmentNote:   "pendiente",
		DeliveryType:      req.DeliveryType,
		ShippingAddress:   req.ShippingAddress,
		ShippingCents:     shippingCents,
		PreferredLocation: req.PreferredLocation,
		Notes:             req.Notes,
		PaymentMethod:     req.PaymentMethod,
	}

	for _, item := range items {
		subtotal := int64(item.Quantity) * item.UnitPriceCents
		order.Items = append(order.Items, domain.OrderItem{
			VariantID:      item.VariantID,
			ProductName:    item.ProductName,
			ProductCode:    item.ProductCode,
			SizeName:       item.SizeName,
			ColorName:      item.ColorName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			SubtotalCents:  subtotal,
		})
		order.SubtotalCents += subtotal
	}
	order.TotalCents = order.SubtotalCents + order.ShippingCents
	return order
}

// validateDelivery enforces delivery-type constraints: pickup always ships
// free, and only known types are accepted.
func validateDelivery(t domain.DeliveryType, shippingCents int64) (int64, error) {
	switch t {
	case domain.DeliveryPickup:
		return 0, nil
	case domain.DeliveryShipping:
		if shippingCents < 0 {
			return 0, domain.ErrInvalidDeliveryOption
		}
		return shippingCents, nil
	default:
		return 0, domain.ErrInvalidDeliveryOption
	}
}

func cancelReason(reason string) string {
	switch reason {
	case "user_cancelled":
		return "Pedido cancelado por el cliente"
	case "payment_failed":
		return "Pedido cancelado por fallo en el pago"
	case "expired":
		return "Pedido cancelado automáticamente por expiración de reserva"
	default:
		return "Pedido cancelado"
	}
}
