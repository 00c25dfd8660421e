package order

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/boutiqueops/checkout/internal/domain"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sql.DB {
	return r.db
}

// CreateTx inserts an order and its line items inside the caller's
// transaction. Item ids are assigned here.
func (r *Repository) CreateTx(ctx context.Context, tx *sql.Tx, order *domain.Order) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, fulfillment_note,
			subtotal_cents, shipping_cents, total_cents,
			delivery_type, shipping_address, preferred_location, notes,
			payment_method, reservation_expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
	`, order.ID, order.UserID, order.Status, order.FulfillmentNote,
		order.SubtotalCents, order.ShippingCents, order.TotalCents,
		order.DeliveryType, order.ShippingAddress, order.PreferredLocation, order.Notes,
		order.PaymentMethod, order.ReservationExpiresAt)
	if err != nil {
		return err
	}

	for i := range order.Items {
		item := &order.Items[i]
		item.ID = uuid.New().String()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, variant_id, product_name, product_code,
				size_name, color_name, quantity, unit_price_cents, subtotal_cents
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, item.ID, order.ID, item.VariantID, item.ProductName, item.ProductCode,
			item.SizeName, item.ColorName, item.Quantity, item.UnitPriceCents, item.SubtotalCents)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, fulfillment_note,
		       subtotal_cents, shipping_cents, total_cents,
		       delivery_type, COALESCE(shipping_address, ''), COALESCE(preferred_location, ''),
		       COALESCE(notes, ''), COALESCE(payment_reference, ''), COALESCE(payment_method, ''),
		       reservation_expires_at, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.UserID, &order.Status, &order.FulfillmentNote,
		&order.SubtotalCents, &order.ShippingCents, &order.TotalCents,
		&order.DeliveryType, &order.ShippingAddress, &order.PreferredLocation,
		&order.Notes, &order.PaymentReference, &order.PaymentMethod,
		&order.ReservationExpiresAt, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, variant_id, product_name, COALESCE(product_code, ''),
		       COALESCE(size_name, ''), COALESCE(color_name, ''),
		       quantity, unit_price_cents, subtotal_cents
		FROM order_items
		WHERE order_id = $1
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.VariantID, &item.ProductName, &item.ProductCode,
			&item.SizeName, &item.ColorName, &item.Quantity, &item.UnitPriceCents, &item.SubtotalCents); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tracking, err := r.Tracking(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Tracking = tracking

	return order, nil
}

// GetForUpdate loads the order row with an exclusive lock, serializing
// concurrent confirm/cancel/expire attempts on the same order. Line items and
// tracking are not loaded.
func (r *Repository) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*domain.Order, error) {
	order := &domain.Order{}
	err := tx.QueryRowContext(ctx, `
		SELECT id, user_id, status, total_cents, delivery_type,
		       COALESCE(preferred_location, ''), reservation_expires_at
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&order.ID, &order.UserID, &order.Status, &order.TotalCents,
		&order.DeliveryType, &order.PreferredLocation, &order.ReservationExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return order, nil
}

// UpdateStatusTx moves the order to status and records the display-only
// fulfillment note. Transition legality is the service's job.
func (r *Repository) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, status domain.OrderStatus, note string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, fulfillment_note = $2, updated_at = NOW()
		WHERE id = $3
	`, status, note, id)
	return err
}

func (r *Repository) SetPaymentTx(ctx context.Context, tx *sql.Tx, id, reference, method string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET payment_reference = $1, payment_method = $2, updated_at = NOW()
		WHERE id = $3
	`, reference, method, id)
	return err
}

func (r *Repository) SetReservationExpiryTx(ctx context.Context, tx *sql.Tx, id string, expiresAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET reservation_expires_at = $1, updated_at = NOW() WHERE id = $2
	`, expiresAt, id)
	return err
}

func (r *Repository) SetPaymentIntentTx(ctx context.Context, tx *sql.Tx, id, intentID string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE orders SET payment_intent_id = $1, updated_at = NOW() WHERE id = $2
	`, intentID, id)
	return err
}

// SetPaymentIntent records the gateway intent id outside any transaction; the
// intent is created after the checkout transaction commits.
func (r *Repository) SetPaymentIntent(ctx context.Context, id, intentID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders SET payment_intent_id = $1, updated_at = NOW() WHERE id = $2
	`, intentID, id)
	return err
}

func (r *Repository) PaymentIntentID(ctx context.Context, id string) (string, error) {
	var intentID sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT payment_intent_id FROM orders WHERE id = $1`, id).Scan(&intentID)
	if err != nil {
		return "", err
	}
	return intentID.String, nil
}

// AppendTrackingTx appends one immutable tracking entry.
func (r *Repository) AppendTrackingTx(ctx context.Context, tx *sql.Tx, orderID, status, description, location string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tracking_entries (id, order_id, status, description, location, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, uuid.New().String(), orderID, status, description, location)
	return err
}

func (r *Repository) Tracking(ctx context.Context, orderID string) ([]domain.TrackingEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, status, COALESCE(description, ''), COALESCE(location, ''), created_at
		FROM tracking_entries
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []domain.TrackingEntry
	for rows.Next() {
		var e domain.TrackingEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.Description, &e.Location, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListExpiredReserved returns ids of reserved orders whose reservation
// deadline has passed. The sweeper expires each in its own transaction.
func (r *Repository) ListExpiredReserved(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM orders
		WHERE status = 'reserved'
		  AND reservation_expires_at IS NOT NULL
		  AND reservation_expires_at < NOW()
		ORDER BY reservation_expires_at
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReservedByUserTx returns ids of the user's own still-reserved orders,
// locked, so a new checkout can cancel them first.
func (r *Repository) ReservedByUserTx(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM orders
		WHERE user_id = $1 AND status = 'reserved'
		ORDER BY created_at
		FOR UPDATE
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
