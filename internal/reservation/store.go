package reservation

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/boutiqueops/checkout/internal/domain"
	"github.com/boutiqueops/checkout/internal/inventory"
)

// Store creates and transitions time-bounded inventory holds. The hold is
// logical (rows in the reservations table); physical stock is untouched until
// payment confirmation pairs Confirm with ledger debits.
type Store struct {
	db     *sql.DB
	ledger *inventory.Ledger
}

func NewStore(db *sql.DB, ledger *inventory.Ledger) *Store {
	return &Store{db: db, ledger: ledger}
}

// Line is one requested hold: N units of a variant, with the display name
// carried through so stock failures can name the item.
type Line struct {
	VariantID   string
	ProductName string
	Quantity    int
}

// LogicallyAvailable is physical stock minus currently active, unexpired
// reservation quantities.
func (s *Store) LogicallyAvailable(ctx context.Context, variantID string) (int, error) {
	physical, err := s.ledger.Available(ctx, variantID)
	if err != nil {
		return 0, err
	}
	reserved, err := s.reservedQuantity(ctx, s.db, variantID)
	if err != nil {
		return 0, err
	}
	return physical - reserved, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) reservedQuantity(ctx context.Context, q querier, variantID string) (int, error) {
	var reserved int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM reservations
		WHERE variant_id = $1 AND status = 'active' AND expires_at > NOW()
	`, variantID).Scan(&reserved)
	return reserved, err
}

// ReserveTx validates logical availability for every line and inserts one
// active reservation per line, all inside the caller's transaction. The
// ledger rows for each variant are locked (in line order, which callers keep
// sorted by variant id) so two concurrent checkouts cannot both observe the
// same stock as free. Any failing line aborts the whole operation.
func (s *Store) ReserveTx(ctx context.Context, tx *sql.Tx, orderID string, lines []Line, ttl time.Duration) (time.Time, error) {
	expiresAt := time.Now().UTC().Add(ttl)

	for _, line := range lines {
		physical, err := s.ledger.AvailableForUpdate(ctx, tx, line.VariantID)
		if err != nil {
			return time.Time{}, fmt.Errorf("check stock for variant %s: %w", line.VariantID, err)
		}
		reserved, err := s.reservedQuantity(ctx, tx, line.VariantID)
		if err != nil {
			return time.Time{}, fmt.Errorf("check reservations for variant %s: %w", line.VariantID, err)
		}

		available := physical - reserved
		if available < line.Quantity {
			return time.Time{}, &domain.InsufficientStockError{
				VariantID:   line.VariantID,
				ProductName: line.ProductName,
				Requested:   line.Quantity,
				Available:   available,
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations (id, order_id, variant_id, quantity, status, created_at, expires_at, updated_at)
			VALUES ($1, $2, $3, $4, 'active', NOW(), $5, NOW())
		`, uuid.New().String(), orderID, line.VariantID, line.Quantity, expiresAt)
		if err != nil {
			return time.Time{}, fmt.Errorf("insert reservation for variant %s: %w", line.VariantID, err)
		}
	}

	return expiresAt, nil
}

// ReleaseTx transitions all active reservations of an order to newStatus
// (cancelled or expired). Idempotent: already released rows are untouched.
func (s *Store) ReleaseTx(ctx context.Context, tx *sql.Tx, orderID string, newStatus domain.ReservationStatus) error {
	if newStatus != domain.ReservationCancelled && newStatus != domain.ReservationExpired {
		return fmt.Errorf("release cannot set reservation status %q", newStatus)
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1, updated_at = NOW()
		WHERE order_id = $2 AND status = 'active'
	`, newStatus, orderID)
	return err
}

// ConfirmTx transitions all active reservations of an order to confirmed and
// returns them so the caller can pair each with a ledger debit in the same
// transaction. It is an error for the order to have no active reservations.
func (s *Store) ConfirmTx(ctx context.Context, tx *sql.Tx, orderID string) ([]domain.Reservation, error) {
	rows, err := tx.QueryContext(ctx, `
		UPDATE reservations
		SET status = 'confirmed', updated_at = NOW()
		WHERE order_id = $1 AND status = 'active'
		RETURNING id, order_id, variant_id, quantity, status, created_at, expires_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var confirmed []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.OrderID, &r.VariantID, &r.Quantity, &r.Status, &r.CreatedAt, &r.ExpiresAt); err != nil {
			return nil, err
		}
		confirmed = append(confirmed, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(confirmed) == 0 {
		return nil, fmt.Errorf("order %s has no active reservations to confirm", orderID)
	}
	return confirmed, nil
}

// ActiveByOrder returns the order's active reservations.
func (s *Store) ActiveByOrder(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, variant_id, quantity, status, created_at, expires_at
		FROM reservations
		WHERE order_id = $1 AND status = 'active'
		ORDER BY created_at
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reservations []domain.Reservation
	for rows.Next() {
		var r domain.Reservation
		if err := rows.Scan(&r.ID, &r.OrderID, &r.VariantID, &r.Quantity, &r.Status, &r.CreatedAt, &r.ExpiresAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}
