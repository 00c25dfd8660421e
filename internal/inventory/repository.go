package inventory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/boutiqueops/checkout/internal/domain"
)

// Ledger is the source of truth for physical on-hand stock per variant and
// fulfillment location. It is never debited at reservation time; only the
// payment confirmation path deducts real stock.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Available returns on-hand quantity summed across locations.
func (l *Ledger) Available(ctx context.Context, variantID string) (int, error) {
	var total int
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(on_hand), 0)
		FROM variant_locations
		WHERE variant_id = $1
	`, variantID).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// AvailableForUpdate sums on-hand quantity while locking the variant's
// location rows, so the caller's transaction serializes against concurrent
// debits and reservations on the same variant.
func (l *Ledger) AvailableForUpdate(ctx context.Context, tx *sql.Tx, variantID string) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT on_hand
		FROM variant_locations
		WHERE variant_id = $1
		ORDER BY location_id
		FOR UPDATE
	`, variantID)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	total := 0
	for rows.Next() {
		var onHand int
		if err := rows.Scan(&onHand); err != nil {
			return 0, err
		}
		total += onHand
	}
	return total, rows.Err()
}

// Debit atomically reduces on-hand stock by quantity inside the caller's
// transaction, preferring preferredLocation first and then locations with the
// most stock, splitting across locations as needed. It returns the
// per-location breakdown for audit.
func (l *Ledger) Debit(ctx context.Context, tx *sql.Tx, variantID string, quantity int, preferredLocation string) (domain.AllocationPlan, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT location_id, on_hand
		FROM variant_locations
		WHERE variant_id = $1 AND on_hand > 0
		ORDER BY
			CASE WHEN location_id = $2 THEN 0 ELSE 1 END,
			on_hand DESC,
			location_id
		FOR UPDATE
	`, variantID, preferredLocation)
	if err != nil {
		return nil, err
	}

	var stocks []locationStock
	for rows.Next() {
		var ls locationStock
		if err := rows.Scan(&ls.LocationID, &ls.OnHand); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stocks = append(stocks, ls)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	plan, err := planAllocations(stocks, variantID, quantity)
	if err != nil {
		return nil, err
	}

	for _, alloc := range plan {
		result, err := tx.ExecContext(ctx, `
			UPDATE variant_locations
			SET on_hand = on_hand - $1, updated_at = NOW()
			WHERE variant_id = $2 AND location_id = $3 AND on_hand >= $1
		`, alloc.Quantity, variantID, alloc.LocationID)
		if err != nil {
			return nil, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			// The rows are locked, so a miss here means the plan went
			// stale within our own transaction. Hard failure.
			return nil, fmt.Errorf("debit of %d from location %s for variant %s did not apply", alloc.Quantity, alloc.LocationID, variantID)
		}
	}

	return plan, nil
}

// Credit reverses a prior debit at one location. Used for manual corrections
// only; the normal reservation flow never debits until confirmation.
func (l *Ledger) Credit(ctx context.Context, variantID string, quantity int, locationID string) error {
	result, err := l.db.ExecContext(ctx, `
		UPDATE variant_locations
		SET on_hand = on_hand + $1, updated_at = NOW()
		WHERE variant_id = $2 AND location_id = $3
	`, quantity, variantID, locationID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrVariantNotFound
	}
	return nil
}

// CanonicalVariantID resolves a raw identifier (canonical id or legacy
// barcode) to the canonical variant id. Called once at the entry boundary;
// queries elsewhere only ever see canonical ids.
func (l *Ledger) CanonicalVariantID(ctx context.Context, raw string) (string, error) {
	var id string
	err := l.db.QueryRowContext(ctx, `
		SELECT id FROM variants WHERE id = $1 OR barcode = $1
	`, raw).Scan(&id)
	if err == sql.ErrNoRows {
		return "", domain.ErrVariantNotFound
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetStock reports physical, reserved and logically available quantities for
// one variant. Returns nil when the variant does not exist.
func (l *Ledger) GetStock(ctx context.Context, variantID string) (*domain.StockLevel, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM variants WHERE id = $1)`, variantID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	stock := &domain.StockLevel{VariantID: variantID}
	err = l.db.QueryRowContext(ctx, `
		SELECT
			COALESCE((SELECT SUM(on_hand) FROM variant_locations WHERE variant_id = $1), 0),
			COALESCE((
				SELECT SUM(quantity) FROM reservations
				WHERE variant_id = $1 AND status = 'active' AND expires_at > NOW()
			), 0)
	`, variantID).Scan(&stock.Physical, &stock.Reserved)
	if err != nil {
		return nil, err
	}

	stock.Available = max(stock.Physical-stock.Reserved, 0)
	return stock, nil
}

// ListStock reports stock levels for every variant.
func (l *Ledger) ListStock(ctx context.Context) ([]domain.StockLevel, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT
			v.id,
			COALESCE(SUM(vl.on_hand), 0),
			COALESCE((
				SELECT SUM(r.quantity) FROM reservations r
				WHERE r.variant_id = v.id AND r.status = 'active' AND r.expires_at > NOW()
			), 0)
		FROM variants v
		LEFT JOIN variant_locations vl ON vl.variant_id = v.id
		GROUP BY v.id
		ORDER BY v.id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var levels []domain.StockLevel
	for rows.Next() {
		var s domain.StockLevel
		if err := rows.Scan(&s.VariantID, &s.Physical, &s.Reserved); err != nil {
			return nil, err
		}
		s.Available = max(s.Physical-s.Reserved, 0)
		levels = append(levels, s)
	}
	return levels, rows.Err()
}
