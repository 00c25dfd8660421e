package cart

import (
	"context"
	"database/sql"
)

// Item is one cart line with the price snapshot a checkout will freeze into
// the order.
type Item struct {
	VariantID      string
	ProductName    string
	ProductCode    string
	SizeName       string
	ColorName      string
	Quantity       int
	UnitPriceCents int64
}

// Provider exposes the cart collaborator the order lifecycle depends on.
// Clearing happens inside the payment-confirmation transaction, so it takes
// the caller's tx.
type Provider interface {
	Items(ctx context.Context, userID string) ([]Item, error)
	ClearTx(ctx context.Context, tx *sql.Tx, userID string) error
}

// PostgresProvider reads carts from the same database the order lifecycle
// lives in.
type PostgresProvider struct {
	db *sql.DB
}

func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

func (p *PostgresProvider) Items(ctx context.Context, userID string) ([]Item, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT ci.variant_id, v.product_name, v.product_code, v.size_name, v.color_name,
		       ci.quantity, v.unit_price_cents
		FROM cart_items ci
		JOIN carts c ON c.id = ci.cart_id
		JOIN variants v ON v.id = ci.variant_id
		WHERE c.user_id = $1
		ORDER BY ci.created_at, ci.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.VariantID, &item.ProductName, &item.ProductCode,
			&item.SizeName, &item.ColorName, &item.Quantity, &item.UnitPriceCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (p *PostgresProvider) ClearTx(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)
	`, userID)
	return err
}
