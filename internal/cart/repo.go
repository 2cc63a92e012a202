package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
)

// Line is a cart item joined with the live product row.
type Line struct {
	ItemID    int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Stock     int    `json:"stock"`
	Quantity  int    `json:"quantity"`
}

func (l Line) Subtotal() int64 { return l.Price * int64(l.Quantity) }

// Repo is the Cart Store. One cart per user, created on first add.
type Repo struct{ DB postgres.DBTX }

func NewRepo(db postgres.DBTX) *Repo { return &Repo{DB: db} }

const linesQuery = `
	SELECT ci.id, p.id, p.name, p.price, p.stock, ci.quantity
	FROM carts c
	JOIN cart_items ci ON ci.cart_id = c.id
	JOIN products p ON p.id = ci.product_id
	WHERE c.user_id = $1
	ORDER BY p.id`

func (r *Repo) GetCartItems(ctx context.Context, userID int64) ([]Line, error) {
	return r.lines(ctx, linesQuery, userID)
}

// LockCartItems locks the user's cart row, then reads the lines and locks the
// referenced product rows until the surrounding transaction ends. Product rows
// are locked in product id order. The cart lock is taken in its own statement
// so a concurrent checkout of the same cart reads the lines only after the
// first one has committed.
func (r *Repo) LockCartItems(ctx context.Context, userID int64) ([]Line, error) {
	var cartID int64
	err := r.DB.QueryRow(ctx, `SELECT id FROM carts WHERE user_id=$1 FOR UPDATE`, userID).Scan(&cartID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.lines(ctx, linesQuery+` FOR UPDATE OF p`, userID)
}

func (r *Repo) lines(ctx context.Context, q string, userID int64) ([]Line, error) {
	rows, err := r.DB.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ItemID, &l.ProductID, &l.Name, &l.Price, &l.Stock, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repo) ClearCart(ctx context.Context, userID int64) error {
	_, err := r.DB.Exec(ctx, `
		DELETE FROM cart_items
		WHERE cart_id IN (SELECT id FROM carts WHERE user_id = $1)`, userID)
	return err
}

// AddItem adds qty of a product, merging with an existing line.
func (r *Repo) AddItem(ctx context.Context, userID, productID int64, qty int) error {
	if qty <= 0 {
		return apperr.ErrInvalidQuantity
	}
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("product %d: %w", productID, apperr.ErrNotFound)
	}
	cartID, err := r.ensureCart(ctx, userID)
	if err != nil {
		return err
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO cart_items(cart_id, product_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
		cartID, productID, qty)
	return err
}

func (r *Repo) UpdateQuantity(ctx context.Context, userID, itemID int64, qty int) error {
	if qty <= 0 {
		return apperr.ErrInvalidQuantity
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE cart_items SET quantity = $3
		WHERE id = $2 AND cart_id IN (SELECT id FROM carts WHERE user_id = $1)`, userID, itemID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, apperr.ErrNotFound)
	}
	return nil
}

func (r *Repo) RemoveItem(ctx context.Context, userID, itemID int64) error {
	ct, err := r.DB.Exec(ctx, `
		DELETE FROM cart_items
		WHERE id = $2 AND cart_id IN (SELECT id FROM carts WHERE user_id = $1)`, userID, itemID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("cart item %d: %w", itemID, apperr.ErrNotFound)
	}
	return nil
}

func (r *Repo) ensureCart(ctx context.Context, userID int64) (int64, error) {
	var id int64
	err := r.DB.QueryRow(ctx, `SELECT id FROM carts WHERE user_id=$1`, userID).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	err = r.DB.QueryRow(ctx, `
		INSERT INTO carts(user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id`, userID).Scan(&id)
	return id, err
}
