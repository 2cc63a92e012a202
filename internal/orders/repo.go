package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
)

type Repo struct{ DB postgres.DBTX }

func NewRepo(db postgres.DBTX) *Repo { return &Repo{DB: db} }

const orderColumns = `id, user_id, total_price, status, payment_status, refund_status,
	COALESCE(gateway_order_id, ''), COALESCE(transaction_id, ''), COALESCE(payment_type, ''),
	created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.PaymentStatus, &o.RefundStatus,
		&o.GatewayOrderID, &o.TransactionID, &o.PaymentType, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func (r *Repo) Insert(ctx context.Context, o *Order) error {
	return r.DB.QueryRow(ctx, `
		INSERT INTO orders(user_id, total_price, status, payment_status, refund_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		o.UserID, o.TotalPrice, o.Status, o.PaymentStatus, o.RefundStatus,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
}

func (r *Repo) InsertItems(ctx context.Context, orderID int64, items []OrderItem) error {
	for _, it := range items {
		if _, err := r.DB.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, price, quantity)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, it.ProductID, it.ProductName, it.Price, it.Quantity,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) get(ctx context.Context, q string, id int64) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order %d: %w", id, apperr.ErrNotFound)
	}
	return o, err
}

func (r *Repo) Get(ctx context.Context, id int64) (Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

// GetForUpdate locks the order row until the transaction ends.
func (r *Repo) GetForUpdate(ctx context.Context, id int64) (Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *Repo) Items(ctx context.Context, orderID int64) ([]OrderItem, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, order_id, product_id, product_name, price, quantity
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Price, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) list(ctx context.Context, q string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) ListByUser(ctx context.Context, userID int64) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (r *Repo) ListAll(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *Repo) exec(ctx context.Context, id int64, q string, args ...any) error {
	ct, err := r.DB.Exec(ctx, q, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *Repo) UpdateStatus(ctx context.Context, id int64, s Status) error {
	return r.exec(ctx, id, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, s)
}

func (r *Repo) UpdatePayment(ctx context.Context, id int64, u PaymentUpdate) error {
	return r.exec(ctx, id, `
		UPDATE orders SET
			payment_status = $2,
			transaction_id = COALESCE(NULLIF($3, ''), transaction_id),
			payment_type   = COALESCE(NULLIF($4, ''), payment_type),
			updated_at     = now()
		WHERE id=$1`, u.PaymentStatus, u.TransactionID, u.PaymentType)
}

func (r *Repo) SetGatewayOrderID(ctx context.Context, id int64, gatewayOrderID string) error {
	return r.exec(ctx, id, `UPDATE orders SET gateway_order_id=$2, updated_at=now() WHERE id=$1`, gatewayOrderID)
}

// ClaimRefund reserves the single refund slot of an order before the gateway
// is called. It reports false when the order is already refunded or another
// claim newer than staleBefore is still open.
func (r *Repo) ClaimRefund(ctx context.Context, id int64, at, staleBefore time.Time) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO order_refunds(order_id, refunded, payload, created_at)
		VALUES ($1, false, '{}', $2)
		ON CONFLICT (order_id) DO UPDATE SET created_at = EXCLUDED.created_at
		WHERE order_refunds.refunded = false AND order_refunds.created_at < $3`, id, at, staleBefore)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ReleaseRefund drops an open claim after the gateway refused the refund.
func (r *Repo) ReleaseRefund(ctx context.Context, id int64) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM order_refunds WHERE order_id=$1 AND refunded = false`, id)
	return err
}

// SaveRefund completes an open claim with the gateway payload and marks the
// order refunded. Both statements must run in one transaction.
func (r *Repo) SaveRefund(ctx context.Context, id int64, payload json.RawMessage) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE order_refunds SET refunded = true, payload = $2
		WHERE order_id = $1 AND refunded = false`, id, payload)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %d has no open refund claim", id)
	}
	return r.exec(ctx, id, `UPDATE orders SET refund_status=$2, updated_at=now() WHERE id=$1`, RefundRefunded)
}
