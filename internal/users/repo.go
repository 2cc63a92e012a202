package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
)

// Repo resolves notification recipients and gateway customer details.
type Repo struct{ DB postgres.DBTX }

func NewRepo(db postgres.DBTX) *Repo { return &Repo{DB: db} }

func (r *Repo) Customer(ctx context.Context, userID int64) (orders.Customer, error) {
	var c orders.Customer
	err := r.DB.QueryRow(ctx,
		`SELECT id, name, email, COALESCE(phone, '') FROM users WHERE id=$1`, userID,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Customer{}, fmt.Errorf("user %d: %w", userID, apperr.ErrNotFound)
	}
	return c, err
}

func (r *Repo) AdminEmails(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT email FROM users WHERE role='admin' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		out = append(out, email)
	}
	return out, rows.Err()
}
