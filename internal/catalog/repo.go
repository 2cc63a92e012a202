package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
)

// Repo is the Catalog Store. It runs against a pool or an open transaction.
type Repo struct{ DB postgres.DBTX }

func NewRepo(db postgres.DBTX) *Repo { return &Repo{DB: db} }

const productColumns = `id, category_id, name, description, price, stock, low_stock_threshold,
	COALESCE(image_url, ''), total_reviews, average_rating, wilson_score, total_sold,
	is_best_seller, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.LowStockThreshold, &p.ImageURL, &p.TotalReviews, &p.AverageRating, &p.WilsonScore,
		&p.TotalSold, &p.IsBestSeller, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repo) GetProduct(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, fmt.Errorf("product %d: %w", id, apperr.ErrNotFound)
	}
	return p, err
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DecrementStock takes qty units. The guarded update never drives stock
// below zero; a miss is reported as insufficient stock.
func (r *Repo) DecrementStock(ctx context.Context, id int64, qty int) error {
	if qty <= 0 {
		return apperr.ErrInvalidQuantity
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	p, err := r.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	return &apperr.InsufficientStockError{ProductID: id, Name: p.Name, Requested: qty, Available: p.Stock}
}

func (r *Repo) IncrementStock(ctx context.Context, id int64, qty int) error {
	if qty <= 0 {
		return apperr.ErrInvalidQuantity
	}
	ct, err := r.DB.Exec(ctx, `UPDATE products SET stock = stock + $2, updated_at = now() WHERE id = $1`, id, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("product %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// LowStock returns the subset of ids whose stock is at or below threshold.
func (r *Repo) LowStock(ctx context.Context, ids []int64) ([]Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.DB.Query(ctx, `SELECT `+productColumns+` FROM products
		WHERE id = ANY($1) AND low_stock_threshold > 0 AND stock <= low_stock_threshold
		ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
