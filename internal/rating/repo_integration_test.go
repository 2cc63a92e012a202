//go:build integration

package rating

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/ariefcatur/go-shop-orders/internal/postgres/pgtest"
)

func TestPgRecompute(t *testing.T) {
	pool := pgtest.Start(t)
	ctx := context.Background()

	pgtest.Exec(t, pool, `INSERT INTO users(id, name, email) SELECT g, 'u'||g, 'u'||g||'@example.com' FROM generate_series(1, 12) g`)
	pgtest.Exec(t, pool, `INSERT INTO products(id, name, price, stock) VALUES (1, 'A', 100, 10), (2, 'B', 100, 10), (3, 'C', 100, 10)`)
	// A: 12 verified reviews, 11 positive. B: 3 reviews. C: 2 reviews.
	pgtest.Exec(t, pool, `INSERT INTO product_reviews(product_id, user_id, rating, verified)
		SELECT 1, g, CASE WHEN g = 1 THEN 2 ELSE 5 END, true FROM generate_series(1, 12) g`)
	pgtest.Exec(t, pool, `INSERT INTO product_reviews(product_id, user_id, rating, verified)
		SELECT 2, g, 4, true FROM generate_series(1, 3) g`)
	pgtest.Exec(t, pool, `INSERT INTO product_reviews(product_id, user_id, rating, verified)
		SELECT 3, g, 5, true FROM generate_series(1, 2) g`)
	pgtest.Exec(t, pool, `INSERT INTO orders(id, user_id, total_price, status) VALUES (1, 1, 0, 'delivered'), (2, 1, 0, 'pending')`)
	pgtest.Exec(t, pool, `INSERT INTO order_items(order_id, product_id, product_name, price, quantity) VALUES
		(1, 2, 'B', 100, 40), (2, 2, 'B', 100, 50), (1, 1, 'A', 100, 5)`)

	store := &PgStore{Pool: pool}
	a := &Aggregator{Store: store, Log: quietLogger()}
	if err := a.RecomputeRatings(ctx); err != nil {
		t.Fatalf("recompute ratings: %v", err)
	}

	var reviews, sold int
	var wilson float64
	_ = pool.QueryRow(ctx, `SELECT total_reviews, wilson_score, total_sold FROM products WHERE id=1`).Scan(&reviews, &wilson, &sold)
	if reviews != 12 || sold != 5 || math.Abs(wilson-Wilson(11, 12)) > 1e-9 {
		t.Fatalf("unexpected A stats: %d reviews, %v wilson, %d sold", reviews, wilson, sold)
	}
	_ = pool.QueryRow(ctx, `SELECT wilson_score, total_sold FROM products WHERE id=2`).Scan(&wilson, &sold)
	if wilson != 0 || sold != 40 {
		t.Fatalf("expected B wilson 0 and 40 delivered units, got %v and %d", wilson, sold)
	}

	first, err := a.RecomputeBestSellers(ctx)
	if err != nil {
		t.Fatalf("best sellers: %v", err)
	}
	second, err := a.RecomputeBestSellers(ctx)
	if err != nil {
		t.Fatalf("best sellers again: %v", err)
	}
	if !reflect.DeepEqual(first, second) || len(first) != 2 {
		t.Fatalf("expected stable ranking of A and B, got %v and %v", first, second)
	}

	list, err := store.ListBestSellers(ctx)
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 best sellers, got %d (%v)", len(list), err)
	}
	var flagged []int64
	rows, _ := pool.Query(ctx, `SELECT id FROM products WHERE is_best_seller ORDER BY id`)
	for rows.Next() {
		var id int64
		_ = rows.Scan(&id)
		flagged = append(flagged, id)
	}
	rows.Close()
	if !reflect.DeepEqual(flagged, []int64{1, 2}) {
		t.Fatalf("expected products 1 and 2 flagged, got %v", flagged)
	}
}
