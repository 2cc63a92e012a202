package rating

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-shop-orders/internal/postgres"
)

type reviewStats struct {
	total    int
	average  float64
	positive int
}

// PgStore reads review and sales history and writes the derived columns.
type PgStore struct{ Pool *pgxpool.Pool }

func (s *PgStore) reviewStats(ctx context.Context) (map[int64]reviewStats, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT p.id,
		       COUNT(r.id),
		       COALESCE(AVG(r.rating), 0)::float8,
		       COUNT(r.id) FILTER (WHERE r.verified AND r.rating >= $1)
		FROM products p
		LEFT JOIN product_reviews r ON r.product_id = p.id
		GROUP BY p.id`, PositiveRating)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]reviewStats{}
	for rows.Next() {
		var id int64
		var st reviewStats
		if err := rows.Scan(&id, &st.total, &st.average, &st.positive); err != nil {
			return nil, err
		}
		out[id] = st
	}
	return out, rows.Err()
}

func (s *PgStore) soldTotals(ctx context.Context) (map[int64]int, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT oi.product_id, SUM(oi.quantity)::int
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.status = 'delivered' AND oi.product_id IS NOT NULL
		GROUP BY oi.product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// RecomputeRatings rewrites total_reviews, average_rating, wilson_score and
// total_sold for every product. It returns the number of products updated.
func (s *PgStore) RecomputeRatings(ctx context.Context) (int, error) {
	var (
		stats map[int64]reviewStats
		sold  map[int64]int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats, err = s.reviewStats(gctx)
		return err
	})
	g.Go(func() (err error) {
		sold, err = s.soldTotals(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("load rating inputs: %w", err)
	}

	err := postgres.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		b := &pgx.Batch{}
		for id, st := range stats {
			b.Queue(`UPDATE products
				SET total_reviews=$2, average_rating=$3, wilson_score=$4, total_sold=$5, updated_at=now()
				WHERE id=$1`,
				id, st.total, st.average, Wilson(st.positive, st.total), sold[id])
		}
		return tx.SendBatch(ctx, b).Close()
	})
	if err != nil {
		return 0, err
	}
	return len(stats), nil
}

func (s *PgStore) BestSellerCandidates(ctx context.Context) ([]Candidate, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, total_reviews, wilson_score, total_sold
		FROM products WHERE total_reviews >= $1`, MinReviewsForRanking)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ProductID, &c.TotalReviews, &c.WilsonScore, &c.TotalSold); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceBestSellers clears the table and inserts ranked, then flags exactly
// the ranked products on the catalog.
func (s *PgStore) ReplaceBestSellers(ctx context.Context, ranked []Ranked) error {
	ids := make([]int64, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.ProductID)
	}
	return postgres.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM best_sellers`); err != nil {
			return err
		}
		for _, r := range ranked {
			if _, err := tx.Exec(ctx,
				`INSERT INTO best_sellers (rank, product_id, score) VALUES ($1, $2, $3)`,
				r.Rank, r.ProductID, r.Score); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `UPDATE products SET is_best_seller = (id = ANY($1))
			WHERE is_best_seller OR id = ANY($1)`, ids)
		return err
	})
}

// BestSeller is a ranked entry joined with its product.
type BestSeller struct {
	Rank          int     `json:"rank"`
	ProductID     int64   `json:"product_id"`
	Name          string  `json:"name"`
	Price         int64   `json:"price"`
	ImageURL      string  `json:"image_url,omitempty"`
	AverageRating float64 `json:"average_rating"`
	TotalReviews  int     `json:"total_reviews"`
	TotalSold     int     `json:"total_sold"`
	Score         float64 `json:"score"`
}

func (s *PgStore) ListBestSellers(ctx context.Context) ([]BestSeller, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT b.rank, p.id, p.name, p.price, COALESCE(p.image_url, ''), p.average_rating,
		       p.total_reviews, p.total_sold, b.score
		FROM best_sellers b JOIN products p ON p.id = b.product_id
		ORDER BY b.rank`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []BestSeller{}
	for rows.Next() {
		var b BestSeller
		if err := rows.Scan(&b.Rank, &b.ProductID, &b.Name, &b.Price, &b.ImageURL,
			&b.AverageRating, &b.TotalReviews, &b.TotalSold, &b.Score); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
