package catalog

import "time"

type Product struct {
	ID                int64     `json:"id"`
	CategoryID        *int64    `json:"category_id,omitempty"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Price             int64     `json:"price"`
	Stock             int       `json:"stock"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	ImageURL          string    `json:"image_url,omitempty"`
	TotalReviews      int       `json:"total_reviews"`
	AverageRating     float64   `json:"average_rating"`
	WilsonScore       float64   `json:"wilson_score"`
	TotalSold         int       `json:"total_sold"`
	IsBestSeller      bool      `json:"is_best_seller"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LowStock reports whether stock has reached the alert threshold.
func (p Product) LowStock() bool {
	return p.LowStockThreshold > 0 && p.Stock <= p.LowStockThreshold
}
