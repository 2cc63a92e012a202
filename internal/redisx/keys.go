package redisx

import "time"

const (
	// Session written by the auth service: session:{token} -> {"user_id":..,"role":..}
	KeySession = "session:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "payment_status": "..."}
	KeyOrderStatus = "order_status:%d"

	// Dedup webhook: dedup:{scope}:{id}
	KeyDedup = "dedup:%s:%s"

	// Ranked best seller list as JSON.
	KeyBestSellers = "best_sellers"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLBestSellers = 1 * time.Hour
)
