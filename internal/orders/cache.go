package orders

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

// StatusView is the cached answer for order status lookups.
type StatusView struct {
	OrderID       int64        `json:"order_id"`
	UserID        int64        `json:"user_id"`
	Status        Status       `json:"status"`
	PaymentStatus string       `json:"payment_status"`
	RefundStatus  RefundStatus `json:"refund_status"`
}

type RedisStatusCache struct{ RDB redis.Cmdable }

func (c *RedisStatusCache) Put(ctx context.Context, o Order) error {
	return redisx.SetJSON(ctx, c.RDB, statusKey(o.ID), StatusView{
		OrderID: o.ID, UserID: o.UserID, Status: o.Status, PaymentStatus: o.PaymentStatus, RefundStatus: o.RefundStatus,
	}, redisx.TTLStatusCache)
}

func (c *RedisStatusCache) Get(ctx context.Context, orderID int64) (StatusView, bool, error) {
	var v StatusView
	ok, err := redisx.GetJSON(ctx, c.RDB, statusKey(orderID), &v)
	return v, ok, err
}

func statusKey(id int64) string { return fmt.Sprintf(redisx.KeyOrderStatus, id) }
