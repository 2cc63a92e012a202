package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
)

type StockStore interface {
	DecrementStock(ctx context.Context, productID int64, qty int) error
	IncrementStock(ctx context.Context, productID int64, qty int) error
	LowStock(ctx context.Context, ids []int64) ([]catalog.Product, error)
}

type CartStore interface {
	LockCartItems(ctx context.Context, userID int64) ([]cart.Line, error)
	ClearCart(ctx context.Context, userID int64) error
}

type OrderStore interface {
	Insert(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, orderID int64, items []OrderItem) error
	Get(ctx context.Context, id int64) (Order, error)
	GetForUpdate(ctx context.Context, id int64) (Order, error)
	Items(ctx context.Context, orderID int64) ([]OrderItem, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	ListAll(ctx context.Context) ([]Order, error)
	UpdateStatus(ctx context.Context, id int64, s Status) error
	UpdatePayment(ctx context.Context, id int64, u PaymentUpdate) error
	SetGatewayOrderID(ctx context.Context, id int64, gatewayOrderID string) error
	ClaimRefund(ctx context.Context, id int64, at, staleBefore time.Time) (bool, error)
	ReleaseRefund(ctx context.Context, id int64) error
	SaveRefund(ctx context.Context, id int64, payload json.RawMessage) error
}

// Tx groups the stores bound to one unit of work.
type Tx struct {
	Stock  StockStore
	Carts  CartStore
	Orders OrderStore
}

type Store interface {
	// InTx runs fn in one transaction, committed only when fn returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// Repos returns stores bound to the pool for reads and single-statement writes.
	Repos() Tx
}

type PgStore struct{ Pool *pgxpool.Pool }

func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return postgres.WithTx(ctx, s.Pool, func(tx pgx.Tx) error {
		return fn(bind(tx))
	})
}

func (s *PgStore) Repos() Tx { return bind(s.Pool) }

func bind(db postgres.DBTX) Tx {
	return Tx{
		Stock:  catalog.NewRepo(db),
		Carts:  cart.NewRepo(db),
		Orders: NewRepo(db),
	}
}
