//go:build integration

package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/postgres/pgtest"
)

func seedCatalog(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	pgtest.Exec(t, pool, `INSERT INTO users(id, name, email) VALUES (7, 'Budi', 'budi@example.com'), (8, 'Sari', 'sari@example.com')`)
	pgtest.Exec(t, pool, `INSERT INTO products(id, name, price, stock) VALUES (1, 'Kopi', 10000, 5), (2, 'Teh', 5000, 9)`)
}

func TestAddItemMergesQuantity(t *testing.T) {
	pool := pgtest.Start(t)
	seedCatalog(t, pool)
	ctx := context.Background()
	r := NewRepo(pool)

	for _, q := range []int{2, 3} {
		if err := r.AddItem(ctx, 7, 1, q); err != nil {
			t.Fatalf("add item: %v", err)
		}
	}
	if err := r.AddItem(ctx, 7, 2, 1); err != nil {
		t.Fatalf("add item: %v", err)
	}

	lines, err := r.GetCartItems(ctx, 7)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(lines) != 2 || lines[0].ProductID != 1 || lines[0].Quantity != 5 || lines[1].Quantity != 1 {
		t.Fatalf("unexpected lines %+v", lines)
	}
	if lines[0].Price != 10000 || lines[0].Stock != 5 {
		t.Fatalf("expected live product fields, got %+v", lines[0])
	}

	if err := r.AddItem(ctx, 7, 404, 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing product, got %v", err)
	}
	if err := r.AddItem(ctx, 7, 1, 0); !errors.Is(err, apperr.ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got %v", err)
	}
}

func TestItemChangesAreScopedToOwner(t *testing.T) {
	pool := pgtest.Start(t)
	seedCatalog(t, pool)
	ctx := context.Background()
	r := NewRepo(pool)

	_ = r.AddItem(ctx, 7, 1, 1)
	_ = r.AddItem(ctx, 8, 2, 1)
	mine, _ := r.GetCartItems(ctx, 7)
	theirs, _ := r.GetCartItems(ctx, 8)

	if err := r.UpdateQuantity(ctx, 7, theirs[0].ItemID, 4); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected foreign update rejected, got %v", err)
	}
	if err := r.RemoveItem(ctx, 7, theirs[0].ItemID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected foreign remove rejected, got %v", err)
	}

	if err := r.UpdateQuantity(ctx, 7, mine[0].ItemID, 4); err != nil {
		t.Fatalf("update own item: %v", err)
	}
	mine, _ = r.GetCartItems(ctx, 7)
	if mine[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", mine[0].Quantity)
	}
	if err := r.RemoveItem(ctx, 7, mine[0].ItemID); err != nil {
		t.Fatalf("remove own item: %v", err)
	}
	if mine, _ = r.GetCartItems(ctx, 7); len(mine) != 0 {
		t.Fatalf("expected empty cart, got %+v", mine)
	}
	if theirs, _ = r.GetCartItems(ctx, 8); len(theirs) != 1 || theirs[0].Quantity != 1 {
		t.Fatalf("expected other cart untouched, got %+v", theirs)
	}
}

func TestClearCartOnlyEmptiesOwnCart(t *testing.T) {
	pool := pgtest.Start(t)
	seedCatalog(t, pool)
	ctx := context.Background()
	r := NewRepo(pool)

	_ = r.AddItem(ctx, 7, 1, 1)
	_ = r.AddItem(ctx, 7, 2, 2)
	_ = r.AddItem(ctx, 8, 1, 1)

	if err := r.ClearCart(ctx, 7); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if lines, _ := r.GetCartItems(ctx, 7); len(lines) != 0 {
		t.Fatalf("expected cleared cart, got %+v", lines)
	}
	if lines, _ := r.GetCartItems(ctx, 8); len(lines) != 1 {
		t.Fatalf("expected other cart kept, got %+v", lines)
	}
	if err := r.ClearCart(ctx, 99); err != nil {
		t.Fatalf("clearing a missing cart: %v", err)
	}
}

func TestLockCartItemsWithoutCart(t *testing.T) {
	pool := pgtest.Start(t)
	seedCatalog(t, pool)

	lines, err := NewRepo(pool).LockCartItems(context.Background(), 7)
	if err != nil || len(lines) != 0 {
		t.Fatalf("expected no lines, got %+v (%v)", lines, err)
	}
}
