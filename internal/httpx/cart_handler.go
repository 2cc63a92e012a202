package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/cart"
)

// CartStore is implemented by *cart.Repo.
type CartStore interface {
	GetCartItems(ctx context.Context, userID int64) ([]cart.Line, error)
	AddItem(ctx context.Context, userID, productID int64, qty int) error
	UpdateQuantity(ctx context.Context, userID, itemID int64, qty int) error
	RemoveItem(ctx context.Context, userID, itemID int64) error
	ClearCart(ctx context.Context, userID int64) error
}

type CartHandler struct {
	Carts CartStore
	Log   logrus.FieldLogger
}

func (h *CartHandler) Register(r chi.Router) {
	r.Get("/cart", h.get)
	r.Delete("/cart", h.clear)
	r.Post("/cart/items", h.add)
	r.Patch("/cart/items/{itemID}", h.update)
	r.Delete("/cart/items/{itemID}", h.remove)
}

type cartView struct {
	Items []cart.Line `json:"items"`
	Total int64       `json:"total"`
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	lines, err := h.Carts.GetCartItems(ctx, actorFrom(ctx).UserID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	v := cartView{Items: lines}
	if v.Items == nil {
		v.Items = []cart.Line{}
	}
	for _, l := range lines {
		v.Total += l.Subtotal()
	}
	writeJSON(w, http.StatusOK, v)
}

type addItemReq struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.AddItem(ctx, actorFrom(ctx).UserID, req.ProductID, req.Quantity); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

type updateItemReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	itemID, err := idParam(r, "itemID")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var req updateItemReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.UpdateQuantity(ctx, actorFrom(ctx).UserID, itemID, req.Quantity); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	itemID, err := idParam(r, "itemID")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.RemoveItem(ctx, actorFrom(ctx).UserID, itemID); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.Carts.ClearCart(ctx, actorFrom(ctx).UserID); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
