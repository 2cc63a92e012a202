package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/notify"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// OrderEngine is implemented by *orders.Engine.
type OrderEngine interface {
	Checkout(ctx context.Context, userID int64) (orders.CheckoutResult, error)
	SetStatus(ctx context.Context, orderID int64, status orders.Status, actor orders.Actor) error
	Cancel(ctx context.Context, orderID int64, actor orders.Actor) error
	Refund(ctx context.Context, orderID int64, actor orders.Actor) error
	CreatePayment(ctx context.Context, orderID int64, actor orders.Actor) (orders.PaymentIntent, error)
	ApplyPaymentResult(ctx context.Context, res orders.PaymentResult) error
	SyncPaymentStatus(ctx context.Context, orderID int64, actor orders.Actor) (orders.Order, error)
	GetOrder(ctx context.Context, orderID int64, actor orders.Actor) (orders.Order, error)
	ListOrders(ctx context.Context, actor orders.Actor) ([]orders.Order, error)
}

// StatusReader serves cached status lookups; *orders.RedisStatusCache.
type StatusReader interface {
	Get(ctx context.Context, orderID int64) (orders.StatusView, bool, error)
	Put(ctx context.Context, o orders.Order) error
}

type OrdersHandler struct {
	Engine OrderEngine
	Status StatusReader // optional
	Log    logrus.FieldLogger
}

// Register mounts the order routes. r must already authenticate.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.status)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/orders/{id}/payment", h.createPayment)
	r.Post("/orders/{id}/payment/sync", h.syncPayment)

	r.Group(func(r chi.Router) {
		r.Use(RequireAdmin(h.Log))
		r.Patch("/orders/{id}/status", h.setStatus)
		r.Post("/orders/{id}/refund", h.refund)
	})
}

func (h *OrdersHandler) ctx(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := notify.WithCorrelationID(r.Context(), requestID(r))
	return context.WithTimeout(ctx, d)
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r, 10*time.Second)
	defer cancel()

	res, err := h.Engine.Checkout(ctx, actorFrom(ctx).UserID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.ctx(r, 3*time.Second)
	defer cancel()

	out, err := h.Engine.ListOrders(ctx, actorFrom(ctx))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r, 3*time.Second)
	defer cancel()

	o, err := h.Engine.GetOrder(ctx, id, actorFrom(ctx))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// status answers from the cache when possible and falls back to the store.
func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r, 3*time.Second)
	defer cancel()
	actor := actorFrom(ctx)

	if h.Status != nil {
		v, ok, err := h.Status.Get(ctx, id)
		if err != nil {
			h.Log.WithError(err).WithField("order_id", id).Warn("status cache read failed")
		}
		if ok && (actor.IsAdmin() || v.UserID == actor.UserID) {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}

	o, err := h.Engine.GetOrder(ctx, id, actor)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if h.Status != nil {
		if err := h.Status.Put(ctx, o); err != nil {
			h.Log.WithError(err).WithField("order_id", id).Warn("status cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, orders.StatusView{
		OrderID: o.ID, UserID: o.UserID, Status: o.Status, PaymentStatus: o.PaymentStatus, RefundStatus: o.RefundStatus,
	})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r, 15*time.Second)
	defer cancel()

	if err := h.Engine.Cancel(ctx, id, actorFrom(ctx)); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": orders.StatusCancelled})
}

type setStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	var req setStatusReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r, 5*time.Second)
	defer cancel()

	if err := h.Engine.SetStatus(ctx, id, req.Status, actorFrom(ctx)); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": req.Status})
}

func (h *OrdersHandler) refund(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r, 20*time.Second)
	defer cancel()

	if err := h.Engine.Refund(ctx, id, actorFrom(ctx)); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id": id, "status": orders.StatusRefunded, "refund_status": orders.RefundRefunded,
	})
}

func (h *OrdersHandler) createPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r, 15*time.Second)
	defer cancel()

	intent, err := h.Engine.CreatePayment(ctx, id, actorFrom(ctx))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (h *OrdersHandler) syncPayment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := h.ctx(r, 15*time.Second)
	defer cancel()

	o, err := h.Engine.SyncPaymentStatus(ctx, id, actorFrom(ctx))
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

var _ OrderEngine = (*orders.Engine)(nil)
