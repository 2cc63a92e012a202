package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/payment/midtrans"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

type SignatureVerifier interface {
	VerifySignature(n midtrans.Notification) error
}

// WebhookHandler receives Midtrans payment notifications. It always answers
// 200 so the gateway does not retry deliveries the service chose to drop.
type WebhookHandler struct {
	Engine   OrderEngine
	Verifier SignatureVerifier
	RDB      redis.Cmdable // optional; drops repeated deliveries
	Log      logrus.FieldLogger
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/payments/midtrans/notification", h.notification)
}

const maxNotificationBytes = 64 << 10

func (h *WebhookHandler) notification(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	outcome := h.process(ctx, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": outcome})
}

func (h *WebhookHandler) process(ctx context.Context, r *http.Request) string {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		h.Log.WithError(err).Warn("read notification")
		return "ignored"
	}
	n, err := midtrans.ParseNotification(body)
	if err != nil {
		h.Log.WithError(err).Warn("malformed notification")
		return "ignored"
	}
	log := h.Log.WithField("gateway_order_id", n.OrderID).WithField("transaction_status", n.TransactionStatus)

	if err := h.Verifier.VerifySignature(n); err != nil {
		log.WithError(err).Warn("notification signature rejected")
		return "ignored"
	}
	res, err := n.Result()
	if err != nil {
		log.WithError(err).Warn("notification not for a known order")
		return "ignored"
	}

	ref := n.TransactionID
	if ref == "" {
		ref = n.OrderID
	}
	key := fmt.Sprintf(redisx.KeyDedup, "webhook", ref+":"+n.TransactionStatus)
	if h.RDB != nil {
		first, err := redisx.SetOnce(ctx, h.RDB, key, redisx.TTLDedup)
		if err != nil {
			log.WithError(err).Warn("webhook dedup unavailable")
		} else if !first {
			log.Info("duplicate notification")
			return "duplicate"
		}
	}

	if err := h.Engine.ApplyPaymentResult(ctx, res); err != nil {
		log.WithError(err).WithField("kind", apperr.Kind(err)).Error("apply payment result")
		if h.RDB != nil && !errors.Is(err, apperr.ErrNotFound) {
			// a later delivery of the same state is applied again
			_ = h.RDB.Del(ctx, key).Err()
		}
		return "failed"
	}
	return "ok"
}
