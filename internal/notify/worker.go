package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/metrics"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

// Worker consumes notification envelopes and delivers them by mail.
type Worker struct {
	Mailer Mailer
	RDB    redis.Cmdable // optional; skips events already delivered
	Log    logrus.FieldLogger
}

// Handle is a kafka.Handler. Undecodable or unknown events are logged and
// committed; delivery failures are returned so the consumer retries the
// message before moving past it.
func (w *Worker) Handle(ctx context.Context, m kafka.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		w.Log.WithError(err).WithField("offset", m.Offset).Error("bad envelope, skipping")
		return nil
	}
	if env.EventType == "" {
		env.EventType = kafkax.HeaderValue(m, kafkax.HeaderEventType)
	}
	log := w.Log.WithField("event_id", env.EventID).WithField("event_type", env.EventType)

	key := fmt.Sprintf(redisx.KeyDedup, "notification", env.EventID)
	if w.RDB != nil {
		seen, err := redisx.Exists(ctx, w.RDB, key)
		if err != nil {
			log.WithError(err).Warn("dedup lookup failed")
		}
		if seen {
			log.Debug("duplicate event, skipping")
			return nil
		}
	}

	msg, ok, err := w.render(env)
	if err != nil {
		log.WithError(err).Error("bad payload, skipping")
		return nil
	}
	if !ok {
		log.Warn("unknown event type, skipping")
		return nil
	}

	err = w.Mailer.Send(ctx, msg)
	metrics.NotificationsTotal.WithLabelValues(env.EventType, "deliver", metrics.Outcome(err)).Inc()
	if errors.Is(err, ErrInvalidMessage) {
		log.WithError(err).Error("undeliverable message, skipping")
		return nil
	}
	if err != nil {
		return err
	}
	if w.RDB != nil {
		if _, err := redisx.SetOnce(ctx, w.RDB, key, redisx.TTLDedup); err != nil {
			log.WithError(err).Warn("dedup mark failed")
		}
	}
	log.WithField("to", msg.To).Info("notification delivered")
	return nil
}

func (w *Worker) render(env orders.Envelope) (Message, bool, error) {
	if env.EventType == orders.EventLowStock {
		n, err := kafkax.UnwrapPayload[orders.LowStockNotice](env.Payload)
		if err != nil {
			return Message{}, false, err
		}
		return renderLowStock(n), true, nil
	}
	n, err := kafkax.UnwrapPayload[orders.OrderNotice](env.Payload)
	if err != nil {
		return Message{}, false, err
	}
	msg, ok := renderOrder(env.EventType, n)
	return msg, ok, nil
}
