package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/metrics"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// Publisher is satisfied by *kafka.Producer from internal/kafka.
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header) error
}

// Dispatcher turns engine notifications into envelopes on the notification
// topic. Publishing never blocks the caller; delivery happens in cmd/notifier.
type Dispatcher struct {
	Pub      Publisher
	Producer string
	Log      logrus.FieldLogger
	Now      func() time.Time
}

var _ orders.Notifier = (*Dispatcher)(nil)

func (d *Dispatcher) NotifyOrderConfirmation(ctx context.Context, n orders.OrderNotice) error {
	return d.publish(ctx, orders.EventOrderConfirmation, orders.PartitionKey(n.OrderID), n)
}

func (d *Dispatcher) NotifyStatusChange(ctx context.Context, n orders.OrderNotice) error {
	return d.publish(ctx, orders.EventStatusChanged, orders.PartitionKey(n.OrderID), n)
}

func (d *Dispatcher) NotifyAdminCancellation(ctx context.Context, n orders.OrderNotice) error {
	return d.publish(ctx, orders.EventAdminCancellation, orders.PartitionKey(n.OrderID), n)
}

func (d *Dispatcher) NotifyAdminRefund(ctx context.Context, n orders.OrderNotice) error {
	return d.publish(ctx, orders.EventAdminRefund, orders.PartitionKey(n.OrderID), n)
}

func (d *Dispatcher) NotifyCustomerRefund(ctx context.Context, n orders.OrderNotice) error {
	return d.publish(ctx, orders.EventCustomerRefund, orders.PartitionKey(n.OrderID), n)
}

func (d *Dispatcher) NotifyLowStock(ctx context.Context, n orders.LowStockNotice) error {
	return d.publish(ctx, orders.EventLowStock, []byte("low_stock"), n)
}

func (d *Dispatcher) publish(ctx context.Context, eventType string, key []byte, payload any) (err error) {
	defer func() { metrics.NotificationsTotal.WithLabelValues(eventType, "publish", metrics.Outcome(err)).Inc() }()

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      d.Producer,
		CorrelationID: correlationID(ctx),
		Payload:       body,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := d.Pub.Publish(key, value, kafkax.Header(kafkax.HeaderEventType, eventType)); err != nil {
		return err
	}
	d.Log.WithField("event_id", env.EventID).WithField("event_type", eventType).Debug("notification queued")
	return nil
}

type ctxKey struct{}

// WithCorrelationID tags notifications published under ctx, typically with
// the HTTP request id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
