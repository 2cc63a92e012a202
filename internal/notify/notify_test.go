package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type published struct {
	key     []byte
	value   []byte
	headers []kafka.Header
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(key, value []byte, headers ...kafka.Header) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{key: key, value: value, headers: headers})
	return nil
}

type fakeMailer struct {
	sent []Message
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func pid(id int64) *int64 { return &id }

var notice = orders.OrderNotice{
	Recipients: []string{"budi@example.com"},
	OrderID:    42,
	Status:     orders.StatusPending,
	Total:      20000,
	Items:      []orders.OrderItem{{ProductID: pid(1), ProductName: "Kopi Arabika", Price: 10000, Quantity: 2}},
}

func TestDispatcherPublishesEnvelope(t *testing.T) {
	pub := &fakePublisher{}
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d := &Dispatcher{Pub: pub, Producer: "shop-api", Log: quietLogger(), Now: func() time.Time { return at }}

	ctx := WithCorrelationID(context.Background(), "req-1")
	if err := d.NotifyOrderConfirmation(ctx, notice); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.msgs))
	}
	m := pub.msgs[0]
	if string(m.key) != "42" {
		t.Fatalf("expected order id key, got %q", m.key)
	}
	if len(m.headers) != 1 || string(m.headers[0].Value) != orders.EventOrderConfirmation {
		t.Fatalf("unexpected headers %+v", m.headers)
	}

	var env orders.Envelope
	if err := json.Unmarshal(m.value, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.EventID == "" || env.EventType != orders.EventOrderConfirmation || env.Producer != "shop-api" ||
		env.CorrelationID != "req-1" || !env.OccurredAt.Equal(at) || env.EventVersion != 1 {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestDispatcherReportsPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("kafka producer buffer full")}
	d := &Dispatcher{Pub: pub, Log: quietLogger()}

	if err := d.NotifyLowStock(context.Background(), orders.LowStockNotice{}); err == nil {
		t.Fatal("expected error")
	}
}

func envelopeMessage(t *testing.T, eventType string, payload any) kafka.Message {
	t.Helper()
	body, _ := json.Marshal(payload)
	value, _ := json.Marshal(orders.Envelope{EventID: "e-1", EventType: eventType, Payload: body})
	return kafka.Message{Value: value}
}

func TestWorkerDeliversEachEventType(t *testing.T) {
	tests := []struct {
		eventType string
		subject   string
	}{
		{orders.EventOrderConfirmation, "Order #42 confirmed"},
		{orders.EventStatusChanged, "Order #42 is now pending"},
		{orders.EventAdminCancellation, "[admin] Order #42 cancelled"},
		{orders.EventAdminRefund, "[admin] Order #42 refunded"},
		{orders.EventCustomerRefund, "Refund for order #42"},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			mailer := &fakeMailer{}
			w := &Worker{Mailer: mailer, Log: quietLogger()}

			if err := w.Handle(context.Background(), envelopeMessage(t, tt.eventType, notice)); err != nil {
				t.Fatalf("handle: %v", err)
			}
			if len(mailer.sent) != 1 {
				t.Fatalf("expected 1 mail, got %d", len(mailer.sent))
			}
			got := mailer.sent[0]
			if got.Subject != tt.subject || got.To[0] != "budi@example.com" {
				t.Fatalf("unexpected mail %+v", got)
			}
			if !strings.Contains(got.Body, "Kopi Arabika x2") || !strings.Contains(got.Body, "Total: Rp 20.000") {
				t.Fatalf("unexpected body %q", got.Body)
			}
		})
	}
}

func TestWorkerLowStock(t *testing.T) {
	mailer := &fakeMailer{}
	w := &Worker{Mailer: mailer, Log: quietLogger()}
	n := orders.LowStockNotice{
		Recipients: []string{"admin@example.com"},
		Products:   []orders.LowStockItem{{ProductID: 1, Name: "Kopi", Stock: 2, Threshold: 5}},
	}

	if err := w.Handle(context.Background(), envelopeMessage(t, orders.EventLowStock, n)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(mailer.sent) != 1 || !strings.Contains(mailer.sent[0].Body, "Kopi: 2 left (threshold 5)") {
		t.Fatalf("unexpected mail %+v", mailer.sent)
	}
}

func TestWorkerSkipsBadMessagesAndRetriesDeliveryFailures(t *testing.T) {
	mailer := &fakeMailer{}
	w := &Worker{Mailer: mailer, Log: quietLogger()}

	if err := w.Handle(context.Background(), kafka.Message{Value: []byte("not json")}); err != nil {
		t.Fatalf("expected bad envelope to be skipped, got %v", err)
	}
	if err := w.Handle(context.Background(), envelopeMessage(t, "Unknown", notice)); err != nil {
		t.Fatalf("expected unknown event to be skipped, got %v", err)
	}
	if len(mailer.sent) != 0 {
		t.Fatal("expected nothing delivered")
	}

	mailer.err = errors.New("smtp: connection refused")
	if err := w.Handle(context.Background(), envelopeMessage(t, orders.EventStatusChanged, notice)); err == nil {
		t.Fatal("expected delivery failure to be returned")
	}
}

func TestRupiah(t *testing.T) {
	t.Parallel()

	for in, want := range map[int64]string{
		0:        "Rp 0",
		999:      "Rp 999",
		1000:     "Rp 1.000",
		20000:    "Rp 20.000",
		1234567:  "Rp 1.234.567",
		-150000:  "-Rp 150.000",
		10000000: "Rp 10.000.000",
	} {
		if got := Rupiah(in); got != want {
			t.Fatalf("%d: expected %q, got %q", in, want, got)
		}
	}
}

func TestSMTPMailerMessage(t *testing.T) {
	s := &SMTPMailer{From: "no-reply@shop.local"}
	msg, err := s.message(Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Pesanan #42 – dikonfirmasi",
		Body:    "Total: Rp 20.000",
	})
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	raw := buf.String()
	if !strings.Contains(raw, "a@example.com") || !strings.Contains(raw, "b@example.com") {
		t.Fatalf("expected both recipients, got %q", raw)
	}
	if !strings.Contains(raw, "Subject: =?UTF-8?") || strings.Contains(raw, "–") {
		t.Fatalf("expected encoded subject, got %q", raw)
	}

	if _, err := s.message(Message{To: []string{"not an address"}}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestWorkerSkipsUndeliverableMessage(t *testing.T) {
	mailer := &fakeMailer{err: fmt.Errorf("%w: to [x]: bad address", ErrInvalidMessage)}
	w := &Worker{Mailer: mailer, Log: quietLogger()}

	if err := w.Handle(context.Background(), envelopeMessage(t, orders.EventStatusChanged, notice)); err != nil {
		t.Fatalf("expected undeliverable message to be skipped, got %v", err)
	}
}
