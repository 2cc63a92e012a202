package notify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// Rupiah formats an integer amount as "Rp 20.000".
func Rupiah(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	s := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-Rp " + b.String()
	}
	return "Rp " + b.String()
}

func itemLines(items []orders.OrderItem) string {
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "- %s x%d @ %s = %s\n", it.ProductName, it.Quantity, Rupiah(it.Price), Rupiah(it.Subtotal()))
	}
	return b.String()
}

func renderOrder(eventType string, n orders.OrderNotice) (Message, bool) {
	var subject, intro string
	switch eventType {
	case orders.EventOrderConfirmation:
		subject = fmt.Sprintf("Order #%d confirmed", n.OrderID)
		intro = "Thank you for your order. We have reserved these items for you:"
	case orders.EventStatusChanged:
		subject = fmt.Sprintf("Order #%d is now %s", n.OrderID, n.Status)
		intro = fmt.Sprintf("The status of your order changed to %s.", n.Status)
	case orders.EventAdminCancellation:
		subject = fmt.Sprintf("[admin] Order #%d cancelled", n.OrderID)
		intro = "An order was cancelled and its stock restored."
	case orders.EventAdminRefund:
		subject = fmt.Sprintf("[admin] Order #%d refunded", n.OrderID)
		intro = "A refund was processed through the payment gateway."
	case orders.EventCustomerRefund:
		subject = fmt.Sprintf("Refund for order #%d", n.OrderID)
		intro = "Your payment has been refunded."
	default:
		return Message{}, false
	}

	var b strings.Builder
	b.WriteString(intro)
	b.WriteString("\n\n")
	b.WriteString(itemLines(n.Items))
	fmt.Fprintf(&b, "\nTotal: %s\n", Rupiah(n.Total))
	if n.Reason != "" {
		fmt.Fprintf(&b, "Reason: %s\n", n.Reason)
	}
	return Message{To: n.Recipients, Subject: subject, Body: b.String()}, true
}

func renderLowStock(n orders.LowStockNotice) Message {
	var b strings.Builder
	b.WriteString("These products reached their low stock threshold:\n\n")
	for _, p := range n.Products {
		fmt.Fprintf(&b, "- #%d %s: %d left (threshold %d)\n", p.ProductID, p.Name, p.Stock, p.Threshold)
	}
	return Message{
		To:      n.Recipients,
		Subject: fmt.Sprintf("[admin] Low stock on %d product(s)", len(n.Products)),
		Body:    b.String(),
	}
}
