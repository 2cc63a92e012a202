package midtrans

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

// Notification is a Midtrans HTTP notification or status response body.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	StatusMessage     string `json:"status_message,omitempty"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status,omitempty"`
	TransactionID     string `json:"transaction_id"`
	PaymentType       string `json:"payment_type"`
}

func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: notification body: %v", apperr.ErrValidation, err)
	}
	if n.OrderID == "" || n.TransactionStatus == "" {
		return Notification{}, fmt.Errorf("%w: notification missing order_id or transaction_status", apperr.ErrValidation)
	}
	return n, nil
}

// Signature computes SHA512(order_id + status_code + gross_amount + server_key).
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks a notification against the client's server key.
func (c *Client) VerifySignature(n Notification) error {
	if c.serverKey == "" || n.SignatureKey == "" {
		return apperr.ErrInvalidSignature
	}
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, c.serverKey)
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) != 1 {
		return apperr.ErrInvalidSignature
	}
	return nil
}

// MapStatus translates a Midtrans transaction state into an order status.
// Unknown states leave the order pending.
func MapStatus(transactionStatus, fraudStatus string) orders.Status {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "challenge" {
			return orders.StatusPending
		}
		return orders.StatusProcessing
	case "settlement":
		return orders.StatusProcessing
	case "cancel", "deny", "expire":
		return orders.StatusCancelled
	default:
		return orders.StatusPending
	}
}

// ParseOrderID extracts the internal order id from ORDER-{id}-{millis}.
func ParseOrderID(gatewayOrderID string) (int64, error) {
	parts := strings.Split(gatewayOrderID, "-")
	if len(parts) != 3 || parts[0] != "ORDER" {
		return 0, fmt.Errorf("%w: gateway order id %q", apperr.ErrValidation, gatewayOrderID)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: gateway order id %q", apperr.ErrValidation, gatewayOrderID)
	}
	return id, nil
}

// Result converts the notification into the engine's payment result.
func (n Notification) Result() (orders.PaymentResult, error) {
	id, err := ParseOrderID(n.OrderID)
	if err != nil {
		return orders.PaymentResult{}, err
	}
	res := orders.PaymentResult{
		OrderID:           id,
		GatewayOrderID:    n.OrderID,
		OrderStatus:       MapStatus(n.TransactionStatus, n.FraudStatus),
		TransactionStatus: n.TransactionStatus,
		TransactionID:     n.TransactionID,
		PaymentType:       n.PaymentType,
	}
	if n.GrossAmount != "" {
		amt, err := decimal.NewFromString(n.GrossAmount)
		if err != nil {
			return orders.PaymentResult{}, fmt.Errorf("%w: gross_amount %q", apperr.ErrValidation, n.GrossAmount)
		}
		res.GrossAmount = amt
	}
	return res, nil
}
