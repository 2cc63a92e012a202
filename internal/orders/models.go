package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID             int64        `json:"id"`
	UserID         int64        `json:"user_id"`
	TotalPrice     int64        `json:"total_price"`
	Status         Status       `json:"status"`
	PaymentStatus  string       `json:"payment_status"`
	RefundStatus   RefundStatus `json:"refund_status"`
	GatewayOrderID string       `json:"gateway_order_id,omitempty"`
	TransactionID  string       `json:"transaction_id,omitempty"`
	PaymentType    string       `json:"payment_type,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	Items          []OrderItem  `json:"items,omitempty"`
}

// OrderItem is a snapshot taken at checkout. ProductID is nil once the
// product has been deleted from the catalog.
type OrderItem struct {
	ID          int64  `json:"id"`
	OrderID     int64  `json:"order_id"`
	ProductID   *int64 `json:"product_id"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
}

func (i OrderItem) Subtotal() int64 { return i.Price * int64(i.Quantity) }

type Refund struct {
	OrderID   int64           `json:"order_id"`
	Refunded  bool            `json:"refunded"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// PaymentUpdate is what a gateway notification writes onto an order.
type PaymentUpdate struct {
	PaymentStatus string
	TransactionID string
	PaymentType   string
}

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	UserID int64 `json:"user_id"`
	Role   Role  `json:"role"`
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type Customer struct {
	ID    int64
	Name  string
	Email string
	Phone string
}

type CheckoutResult struct {
	OrderID     int64  `json:"order_id"`
	TotalPrice  int64  `json:"total_price"`
	PaymentLink string `json:"payment_link"`
}

// Gateway contract types.

type PaymentIntentRequest struct {
	OrderID  int64
	Amount   int64
	Customer Customer
	Items    []OrderItem
}

type PaymentIntent struct {
	Token          string `json:"token"`
	RedirectURL    string `json:"redirect_url"`
	GatewayOrderID string `json:"gateway_order_id"`
}

// PaymentResult is a gateway notification or status check translated into
// the internal vocabulary.
type PaymentResult struct {
	OrderID           int64
	GatewayOrderID    string
	OrderStatus       Status
	TransactionStatus string
	TransactionID     string
	PaymentType       string
	GrossAmount       decimal.Decimal
}

// MatchesTotal reports whether the gateway charged exactly the order total.
func (r PaymentResult) MatchesTotal(total int64) bool {
	return r.GrossAmount.Equal(decimal.NewFromInt(total))
}

type RefundResult struct {
	Data json.RawMessage
}
