package orders

import (
	"encoding/json"
	"strconv"
	"time"
)

const (
	EventOrderConfirmation = "OrderConfirmation"
	EventStatusChanged     = "StatusChanged"
	EventAdminCancellation = "AdminCancellation"
	EventAdminRefund       = "AdminRefund"
	EventCustomerRefund    = "CustomerRefund"
	EventLowStock          = "LowStock"
)

const TopicNotification = "order.notification"

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// OrderNotice is the payload of every order-scoped notification.
type OrderNotice struct {
	Recipients []string    `json:"recipients"`
	OrderID    int64       `json:"order_id"`
	Status     Status      `json:"status"`
	Total      int64       `json:"total"`
	Items      []OrderItem `json:"items"`
	Reason     string      `json:"reason,omitempty"`
}

type LowStockItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Stock     int    `json:"stock"`
	Threshold int    `json:"threshold"`
}

type LowStockNotice struct {
	Recipients []string       `json:"recipients"`
	Products   []LowStockItem `json:"products"`
}

// PartitionKey keeps every event of one order on one partition.
func PartitionKey(orderID int64) []byte {
	return strconv.AppendInt(nil, orderID, 10)
}
