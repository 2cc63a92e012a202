package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// rank orders the fulfilment path. Terminal statuses have no rank.
var rank = map[Status]int{
	StatusPending:    1,
	StatusProcessing: 2,
	StatusShipped:    3,
	StatusDelivered:  4,
}

// AdminSettable reports whether an administrator may write s directly.
// StatusRefunded is only reachable through a refund.
func (s Status) AdminSettable() bool {
	_, ok := rank[s]
	return ok || s == StatusCancelled
}

func (s Status) Valid() bool { return s.AdminSettable() || s == StatusRefunded }

func (s Status) Terminal() bool { return s == StatusCancelled || s == StatusRefunded }

// CanTransition allows forward moves along the fulfilment path and
// cancellation from any non-terminal status.
func CanTransition(from, to Status) bool {
	if from.Terminal() || !to.Valid() || from == to {
		return false
	}
	if to == StatusCancelled || to == StatusRefunded {
		return true
	}
	return rank[to] > rank[from]
}

type RefundStatus string

const (
	RefundNone     RefundStatus = "none"
	RefundRefunded RefundStatus = "refunded"
)

// Gateway transaction states that mean funds were taken.
var capturedPayment = map[string]bool{
	"capture":    true,
	"settlement": true,
}

func PaymentCaptured(paymentStatus string) bool { return capturedPayment[paymentStatus] }
