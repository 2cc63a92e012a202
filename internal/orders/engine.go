package orders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/metrics"
)

const DefaultCancelWindow = 10 * time.Minute

type Gateway interface {
	CreateIntent(ctx context.Context, req PaymentIntentRequest) (PaymentIntent, error)
	CheckStatus(ctx context.Context, gatewayOrderID string) (PaymentResult, error)
	Refund(ctx context.Context, transactionRef string, amount int64, reason string) (RefundResult, error)
}

// Notifier delivers transactional messages. Errors are logged by the engine
// and never change the outcome of an operation.
type Notifier interface {
	NotifyOrderConfirmation(ctx context.Context, n OrderNotice) error
	NotifyStatusChange(ctx context.Context, n OrderNotice) error
	NotifyAdminCancellation(ctx context.Context, n OrderNotice) error
	NotifyAdminRefund(ctx context.Context, n OrderNotice) error
	NotifyCustomerRefund(ctx context.Context, n OrderNotice) error
	NotifyLowStock(ctx context.Context, n LowStockNotice) error
}

type Directory interface {
	Customer(ctx context.Context, userID int64) (Customer, error)
	AdminEmails(ctx context.Context) ([]string, error)
}

type StatusCache interface {
	Put(ctx context.Context, o Order) error
}

// Engine owns order creation, stock reservation and restoration, status
// transitions and payment/refund orchestration.
type Engine struct {
	Store     Store
	Gateway   Gateway
	Notifier  Notifier
	Directory Directory
	Cache     StatusCache // optional
	Log       logrus.FieldLogger

	CancelWindow        time.Duration
	PaymentContactPhone string
	Now                 func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) cancelWindow() time.Duration {
	if e.CancelWindow > 0 {
		return e.CancelWindow
	}
	return DefaultCancelWindow
}

// Checkout converts the user's cart into a pending order. Prices come from
// the catalog at call time. Order, items, stock decrements and the cart
// clear commit together or not at all.
func (e *Engine) Checkout(ctx context.Context, userID int64) (res CheckoutResult, err error) {
	defer func() { metrics.OrdersTotal.WithLabelValues("checkout", metrics.Outcome(err)).Inc() }()

	var (
		order    Order
		items    []OrderItem
		lowStock []LowStockItem
	)
	err = e.Store.InTx(ctx, func(tx Tx) error {
		lines, err := tx.Carts.LockCartItems(ctx, userID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.ErrEmptyCart
		}

		var total int64
		for _, l := range lines {
			if l.Quantity <= 0 {
				return apperr.ErrInvalidQuantity
			}
			if l.Stock < l.Quantity {
				return &apperr.InsufficientStockError{
					ProductID: l.ProductID, Name: l.Name, Requested: l.Quantity, Available: l.Stock,
				}
			}
			total += l.Subtotal()
		}

		order = Order{
			UserID:       userID,
			TotalPrice:   total,
			Status:       StatusPending,
			RefundStatus: RefundNone,
		}
		if err := tx.Orders.Insert(ctx, &order); err != nil {
			return err
		}

		items = make([]OrderItem, 0, len(lines))
		ids := make([]int64, 0, len(lines))
		for _, l := range lines {
			pid := l.ProductID
			items = append(items, OrderItem{
				OrderID: order.ID, ProductID: &pid, ProductName: l.Name, Price: l.Price, Quantity: l.Quantity,
			})
			ids = append(ids, l.ProductID)
		}
		if err := tx.Orders.InsertItems(ctx, order.ID, items); err != nil {
			return err
		}
		for _, l := range lines {
			if err := tx.Stock.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}
		if err := tx.Carts.ClearCart(ctx, userID); err != nil {
			return err
		}

		low, err := tx.Stock.LowStock(ctx, ids)
		if err != nil {
			return err
		}
		for _, p := range low {
			lowStock = append(lowStock, LowStockItem{ProductID: p.ID, Name: p.Name, Stock: p.Stock, Threshold: p.LowStockThreshold})
		}
		return nil
	})
	if err != nil {
		return CheckoutResult{}, apperr.TxFailed(err)
	}

	log := e.Log.WithField("order_id", order.ID).WithField("user_id", userID)
	log.WithField("total", order.TotalPrice).Info("order created")

	order.Items = items
	e.cache(ctx, order)
	e.notifyCustomer(ctx, order, "", e.Notifier.NotifyOrderConfirmation)
	if len(lowStock) > 0 {
		e.notifyLowStock(ctx, lowStock)
	}

	return CheckoutResult{
		OrderID:     order.ID,
		TotalPrice:  order.TotalPrice,
		PaymentLink: e.paymentLink(order),
	}, nil
}

func (e *Engine) paymentLink(o Order) string {
	msg := fmt.Sprintf("Hello, I would like to pay for order #%d with a total of %d.", o.ID, o.TotalPrice)
	return fmt.Sprintf("https://wa.me/%s?text=%s", e.PaymentContactPhone, url.QueryEscape(msg))
}

// restoreStock returns every item's quantity to its product. Items whose
// product was deleted are skipped.
func restoreStock(ctx context.Context, tx Tx, items []OrderItem) error {
	for _, it := range items {
		if it.ProductID == nil {
			continue
		}
		if err := tx.Stock.IncrementStock(ctx, *it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("restore product %d: %w", *it.ProductID, err)
		}
	}
	return nil
}

func restoredUnits(items []OrderItem) int {
	n := 0
	for _, it := range items {
		if it.ProductID != nil {
			n += it.Quantity
		}
	}
	return n
}

// cancelLocked restores stock and marks the locked order cancelled.
func cancelLocked(ctx context.Context, tx Tx, o *Order) error {
	items, err := tx.Orders.Items(ctx, o.ID)
	if err != nil {
		return err
	}
	if err := restoreStock(ctx, tx, items); err != nil {
		return err
	}
	if err := tx.Orders.UpdateStatus(ctx, o.ID, StatusCancelled); err != nil {
		return err
	}
	o.Status = StatusCancelled
	o.Items = items
	return nil
}

// SetStatus writes a new status as an administrator. Moving into cancelled
// restores stock in the same transaction; repeating the current status is a
// no-op, so a cancelled order is never restored twice.
func (e *Engine) SetStatus(ctx context.Context, orderID int64, status Status, actor Actor) (err error) {
	defer func() { metrics.OrdersTotal.WithLabelValues("set_status", metrics.Outcome(err)).Inc() }()

	if !actor.IsAdmin() {
		return apperr.ErrNotAllowed
	}
	if !status.AdminSettable() {
		return fmt.Errorf("%q: %w", status, apperr.ErrInvalidStatus)
	}

	var (
		order   Order
		changed bool
	)
	err = e.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		if o.Status == status {
			return nil
		}
		if !CanTransition(o.Status, status) {
			return fmt.Errorf("%s -> %s: %w", o.Status, status, apperr.ErrInvalidTransition)
		}
		changed = true
		if status == StatusCancelled {
			return cancelLocked(ctx, tx, &order)
		}
		if err := tx.Orders.UpdateStatus(ctx, o.ID, status); err != nil {
			return err
		}
		order.Status = status
		return nil
	})
	if err != nil {
		return apperr.TxFailed(err)
	}
	if !changed {
		return nil
	}

	e.Log.WithField("order_id", orderID).WithField("status", status).Info("order status updated")
	e.afterStatusChange(ctx, order)
	if status == StatusCancelled {
		metrics.StockRestoredUnits.Add(float64(restoredUnits(order.Items)))
		e.notifyAdmins(ctx, order, "cancelled by administrator", e.Notifier.NotifyAdminCancellation)
	}
	return nil
}

// Cancel cancels an order and restores its stock. Customers may cancel their
// own pending orders inside the cancellation window; administrators may
// cancel any order that is not already terminal. A captured payment is
// refunded after the cancellation has committed.
func (e *Engine) Cancel(ctx context.Context, orderID int64, actor Actor) (err error) {
	defer func() { metrics.OrdersTotal.WithLabelValues("cancel", metrics.Outcome(err)).Inc() }()

	var order Order
	err = e.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := e.authorizeCancel(o, actor); err != nil {
			return err
		}
		order = o
		return cancelLocked(ctx, tx, &order)
	})
	if err != nil {
		return apperr.TxFailed(err)
	}

	log := e.Log.WithField("order_id", orderID).WithField("user_id", actor.UserID)
	log.Info("order cancelled")
	metrics.StockRestoredUnits.Add(float64(restoredUnits(order.Items)))
	e.cache(ctx, order)

	if PaymentCaptured(order.PaymentStatus) && order.TransactionID != "" {
		e.refundAfterCancel(ctx, order)
	}
	e.notifyAdmins(ctx, order, "cancelled", e.Notifier.NotifyAdminCancellation)
	return nil
}

func (e *Engine) authorizeCancel(o Order, actor Actor) error {
	if o.Status.Terminal() {
		return fmt.Errorf("order is %s: %w", o.Status, apperr.ErrNotAllowed)
	}
	if actor.IsAdmin() {
		return nil
	}
	if o.UserID != actor.UserID {
		return apperr.ErrNotAllowed
	}
	if o.Status != StatusPending {
		return fmt.Errorf("order is %s: %w", o.Status, apperr.ErrNotAllowed)
	}
	if e.now().Sub(o.CreatedAt) > e.cancelWindow() {
		return apperr.ErrWindowExpired
	}
	return nil
}

// refundClaimTTL bounds how long a refund claim blocks others; it outlives
// any gateway call.
const refundClaimTTL = 5 * time.Minute

var errRefundClaimed = fmt.Errorf("order already refunded or refund in progress: %w", apperr.ErrInvalidTransition)

// refundPayment claims the order's refund slot, calls the gateway and records
// the result together with finish in one transaction. A refused refund
// releases the claim. No transaction is open during the gateway call.
func (e *Engine) refundPayment(ctx context.Context, o Order, reason string, finish func(tx Tx) error) error {
	repo := e.Store.Repos().Orders
	now := e.now()
	ok, err := repo.ClaimRefund(ctx, o.ID, now, now.Add(-refundClaimTTL))
	if err != nil {
		return apperr.TxFailed(err)
	}
	if !ok {
		return errRefundClaimed
	}

	res, err := e.Gateway.Refund(ctx, o.TransactionID, o.TotalPrice, reason)
	if err != nil {
		if rerr := repo.ReleaseRefund(ctx, o.ID); rerr != nil {
			e.Log.WithError(rerr).WithField("order_id", o.ID).Warn("release refund claim")
		}
		return fmt.Errorf("%w: %v", apperr.ErrRefundFailed, err)
	}

	err = e.Store.InTx(ctx, func(tx Tx) error {
		if err := tx.Orders.SaveRefund(ctx, o.ID, res.Data); err != nil {
			return err
		}
		if finish != nil {
			return finish(tx)
		}
		return nil
	})
	if err != nil {
		e.Log.WithError(err).WithField("order_id", o.ID).Error("refund succeeded but could not be recorded")
		return apperr.TxFailed(err)
	}
	return nil
}

// refundAfterCancel runs after the cancellation committed; failures are
// logged only.
func (e *Engine) refundAfterCancel(ctx context.Context, o Order) {
	log := e.Log.WithField("order_id", o.ID).WithField("transaction_id", o.TransactionID)

	if err := e.refundPayment(ctx, o, "order cancelled", nil); err != nil {
		log.WithError(err).Warn("refund after cancellation failed")
		return
	}
	o.RefundStatus = RefundRefunded
	log.Info("order refunded after cancellation")
	e.cache(ctx, o)
	e.notifyCustomer(ctx, o, "order cancelled", e.Notifier.NotifyCustomerRefund)
	e.notifyAdmins(ctx, o, "order cancelled", e.Notifier.NotifyAdminRefund)
}

// Refund refunds a paid order through the gateway and marks it refunded.
// Stock is left untouched. At most one refund per order reaches the gateway.
func (e *Engine) Refund(ctx context.Context, orderID int64, actor Actor) (err error) {
	defer func() { metrics.OrdersTotal.WithLabelValues("refund", metrics.Outcome(err)).Inc() }()

	if !actor.IsAdmin() {
		return apperr.ErrNotAllowed
	}
	o, err := e.Store.Repos().Orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if o.TransactionID == "" {
		return apperr.ErrNoPaymentReference
	}
	if o.RefundStatus == RefundRefunded || o.Status == StatusRefunded {
		return errRefundClaimed
	}
	if !PaymentCaptured(o.PaymentStatus) {
		return fmt.Errorf("payment is %q: %w", o.PaymentStatus, apperr.ErrInvalidTransition)
	}

	err = e.refundPayment(ctx, o, "refund by administrator", func(tx Tx) error {
		return tx.Orders.UpdateStatus(ctx, orderID, StatusRefunded)
	})
	if err != nil {
		return err
	}

	o.Status = StatusRefunded
	o.RefundStatus = RefundRefunded
	e.Log.WithField("order_id", orderID).Info("order refunded")
	e.cache(ctx, o)
	e.notifyCustomer(ctx, o, "refund by administrator", e.Notifier.NotifyCustomerRefund)
	e.notifyAdmins(ctx, o, "refund by administrator", e.Notifier.NotifyAdminRefund)
	return nil
}

// CreatePayment opens a gateway payment for a pending order owned by actor.
func (e *Engine) CreatePayment(ctx context.Context, orderID int64, actor Actor) (PaymentIntent, error) {
	repo := e.Store.Repos().Orders
	o, err := repo.Get(ctx, orderID)
	if err != nil {
		return PaymentIntent{}, err
	}
	if !actor.IsAdmin() && o.UserID != actor.UserID {
		return PaymentIntent{}, apperr.ErrNotAllowed
	}
	if o.Status != StatusPending || PaymentCaptured(o.PaymentStatus) {
		return PaymentIntent{}, fmt.Errorf("order is %s: %w", o.Status, apperr.ErrInvalidTransition)
	}
	items, err := repo.Items(ctx, orderID)
	if err != nil {
		return PaymentIntent{}, err
	}
	cust, err := e.Directory.Customer(ctx, o.UserID)
	if err != nil {
		return PaymentIntent{}, err
	}

	intent, err := e.Gateway.CreateIntent(ctx, PaymentIntentRequest{
		OrderID: o.ID, Amount: o.TotalPrice, Customer: cust, Items: items,
	})
	if err != nil {
		if !errors.Is(err, apperr.ErrGateway) {
			err = fmt.Errorf("%w: %v", apperr.ErrGateway, err)
		}
		return PaymentIntent{}, err
	}
	if err := repo.SetGatewayOrderID(ctx, o.ID, intent.GatewayOrderID); err != nil {
		return PaymentIntent{}, err
	}
	e.Log.WithField("order_id", o.ID).WithField("gateway_order_id", intent.GatewayOrderID).Info("payment created")
	return intent, nil
}

// ApplyPaymentResult records a gateway state on the order and moves the
// order status forward. A result mapped to cancelled cancels the order with
// stock restoration; results that would move an order backwards only update
// the payment fields. Results from an earlier payment attempt, results that
// would overwrite a captured payment with an uncaptured one and captures of
// the wrong amount never move the order. A capture that lands on a cancelled
// order is refunded.
func (e *Engine) ApplyPaymentResult(ctx context.Context, res PaymentResult) (err error) {
	defer func() { metrics.OrdersTotal.WithLabelValues("payment_result", metrics.Outcome(err)).Inc() }()

	log := e.Log.WithField("order_id", res.OrderID).
		WithField("gateway_order_id", res.GatewayOrderID).
		WithField("transaction_status", res.TransactionStatus)

	var (
		order    Order
		changed  bool
		recorded bool
		ignored  string
		captured = PaymentCaptured(res.TransactionStatus)
	)
	err = e.Store.InTx(ctx, func(tx Tx) error {
		o, err := tx.Orders.GetForUpdate(ctx, res.OrderID)
		if err != nil {
			return err
		}
		order = o
		switch {
		case res.GatewayOrderID != "" && o.GatewayOrderID != "" && res.GatewayOrderID != o.GatewayOrderID:
			ignored = "result for a superseded payment attempt"
			return nil
		case PaymentCaptured(o.PaymentStatus) && !captured:
			ignored = "payment already captured"
			return nil
		}

		if err := tx.Orders.UpdatePayment(ctx, o.ID, PaymentUpdate{
			PaymentStatus: res.TransactionStatus,
			TransactionID: res.TransactionID,
			PaymentType:   res.PaymentType,
		}); err != nil {
			return err
		}
		recorded = true
		order.PaymentStatus = res.TransactionStatus
		if res.TransactionID != "" {
			order.TransactionID = res.TransactionID
		}

		if captured && !res.MatchesTotal(o.TotalPrice) {
			ignored = "captured amount does not match order total"
			return nil
		}
		if !CanTransition(o.Status, res.OrderStatus) || res.OrderStatus == StatusRefunded {
			return nil
		}
		changed = true
		if res.OrderStatus == StatusCancelled {
			return cancelLocked(ctx, tx, &order)
		}
		if err := tx.Orders.UpdateStatus(ctx, o.ID, res.OrderStatus); err != nil {
			return err
		}
		order.Status = res.OrderStatus
		return nil
	})
	if err != nil {
		return apperr.TxFailed(err)
	}

	switch {
	case ignored != "":
		entry := log.WithField("gross_amount", res.GrossAmount.String()).WithField("total", order.TotalPrice)
		if captured {
			entry.Error("captured payment not applied: " + ignored)
		} else {
			entry.Warn("payment result not applied: " + ignored)
		}
	case !changed:
		e.cache(ctx, order)
		log.Info("payment status recorded")
	default:
		log.WithField("status", order.Status).Info("order status updated from payment")
		e.afterStatusChange(ctx, order)
		if order.Status == StatusCancelled {
			metrics.StockRestoredUnits.Add(float64(restoredUnits(order.Items)))
			e.notifyAdmins(ctx, order, "payment "+res.TransactionStatus, e.Notifier.NotifyAdminCancellation)
		}
	}

	if recorded && captured && order.Status == StatusCancelled &&
		order.RefundStatus != RefundRefunded && order.TransactionID != "" {
		e.refundAfterCancel(ctx, order)
	}
	return nil
}

// SyncPaymentStatus asks the gateway for the current transaction state and
// applies it like a notification.
func (e *Engine) SyncPaymentStatus(ctx context.Context, orderID int64, actor Actor) (Order, error) {
	o, err := e.GetOrder(ctx, orderID, actor)
	if err != nil {
		return Order{}, err
	}
	if o.GatewayOrderID == "" {
		return Order{}, apperr.ErrNoPaymentReference
	}
	res, err := e.Gateway.CheckStatus(ctx, o.GatewayOrderID)
	if err != nil {
		return Order{}, err
	}
	res.OrderID = o.ID
	if err := e.ApplyPaymentResult(ctx, res); err != nil {
		return Order{}, err
	}
	return e.GetOrder(ctx, orderID, actor)
}

// GetOrder returns the order with its items to its owner or an administrator.
func (e *Engine) GetOrder(ctx context.Context, orderID int64, actor Actor) (Order, error) {
	repo := e.Store.Repos().Orders
	o, err := repo.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !actor.IsAdmin() && o.UserID != actor.UserID {
		return Order{}, apperr.ErrNotAllowed
	}
	o.Items, err = repo.Items(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// ListOrders returns the actor's orders, or every order for an administrator.
func (e *Engine) ListOrders(ctx context.Context, actor Actor) ([]Order, error) {
	repo := e.Store.Repos().Orders
	if actor.IsAdmin() {
		return repo.ListAll(ctx)
	}
	return repo.ListByUser(ctx, actor.UserID)
}

func (e *Engine) afterStatusChange(ctx context.Context, o Order) {
	e.cache(ctx, o)
	e.notifyCustomer(ctx, o, "", e.Notifier.NotifyStatusChange)
}

func (e *Engine) cache(ctx context.Context, o Order) {
	if e.Cache == nil {
		return
	}
	if err := e.Cache.Put(ctx, o); err != nil {
		e.Log.WithError(err).WithField("order_id", o.ID).Warn("status cache write failed")
	}
}

func (e *Engine) notice(ctx context.Context, o Order, reason string) OrderNotice {
	items := o.Items
	if items == nil {
		var err error
		if items, err = e.Store.Repos().Orders.Items(ctx, o.ID); err != nil {
			e.Log.WithError(err).WithField("order_id", o.ID).Warn("load items for notification")
		}
	}
	return OrderNotice{OrderID: o.ID, Status: o.Status, Total: o.TotalPrice, Items: items, Reason: reason}
}

func (e *Engine) notifyCustomer(ctx context.Context, o Order, reason string, send func(context.Context, OrderNotice) error) {
	log := e.Log.WithField("order_id", o.ID).WithField("user_id", o.UserID)
	cust, err := e.Directory.Customer(ctx, o.UserID)
	if err != nil {
		log.WithError(err).Warn("customer lookup for notification failed")
		return
	}
	n := e.notice(ctx, o, reason)
	n.Recipients = []string{cust.Email}
	if err := send(ctx, n); err != nil {
		log.WithError(err).Warn("customer notification failed")
	}
}

func (e *Engine) notifyAdmins(ctx context.Context, o Order, reason string, send func(context.Context, OrderNotice) error) {
	log := e.Log.WithField("order_id", o.ID)
	admins, err := e.Directory.AdminEmails(ctx)
	if err != nil {
		log.WithError(err).Warn("admin lookup for notification failed")
		return
	}
	if len(admins) == 0 {
		return
	}
	n := e.notice(ctx, o, reason)
	n.Recipients = admins
	if err := send(ctx, n); err != nil {
		log.WithError(err).Warn("admin notification failed")
	}
}

func (e *Engine) notifyLowStock(ctx context.Context, items []LowStockItem) {
	admins, err := e.Directory.AdminEmails(ctx)
	if err != nil {
		e.Log.WithError(err).Warn("admin lookup for low stock failed")
		return
	}
	if len(admins) == 0 {
		return
	}
	if err := e.Notifier.NotifyLowStock(ctx, LowStockNotice{Recipients: admins, Products: items}); err != nil {
		e.Log.WithError(err).Warn("low stock notification failed")
	}
}
