package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
)

// memState is the in-memory database behind memStore.
type memState struct {
	products map[int64]catalog.Product
	carts    map[int64][]cartEntry
	orders   map[int64]Order
	items    map[int64][]OrderItem
	refunds  map[int64]memRefund
	nextID   int64
}

type memRefund struct {
	refunded bool
	payload  json.RawMessage
	at       time.Time
}

type cartEntry struct {
	ProductID int64
	Quantity  int
}

func (s memState) clone() memState {
	c := memState{
		products: map[int64]catalog.Product{},
		carts:    map[int64][]cartEntry{},
		orders:   map[int64]Order{},
		items:    map[int64][]OrderItem{},
		refunds:  map[int64]memRefund{},
		nextID:   s.nextID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = append([]cartEntry(nil), v...)
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]OrderItem(nil), v...)
	}
	for k, v := range s.refunds {
		c.refunds[k] = v
	}
	return c
}

// memStore is a transactional in-memory Store. InTx serialises callers and
// restores the previous state when fn fails.
type memStore struct {
	mu    sync.Mutex
	state memState
	now   func() time.Time

	failIncrement map[int64]bool
	failClearCart bool
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		state:         memState{}.clone(),
		now:           now,
		failIncrement: map[int64]bool{},
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	if err := fn(s.bind(false)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *memStore) Repos() Tx { return s.bind(true) }

func (s *memStore) bind(lock bool) Tx {
	r := &memRepo{s: s, lock: lock}
	return Tx{Stock: r, Carts: r, Orders: r}
}

func (s *memStore) addProduct(id int64, name string, price int64, stock, threshold int) {
	s.state.products[id] = catalog.Product{ID: id, Name: name, Price: price, Stock: stock, LowStockThreshold: threshold}
}

func (s *memStore) addToCart(userID, productID int64, qty int) {
	s.state.carts[userID] = append(s.state.carts[userID], cartEntry{ProductID: productID, Quantity: qty})
}

func (s *memStore) stock(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.products[id].Stock
}

func (s *memStore) order(id int64) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.orders[id]
}

func (s *memStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *memStore) cartLen(userID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.carts[userID])
}

// seedOrder stores an order with items as if it had been checked out at createdAt.
func (s *memStore) seedOrder(o Order, items ...OrderItem) Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.nextID++
	o.ID = s.state.nextID
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.RefundStatus == "" {
		o.RefundStatus = RefundNone
	}
	for i := range items {
		s.state.nextID++
		items[i].ID = s.state.nextID
		items[i].OrderID = o.ID
		o.TotalPrice += items[i].Subtotal()
	}
	s.state.orders[o.ID] = o
	s.state.items[o.ID] = items
	return o
}

type memRepo struct {
	s    *memStore
	lock bool
}

func (r *memRepo) st() (*memState, func()) {
	if r.lock {
		r.s.mu.Lock()
		return &r.s.state, r.s.mu.Unlock
	}
	return &r.s.state, func() {}
}

func (r *memRepo) DecrementStock(_ context.Context, id int64, qty int) error {
	st, done := r.st()
	defer done()
	p, ok := st.products[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if p.Stock < qty {
		return &apperr.InsufficientStockError{ProductID: id, Name: p.Name, Requested: qty, Available: p.Stock}
	}
	p.Stock -= qty
	st.products[id] = p
	return nil
}

func (r *memRepo) IncrementStock(_ context.Context, id int64, qty int) error {
	st, done := r.st()
	defer done()
	if r.s.failIncrement[id] {
		return errors.New("connection reset")
	}
	p, ok := st.products[id]
	if !ok {
		return apperr.ErrNotFound
	}
	p.Stock += qty
	st.products[id] = p
	return nil
}

func (r *memRepo) LowStock(_ context.Context, ids []int64) ([]catalog.Product, error) {
	st, done := r.st()
	defer done()
	var out []catalog.Product
	for _, id := range ids {
		if p := st.products[id]; p.LowStock() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memRepo) LockCartItems(_ context.Context, userID int64) ([]cart.Line, error) {
	st, done := r.st()
	defer done()
	var out []cart.Line
	for i, e := range st.carts[userID] {
		p := st.products[e.ProductID]
		out = append(out, cart.Line{
			ItemID: int64(i + 1), ProductID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock, Quantity: e.Quantity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

func (r *memRepo) ClearCart(_ context.Context, userID int64) error {
	st, done := r.st()
	defer done()
	if r.s.failClearCart {
		return errors.New("cart_items locked")
	}
	delete(st.carts, userID)
	return nil
}

func (r *memRepo) Insert(_ context.Context, o *Order) error {
	st, done := r.st()
	defer done()
	st.nextID++
	o.ID = st.nextID
	o.CreatedAt = r.s.now()
	o.UpdatedAt = o.CreatedAt
	st.orders[o.ID] = *o
	return nil
}

func (r *memRepo) InsertItems(_ context.Context, orderID int64, items []OrderItem) error {
	st, done := r.st()
	defer done()
	for _, it := range items {
		st.nextID++
		it.ID = st.nextID
		it.OrderID = orderID
		st.items[orderID] = append(st.items[orderID], it)
	}
	return nil
}

func (r *memRepo) Get(_ context.Context, id int64) (Order, error) {
	st, done := r.st()
	defer done()
	o, ok := st.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d: %w", id, apperr.ErrNotFound)
	}
	return o, nil
}

func (r *memRepo) GetForUpdate(ctx context.Context, id int64) (Order, error) { return r.Get(ctx, id) }

func (r *memRepo) Items(_ context.Context, orderID int64) ([]OrderItem, error) {
	st, done := r.st()
	defer done()
	return append([]OrderItem(nil), st.items[orderID]...), nil
}

func (r *memRepo) ListByUser(_ context.Context, userID int64) ([]Order, error) {
	st, done := r.st()
	defer done()
	out := []Order{}
	for _, o := range st.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) ListAll(_ context.Context) ([]Order, error) {
	st, done := r.st()
	defer done()
	out := []Order{}
	for _, o := range st.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memRepo) update(id int64, fn func(o *Order)) error {
	st, done := r.st()
	defer done()
	o, ok := st.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, apperr.ErrNotFound)
	}
	fn(&o)
	st.orders[id] = o
	return nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id int64, s Status) error {
	return r.update(id, func(o *Order) { o.Status = s })
}

func (r *memRepo) UpdatePayment(_ context.Context, id int64, u PaymentUpdate) error {
	return r.update(id, func(o *Order) {
		o.PaymentStatus = u.PaymentStatus
		if u.TransactionID != "" {
			o.TransactionID = u.TransactionID
		}
		if u.PaymentType != "" {
			o.PaymentType = u.PaymentType
		}
	})
}

func (r *memRepo) SetGatewayOrderID(_ context.Context, id int64, gatewayOrderID string) error {
	return r.update(id, func(o *Order) { o.GatewayOrderID = gatewayOrderID })
}

func (r *memRepo) ClaimRefund(_ context.Context, id int64, at, staleBefore time.Time) (bool, error) {
	st, done := r.st()
	defer done()
	if cur, ok := st.refunds[id]; ok && (cur.refunded || !cur.at.Before(staleBefore)) {
		return false, nil
	}
	st.refunds[id] = memRefund{at: at}
	return true, nil
}

func (r *memRepo) ReleaseRefund(_ context.Context, id int64) error {
	st, done := r.st()
	defer done()
	if cur, ok := st.refunds[id]; ok && !cur.refunded {
		delete(st.refunds, id)
	}
	return nil
}

func (r *memRepo) SaveRefund(_ context.Context, id int64, payload json.RawMessage) error {
	st, done := r.st()
	cur, ok := st.refunds[id]
	if !ok || cur.refunded {
		done()
		return fmt.Errorf("order %d has no open refund claim", id)
	}
	st.refunds[id] = memRefund{refunded: true, payload: payload, at: cur.at}
	done()
	return r.update(id, func(o *Order) { o.RefundStatus = RefundRefunded })
}

// Collaborator fakes.

type fakeGateway struct {
	mu        sync.Mutex
	refundErr error
	refunds   []string
	intents   []PaymentIntentRequest
	status    PaymentResult
}

func (g *fakeGateway) CreateIntent(_ context.Context, req PaymentIntentRequest) (PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents = append(g.intents, req)
	return PaymentIntent{Token: "tok", RedirectURL: "https://pay.example/tok", GatewayOrderID: fmt.Sprintf("ORDER-%d-1", req.OrderID)}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, gatewayOrderID string) (PaymentResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.status
	r.GatewayOrderID = gatewayOrderID
	return r, nil
}

func (g *fakeGateway) Refund(_ context.Context, ref string, amount int64, _ string) (RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return RefundResult{}, g.refundErr
	}
	g.refunds = append(g.refunds, ref)
	return RefundResult{Data: json.RawMessage(fmt.Sprintf(`{"status_code":"200","refund_amount":%d}`, amount))}, nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type sent struct {
	Kind   string
	Notice OrderNotice
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sent
	low  []LowStockNotice
	err  error
}

func (n *fakeNotifier) record(kind string, o OrderNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{Kind: kind, Notice: o})
	return n.err
}

func (n *fakeNotifier) NotifyOrderConfirmation(_ context.Context, o OrderNotice) error {
	return n.record(EventOrderConfirmation, o)
}
func (n *fakeNotifier) NotifyStatusChange(_ context.Context, o OrderNotice) error {
	return n.record(EventStatusChanged, o)
}
func (n *fakeNotifier) NotifyAdminCancellation(_ context.Context, o OrderNotice) error {
	return n.record(EventAdminCancellation, o)
}
func (n *fakeNotifier) NotifyAdminRefund(_ context.Context, o OrderNotice) error {
	return n.record(EventAdminRefund, o)
}
func (n *fakeNotifier) NotifyCustomerRefund(_ context.Context, o OrderNotice) error {
	return n.record(EventCustomerRefund, o)
}
func (n *fakeNotifier) NotifyLowStock(_ context.Context, l LowStockNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.low = append(n.low, l)
	return n.err
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type fakeDirectory struct{}

func (fakeDirectory) Customer(_ context.Context, userID int64) (Customer, error) {
	return Customer{ID: userID, Name: "Budi", Email: fmt.Sprintf("user%d@example.com", userID)}, nil
}

func (fakeDirectory) AdminEmails(context.Context) ([]string, error) {
	return []string{"admin@example.com", "ops@example.com"}, nil
}

// fakeCache keeps the last order written per id.
type fakeCache struct {
	mu   sync.Mutex
	puts map[int64]Order
}

func (c *fakeCache) Put(_ context.Context, o Order) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.puts == nil {
		c.puts = map[int64]Order{}
	}
	c.puts[o.ID] = o
	return nil
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (c *fakeCache) get(id int64) Order {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts[id]
}
