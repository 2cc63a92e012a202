package midtrans

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/metrics"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
)

const (
	sandboxSnapURL    = "https://app.sandbox.midtrans.com"
	sandboxAPIURL     = "https://api.sandbox.midtrans.com"
	productionSnapURL = "https://app.midtrans.com"
	productionAPIURL  = "https://api.midtrans.com"

	maxItemName = 50
)

type Config struct {
	ServerKey  string
	Production bool
	Timeout    time.Duration

	// SnapURL and APIURL override the environment's base URLs.
	SnapURL string
	APIURL  string
}

// Client is the Midtrans payment gateway adapter. Calls are made once with
// the configured timeout and go through a circuit breaker.
type Client struct {
	http      *resty.Client
	breaker   *gobreaker.CircuitBreaker
	serverKey string
	snapURL   string
	apiURL    string
	log       logrus.FieldLogger
	now       func() time.Time
}

var _ orders.Gateway = (*Client)(nil)

func New(cfg Config, log logrus.FieldLogger) *Client {
	snapURL, apiURL := sandboxSnapURL, sandboxAPIURL
	if cfg.Production {
		snapURL, apiURL = productionSnapURL, productionAPIURL
	}
	if cfg.SnapURL != "" {
		snapURL = cfg.SnapURL
	}
	if cfg.APIURL != "" {
		apiURL = cfg.APIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: resty.New().
			SetTimeout(timeout).
			SetRetryCount(0).
			SetBasicAuth(cfg.ServerKey, "").
			SetHeader("Accept", "application/json").
			SetHeader("Content-Type", "application/json"),
		breaker:   newBreaker("midtrans", log),
		serverKey: cfg.ServerKey,
		snapURL:   snapURL,
		apiURL:    apiURL,
		log:       log,
		now:       time.Now,
	}
}

type transactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type customerDetails struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

type itemDetail struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type snapRequest struct {
	TransactionDetails transactionDetails `json:"transaction_details"`
	CustomerDetails    customerDetails    `json:"customer_details"`
	ItemDetails        []itemDetail       `json:"item_details"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

// GatewayOrderID is the order id sent to Midtrans: ORDER-{id}-{unix millis}.
func GatewayOrderID(orderID int64, at time.Time) string {
	return fmt.Sprintf("ORDER-%d-%d", orderID, at.UnixMilli())
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func (c *Client) CreateIntent(ctx context.Context, req orders.PaymentIntentRequest) (orders.PaymentIntent, error) {
	gid := GatewayOrderID(req.OrderID, c.now())
	body := snapRequest{
		TransactionDetails: transactionDetails{OrderID: gid, GrossAmount: req.Amount},
		CustomerDetails: customerDetails{
			FirstName: req.Customer.Name, Email: req.Customer.Email, Phone: req.Customer.Phone,
		},
	}
	for _, it := range req.Items {
		id := "deleted"
		if it.ProductID != nil {
			id = strconv.FormatInt(*it.ProductID, 10)
		}
		body.ItemDetails = append(body.ItemDetails, itemDetail{
			ID: id, Price: it.Price, Quantity: it.Quantity, Name: truncate(it.ProductName, maxItemName),
		})
	}

	var out snapResponse
	err := c.call(ctx, "create_intent", &out, func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(body).Post(c.snapURL + "/snap/v1/transactions")
	})
	if err != nil {
		return orders.PaymentIntent{}, err
	}
	if out.Token == "" {
		return orders.PaymentIntent{}, fmt.Errorf("%w: midtrans returned no token %v", apperr.ErrGateway, out.ErrorMessages)
	}
	c.log.WithField("order_id", req.OrderID).WithField("gateway_order_id", gid).Info("midtrans transaction created")
	return orders.PaymentIntent{Token: out.Token, RedirectURL: out.RedirectURL, GatewayOrderID: gid}, nil
}

func (c *Client) CheckStatus(ctx context.Context, gatewayOrderID string) (orders.PaymentResult, error) {
	var n Notification
	err := c.call(ctx, "check_status", &n, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", gatewayOrderID).Get(c.apiURL + "/v2/{id}/status")
	})
	if err != nil {
		return orders.PaymentResult{}, err
	}
	if code, _ := strconv.Atoi(n.StatusCode); code >= 400 && code != 407 {
		return orders.PaymentResult{}, fmt.Errorf("%w: midtrans status %s: %s", apperr.ErrGateway, n.StatusCode, n.StatusMessage)
	}
	if n.OrderID == "" {
		n.OrderID = gatewayOrderID
	}
	return n.Result()
}

type refundRequest struct {
	RefundKey string `json:"refund_key"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

type refundResponse struct {
	StatusCode    string `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

// RefundKey is stable per transaction so a repeated refund request is
// recognised by the gateway instead of paying out twice.
func RefundKey(transactionRef string) string { return "refund-" + transactionRef }

// Refund refunds amount on the transaction identified by transactionRef.
func (c *Client) Refund(ctx context.Context, transactionRef string, amount int64, reason string) (orders.RefundResult, error) {
	var raw json.RawMessage
	err := c.call(ctx, "refund", &raw, func(r *resty.Request) (*resty.Response, error) {
		return r.SetPathParam("id", transactionRef).
			SetBody(refundRequest{
				RefundKey: RefundKey(transactionRef),
				Amount:    amount,
				Reason:    reason,
			}).
			Post(c.apiURL + "/v2/{id}/refund")
	})
	if err != nil {
		return orders.RefundResult{}, err
	}
	var res refundResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return orders.RefundResult{}, fmt.Errorf("%w: decode refund: %v", apperr.ErrGateway, err)
	}
	if res.StatusCode != "200" {
		return orders.RefundResult{}, fmt.Errorf("%w: midtrans refund %s: %s", apperr.ErrGateway, res.StatusCode, res.StatusMessage)
	}
	c.log.WithField("transaction_id", transactionRef).WithField("amount", amount).Info("midtrans refund accepted")
	return orders.RefundResult{Data: raw}, nil
}

// call runs one request through the breaker and decodes a 2xx body into out.
func (c *Client) call(ctx context.Context, op string, out any, send func(*resty.Request) (*resty.Response, error)) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := send(c.http.R().SetContext(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
			return nil, fmt.Errorf("midtrans returned status %d: %s", resp.StatusCode(), resp.String())
		}
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return nil, nil
	})
	metrics.GatewayCalls.WithLabelValues(op, metrics.Outcome(err)).Inc()
	if err != nil {
		c.log.WithError(err).WithField("operation", op).Warn("midtrans call failed")
		return fmt.Errorf("%w: %s: %v", apperr.ErrGateway, op, breakerError("midtrans", err))
	}
	return nil
}
