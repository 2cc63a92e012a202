package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// API assembles the public and authenticated routes.
type API struct {
	Service  string
	Log      logrus.FieldLogger
	Sessions Sessions
	Orders   *OrdersHandler
	Cart     *CartHandler
	Catalog  *CatalogHandler
	Webhook  *WebhookHandler
}

func (a *API) Handler() http.Handler {
	r := NewRouter(a.Service, a.Log)
	a.Catalog.Register(r)
	a.Webhook.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(Authenticate(a.Sessions, a.Log))
		a.Cart.Register(r)
		a.Orders.Register(r)
	})
	return r
}
