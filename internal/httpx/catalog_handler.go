package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/rating"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

type Catalog interface {
	ListProducts(ctx context.Context) ([]catalog.Product, error)
	GetProduct(ctx context.Context, id int64) (catalog.Product, error)
}

type BestSellers interface {
	ListBestSellers(ctx context.Context) ([]rating.BestSeller, error)
}

type CatalogHandler struct {
	Products    Catalog
	BestSellers BestSellers
	RDB         redis.Cmdable // optional best seller cache
	Log         logrus.FieldLogger
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/best-sellers", h.bestSellers)
	r.Get("/products/{id}", h.get)
}

func (h *CatalogHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if ps == nil {
		ps = []catalog.Product{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CatalogHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Products.GetProduct(ctx, id)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) bestSellers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.RDB != nil {
		var cached []rating.BestSeller
		ok, err := redisx.GetJSON(ctx, h.RDB, redisx.KeyBestSellers, &cached)
		if err != nil {
			h.Log.WithError(err).Warn("best seller cache read failed")
		}
		if ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	// 2) store
	list, err := h.BestSellers.ListBestSellers(ctx)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	if h.RDB != nil {
		if err := redisx.SetJSON(ctx, h.RDB, redisx.KeyBestSellers, list, redisx.TTLBestSellers); err != nil {
			h.Log.WithError(err).Warn("best seller cache write failed")
		}
	}
	writeJSON(w, http.StatusOK, list)
}
