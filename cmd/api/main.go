package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-orders/internal/cart"
	"github.com/ariefcatur/go-shop-orders/internal/catalog"
	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-orders/internal/kafka"
	"github.com/ariefcatur/go-shop-orders/internal/logx"
	"github.com/ariefcatur/go-shop-orders/internal/notify"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/payment/midtrans"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/rating"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
	"github.com/ariefcatur/go-shop-orders/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logx.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer
	prod := kafkax.NewProducer(cfg.Brokers(), orders.TopicNotification, 1024, log)
	prod.Start(ctx)

	gateway := midtrans.New(midtrans.Config{
		ServerKey:  cfg.MidtransServerKey,
		Production: cfg.MidtransProduction,
		Timeout:    cfg.MidtransTimeout,
	}, log)
	statusCache := &orders.RedisStatusCache{RDB: rdb}

	engine := &orders.Engine{
		Store:               &orders.PgStore{Pool: db},
		Gateway:             gateway,
		Notifier:            &notify.Dispatcher{Pub: prod, Producer: cfg.ServiceName, Log: log},
		Directory:           users.NewRepo(db),
		Cache:               statusCache,
		Log:                 log,
		CancelWindow:        cfg.CancelWindow,
		PaymentContactPhone: cfg.PaymentContactPhone,
	}

	api := &httpx.API{
		Service:  cfg.ServiceName,
		Log:      log,
		Sessions: httpx.RedisSessions{RDB: rdb},
		Orders:   &httpx.OrdersHandler{Engine: engine, Status: statusCache, Log: log},
		Cart:     &httpx.CartHandler{Carts: cart.NewRepo(db), Log: log},
		Catalog: &httpx.CatalogHandler{
			Products:    catalog.NewRepo(db),
			BestSellers: &rating.PgStore{Pool: db},
			RDB:         rdb,
			Log:         log,
		},
		Webhook: &httpx.WebhookHandler{Engine: engine, Verifier: gateway, RDB: rdb, Log: log},
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Handler(), ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // stop accepting, flush buffered notifications
	prod.WaitClosed() // writer closed
}
