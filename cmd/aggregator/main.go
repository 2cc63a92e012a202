package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-shop-orders/internal/config"
	"github.com/ariefcatur/go-shop-orders/internal/logx"
	"github.com/ariefcatur/go-shop-orders/internal/postgres"
	"github.com/ariefcatur/go-shop-orders/internal/rating"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

// With AGGREGATE_INTERVAL=0 the job runs once and exits; otherwise it runs
// on the interval and serves /metrics on HTTP_ADDR.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logx.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName+"-aggregator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	agg := &rating.Aggregator{Store: &rating.PgStore{Pool: db}, RDB: rdb, Log: log}

	if cfg.AggregateInterval <= 0 {
		if err := agg.RunOnce(ctx); err != nil {
			log.WithError(err).Fatal("aggregation failed")
		}
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return agg.Run(gctx, cfg.AggregateInterval)
	})
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("aggregator stopped")
	}
}
