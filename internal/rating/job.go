package rating

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/metrics"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

type Store interface {
	RecomputeRatings(ctx context.Context) (int, error)
	BestSellerCandidates(ctx context.Context) ([]Candidate, error)
	ReplaceBestSellers(ctx context.Context, ranked []Ranked) error
}

// Aggregator is the batch job behind cmd/aggregator.
type Aggregator struct {
	Store Store
	RDB   redis.Cmdable // optional; the cached best seller list is dropped after a run
	Log   logrus.FieldLogger
}

func (a *Aggregator) RecomputeRatings(ctx context.Context) (err error) {
	defer func() { metrics.AggregatorRuns.WithLabelValues("ratings", metrics.Outcome(err)).Inc() }()

	start := time.Now()
	n, err := a.Store.RecomputeRatings(ctx)
	if err != nil {
		return err
	}
	a.Log.WithField("products", n).WithField("took", time.Since(start)).Info("ratings recomputed")
	return nil
}

func (a *Aggregator) RecomputeBestSellers(ctx context.Context) (ranked []Ranked, err error) {
	defer func() { metrics.AggregatorRuns.WithLabelValues("best_sellers", metrics.Outcome(err)).Inc() }()

	cands, err := a.Store.BestSellerCandidates(ctx)
	if err != nil {
		return nil, err
	}
	ranked = Rank(cands)
	if err := a.Store.ReplaceBestSellers(ctx, ranked); err != nil {
		return nil, err
	}
	if a.RDB != nil {
		if err := a.RDB.Del(ctx, redisx.KeyBestSellers).Err(); err != nil {
			a.Log.WithError(err).Warn("best seller cache invalidation failed")
		}
	}
	a.Log.WithField("candidates", len(cands)).WithField("ranked", len(ranked)).Info("best sellers recomputed")
	return ranked, nil
}

// RunOnce recomputes ratings and then the best seller list from them.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	if err := a.RecomputeRatings(ctx); err != nil {
		return err
	}
	_, err := a.RecomputeBestSellers(ctx)
	return err
}

// Run calls RunOnce immediately and then every interval until ctx is done.
// Failed runs are logged and retried on the next tick.
func (a *Aggregator) Run(ctx context.Context, interval time.Duration) error {
	if err := a.RunOnce(ctx); err != nil {
		a.Log.WithError(err).Error("aggregation failed")
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if err := a.RunOnce(ctx); err != nil {
				a.Log.WithError(err).Error("aggregation failed")
			}
		}
	}
}
