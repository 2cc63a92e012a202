package httpx

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-shop-orders/internal/apperr"
	"github.com/ariefcatur/go-shop-orders/internal/orders"
	"github.com/ariefcatur/go-shop-orders/internal/redisx"
)

// Sessions resolves a bearer token to the caller. Tokens are issued by the
// auth service, which writes them to redis.
type Sessions interface {
	Lookup(ctx context.Context, token string) (orders.Actor, bool, error)
}

type RedisSessions struct{ RDB redis.Cmdable }

func (s RedisSessions) Lookup(ctx context.Context, token string) (orders.Actor, bool, error) {
	var a orders.Actor
	ok, err := redisx.GetJSON(ctx, s.RDB, fmt.Sprintf(redisx.KeySession, token), &a)
	if err != nil || !ok || a.UserID <= 0 {
		return orders.Actor{}, false, err
	}
	return a, true, nil
}

type actorKey struct{}

func actorFrom(ctx context.Context) orders.Actor {
	a, _ := ctx.Value(actorKey{}).(orders.Actor)
	return a
}

// Authenticate rejects requests without a live session with 401.
func Authenticate(s Sessions, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token", Kind: "unauthenticated"})
				return
			}
			actor, found, err := s.Lookup(r.Context(), token)
			if err != nil {
				writeError(w, r, log, err)
				return
			}
			if !found {
				writeJSON(w, http.StatusUnauthorized, errorBody{Error: "invalid or expired session", Kind: "unauthenticated"})
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
		})
	}
}

func RequireAdmin(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !actorFrom(r.Context()).IsAdmin() {
				writeError(w, r, log, apperr.ErrNotAllowed)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
