package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/yanizio/concierge/internal/cache"
	"github.com/yanizio/concierge/internal/logger"
	"github.com/yanizio/concierge/internal/metrics"
	"github.com/yanizio/concierge/internal/requestinfo"
)

// RateLimitConfig allows Requests per Window, with up to Burst at once.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// RateLimitStore decides whether key may make another request.  retry is
// how long the caller should wait when allowed is false.
type RateLimitStore interface {
	Allow(ctx context.Context, key string) (allowed bool, retry time.Duration, err error)
}

// -----------------------------------------------------------------------------
// In-memory store
// -----------------------------------------------------------------------------

// MemoryStore keeps one token bucket per key in a bounded LRU.  Buckets
// refill evenly at Requests/Window.
type MemoryStore struct {
	buckets *cache.LRU[string, *rate.Limiter]
	limit   rate.Limit
	burst   int
}

// NewMemoryStore returns a store holding at most size buckets.
func NewMemoryStore(cfg RateLimitConfig, size int) *MemoryStore {
	return &MemoryStore{
		buckets: cache.New[string, *rate.Limiter](size),
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		burst:   cfg.Burst,
	}
}

// Allow implements RateLimitStore.
func (s *MemoryStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	lim := s.buckets.GetOrAdd(key, func() *rate.Limiter {
		return rate.NewLimiter(s.limit, s.burst)
	})

	now := time.Now()
	res := lim.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Second, nil
	}
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		return false, d, nil
	}
	return true, 0, nil
}

// -----------------------------------------------------------------------------
// Redis store
// -----------------------------------------------------------------------------

// RedisStore is a fixed-window counter shared by every replica.  Each
// window allows Requests; Burst does not apply.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisStore returns a store that keys counters under "ratelimit:".
func NewRedisStore(client redis.UniversalClient, cfg RateLimitConfig) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "ratelimit:",
		limit:  int64(cfg.Requests),
		window: cfg.Window,
	}
}

// Allow implements RateLimitStore.
func (s *RedisStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now()
	slot := now.UnixNano() / int64(s.window)
	end := time.Unix(0, (slot+1)*int64(s.window))
	k := s.prefix + key + ":" + strconv.FormatInt(slot, 10)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, s.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, 0, err
	}

	if incr.Val() > s.limit {
		return false, end.Sub(now), nil
	}
	return true, 0, nil
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// ClientIPKey keys on the address found by requestinfo.Enrich, falling back
// to the connection's remote address.
func ClientIPKey(r *http.Request) string {
	if ip := requestinfo.FromContext(r.Context()).ClientIP(); ip != "" {
		return "ip:" + ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}

// RateLimit rejects requests over the limit with 429 and a JSON body in the
// relay's response shape.  Store errors let the request through.
func RateLimit(store RateLimitStore, key KeyFunc, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ok, retry, err := store.Allow(r.Context(), key(r))
			if err != nil {
				logger.FromContext(r.Context()).Warnw("rate limit store failed, allowing", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RateLimitedTotal.WithLabelValues(route).Inc()
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"message": "Too many requests. Please try again later.",
			})
		})
	}
}
