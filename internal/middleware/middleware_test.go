// internal/middleware/middleware_test.go
//
// Unit-tests for the HTTP wrappers.
//
// Context
// -------
// Each wrapper is exercised alone around a trivial handler:
//
//   • CORS          – wildcard, allow-list, rejected origin, and preflight
//   • RequestID     – reuse, generation, and the request-scoped logger
//   • RateLimit     – memory store over the limit returns 429 JSON
//   • ForceHTTPS    – redirect, loopback, and proxy-terminated TLS
//   • Security      – headers present, handler override wins
//   • HTTPMetrics   – counter labelled with the chi route pattern
//
// Notes
// -----
// • Redis-backed tests live in ratelimit_redis_test.go and skip without a
//   local Redis.

package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yanizio/concierge/internal/logger"
	"github.com/yanizio/concierge/internal/metrics"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func siteCORS(origins ...string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{"POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}
}

func TestCORS_WildcardPreflight(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodOptions, "/api/submit-form", nil)
	req.Header.Set("Origin", "https://example.com")
	rr := httptest.NewRecorder()
	CORS(siteCORS("*"))(next).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if called {
		t.Fatal("preflight reached the handler")
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("preflight body = %q, want empty", rr.Body.String())
	}
	want := map[string]string{
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Methods": "POST, OPTIONS",
		"Access-Control-Allow-Headers": "Content-Type",
	}
	for k, v := range want {
		if got := rr.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}

func TestCORS_WildcardWithoutOrigin(t *testing.T) {
	rr := httptest.NewRecorder()
	CORS(siteCORS("*"))(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("wildcard CORS header missing on a request without Origin")
	}
}

func TestCORS_AllowList(t *testing.T) {
	mw := CORS(siteCORS("https://site.example"))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://site.example")
	rr := httptest.NewRecorder()
	mw(okHandler).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Header().Get("Access-Control-Allow-Origin") != "https://site.example" {
		t.Fatalf("allowed origin: status %d, header %q", rr.Code, rr.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rr = httptest.NewRecorder()
	mw(okHandler).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign origin status = %d, want 403", rr.Code)
	}
}

func TestRequestID(t *testing.T) {
	var gotID string
	var hasLogger bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = GetRequestID(r.Context())
		hasLogger = logger.FromContext(r.Context()) != nil
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rr := httptest.NewRecorder()
	RequestID(next).ServeHTTP(rr, req)
	if gotID != "abc-123" || rr.Header().Get(RequestIDHeader) != "abc-123" {
		t.Fatalf("incoming id not reused: ctx=%q header=%q", gotID, rr.Header().Get(RequestIDHeader))
	}
	if !hasLogger {
		t.Fatal("no logger in context")
	}

	rr = httptest.NewRecorder()
	RequestID(next).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if len(gotID) != 36 {
		t.Fatalf("generated id = %q, want a UUID", gotID)
	}
	if GetRequestID(context.Background()) != "" {
		t.Fatal("GetRequestID on a bare context returned a value")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore(RateLimitConfig{Requests: 1, Window: time.Hour, Burst: 2}, 16)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, _, _ := store.Allow(ctx, "a"); !ok {
			t.Fatalf("request %d denied inside burst", i+1)
		}
	}
	ok, retry, err := store.Allow(ctx, "a")
	if ok || err != nil {
		t.Fatalf("third request: ok=%v err=%v, want denied", ok, err)
	}
	if retry <= 0 || retry > time.Hour {
		t.Fatalf("retry = %v", retry)
	}
	if ok, _, _ := store.Allow(ctx, "b"); !ok {
		t.Fatal("independent key denied")
	}
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, errors.New("redis down")
}

func TestRateLimit_Middleware(t *testing.T) {
	store := NewMemoryStore(RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 1}, 16)
	h := RateLimit(store, ClientIPKey, "/api/test")(okHandler)
	before := testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("/api/test"))

	send := func(method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/test", nil)
		req.RemoteAddr = "198.51.100.9:4000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(http.MethodPost); rr.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rr.Code)
	}
	rr := send(http.MethodPost)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rr.Code)
	}
	secs, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	if err != nil || secs < 1 {
		t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil || body["success"] != false {
		t.Fatalf("429 body = %s", rr.Body.String())
	}
	if got := testutil.ToFloat64(metrics.RateLimitedTotal.WithLabelValues("/api/test")); got != before+1 {
		t.Fatalf("rate limited counter = %v, want %v", got, before+1)
	}

	// Preflight is never limited.
	if rr := send(http.MethodOptions); rr.Code != http.StatusOK {
		t.Fatalf("OPTIONS status = %d", rr.Code)
	}

	// A broken store fails open.
	open := RateLimit(failingStore{}, ClientIPKey, "/api/test")(okHandler)
	rr = httptest.NewRecorder()
	open.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("failing store status = %d, want 200", rr.Code)
	}
}

func TestForceHTTPS(t *testing.T) {
	h := ForceHTTPS(okHandler)

	req := httptest.NewRequest(http.MethodPost, "http://concierge.example/api/submit-form?x=1", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusPermanentRedirect {
		t.Fatalf("status = %d, want 308", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "https://concierge.example/api/submit-form?x=1" {
		t.Fatalf("Location = %q", loc)
	}

	for _, host := range []string{"localhost:8080", "127.0.0.1:8080", "[::1]:8080"} {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Host = host
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", host, rr.Code)
		}
	}

	req = httptest.NewRequest(http.MethodPost, "http://concierge.example/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("proxied TLS status = %d, want 200", rr.Code)
	}
}

func TestSecurity(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "max-age=5")
		w.WriteHeader(http.StatusOK)
	})
	rr := httptest.NewRecorder()
	Security(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	for _, k := range []string{"Strict-Transport-Security", "Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options"} {
		if rr.Header().Get(k) == "" {
			t.Errorf("%s missing", k)
		}
	}
	if rr.Header().Get("Cache-Control") != "max-age=5" {
		t.Fatal("handler could not override a security header")
	}
}

func TestHTTPMetrics_RoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetrics)
	r.Post("/api/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	c := metrics.HTTPRequestsTotal.WithLabelValues("/api/things/{id}", http.MethodPost, "202")
	before := testutil.ToFloat64(c)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/things/42", nil))

	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("counter = %v, want %v", got, before+1)
	}
}

func TestAccessLog_PassesThrough(t *testing.T) {
	rr := httptest.NewRecorder()
	AccessLog(okHandler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}
