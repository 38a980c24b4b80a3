package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/yanizio/concierge/internal/logger"
	"github.com/yanizio/concierge/internal/requestinfo"
)

// AccessLog writes one INFO line per request after the handler returns.
// Bodies are never logged.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if info := requestinfo.FromContext(r.Context()); info != nil {
			fields = append(fields, "ip", info.ClientIP(), "bot", info.UA.IsBot)
		}
		if id := GetTraceID(r); id != "" {
			fields = append(fields, "trace_id", id)
		}
		logger.FromContext(r.Context()).Infow("http request", fields...)
	})
}
