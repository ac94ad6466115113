package mw

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vango-go/posecoach/pkg/gateway/metrics"
)

// Instrument records request counts and latency labelled by the matched chi
// route pattern. A nil m passes requests through untouched.
func Instrument(m *metrics.Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped, sw := wrapStatusWriter(w)
		next.ServeHTTP(wrapped, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		m.RecordRequest(r.Method, route, sw.status, time.Since(start))
	})
}
