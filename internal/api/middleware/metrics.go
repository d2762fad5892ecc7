package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lzjever/mbos-dash/internal/observability"
)

// Metrics records HTTP metrics for each request. Websocket upgrades are
// tracked as open streams instead; their lifetime is not a latency.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		if isUpgrade(r) {
			next.ServeHTTP(ww, r)
			observability.HTTPRequestsTotal.WithLabelValues(getRoutePattern(r), r.Method, strconv.Itoa(ww.Status())).Inc()
			return
		}

		observability.ActiveRequests.Inc()
		defer observability.ActiveRequests.Dec()

		next.ServeHTTP(ww, r)

		route := getRoutePattern(r)
		observability.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		observability.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// StreamOpened counts an accepted websocket on route until the returned
// func is called.
func StreamOpened(r *http.Request) func() {
	g := observability.OpenStreams.WithLabelValues(getRoutePattern(r))
	g.Inc()
	return g.Dec
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return r.URL.Path
}
