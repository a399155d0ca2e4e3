package middleware

import (
	"strconv"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"energyinsight/internal/metrics"
)

// unmatchedRoute labels requests no route matched, keeping label cardinality
// bounded.
const unmatchedRoute = "unmatched"

// Instrument records request counts and latencies per matched route. The
// router must have SaveMatchedRoutePath enabled.
func Instrument(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		duration := time.Since(start)

		route, _ := ctx.UserValue(router.MatchedRoutePathParam).(string)
		if route == "" {
			route = unmatchedRoute
		}
		method := string(ctx.Method())
		status := strconv.Itoa(ctx.Response.StatusCode())

		metrics.RequestsTotal.WithLabelValues(route, method, status).Inc()
		metrics.RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
	}
}
