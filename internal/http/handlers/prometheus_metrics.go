package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"

	"energyinsight/internal/logger"
	"energyinsight/internal/metrics"
)

// MetricsHandler exposes g in the Prometheus text format. The optional
// "prefix" query argument keeps only families whose name starts with it.
func MetricsHandler(g prometheus.Gatherer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		prefix := string(ctx.QueryArgs().Peek("prefix"))
		body, contentType, err := metrics.Encode(g, prefix)
		if err != nil {
			logger.Named("metrics").Error(ctx, "encode metrics failed", logger.Error(err))
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to encode metrics")
			return
		}

		ctx.SetContentType(contentType)
		ctx.Response.Header.Set("Cache-Control", "no-store")
		ctx.SetBody(body)
	}
}
