package handlers

import (
	"time"

	"github.com/valyala/fasthttp"

	httpctx "energyinsight/internal/http/ctx"
	"energyinsight/internal/logger"
)

// RequestLogger logs one line per request once the response is ready.
func RequestLogger(log logger.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			next(ctx)

			fields := []logger.Field{
				logger.String("method", string(ctx.Method())),
				logger.String("path", string(ctx.Path())),
				logger.Int("status", ctx.Response.StatusCode()),
				logger.Duration("duration", time.Since(start)),
				logger.String("ip", ctx.RemoteIP().String()),
			}
			if id := httpctx.RequestIDFromCtx(ctx); id != "" {
				fields = append(fields, logger.String("request_id", id))
			}
			if user, ok := httpctx.UserFromCtx(ctx); ok {
				fields = append(fields, logger.Uint("user_id", user.ID))
			}

			switch status := ctx.Response.StatusCode(); {
			case status >= fasthttp.StatusInternalServerError:
				log.Error(ctx, "request", fields...)
			case status >= fasthttp.StatusBadRequest:
				log.Warn(ctx, "request", fields...)
			default:
				log.Info(ctx, "request", fields...)
			}
		}
	}
}
