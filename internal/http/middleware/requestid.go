package middleware

import (
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	httpctx "energyinsight/internal/http/ctx"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID keeps a caller supplied X-Request-ID or generates one, and echoes
// it on the response.
func RequestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := string(ctx.Request.Header.Peek(RequestIDHeader))
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		httpctx.SetRequestID(ctx, id)
		ctx.Response.Header.Set(RequestIDHeader, id)
		next(ctx)
	}
}
