package handlers

import (
	"github.com/valyala/fasthttp"
)

// Root greets API clients.
func Root() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		jsonResponse(ctx, fasthttp.StatusOK, map[string]string{"message": "Welcome to Renewable Energy API"})
	}
}

// Healthz reports liveness.
func Healthz() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	}
}
