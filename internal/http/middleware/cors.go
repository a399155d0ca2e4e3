package middleware

import (
	"github.com/valyala/fasthttp"
)

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsMaxAge       = "600"
)

// CORS answers preflight requests and decorates every response with the
// Access-Control headers for allowed origins. "*" in origins allows any
// origin; the request origin is echoed back so credentials keep working.
func CORS(origins []string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	allowAny := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAny = true
		}
		allowed[o] = struct{}{}
	}

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			origin := string(ctx.Request.Header.Peek("Origin"))
			if origin != "" {
				if _, ok := allowed[origin]; ok || allowAny {
					h := &ctx.Response.Header
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Add("Vary", "Origin")
				}
			}

			if ctx.IsOptions() && len(ctx.Request.Header.Peek("Access-Control-Request-Method")) > 0 {
				h := &ctx.Response.Header
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				if reqHeaders := ctx.Request.Header.Peek("Access-Control-Request-Headers"); len(reqHeaders) > 0 {
					h.SetBytesV("Access-Control-Allow-Headers", reqHeaders)
				} else {
					h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				}
				h.Set("Access-Control-Max-Age", corsMaxAge)
				ctx.SetStatusCode(fasthttp.StatusNoContent)
				return
			}

			next(ctx)
		}
	}
}
