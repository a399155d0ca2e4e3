package handlers

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	dbpkg "energyinsight/internal/db"
	httpctx "energyinsight/internal/http/ctx"
)

// MustUser returns the current user from context, or sends 401 and returns (nil, false).
func MustUser(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	user, ok := httpctx.UserFromCtx(ctx)
	if !ok {
		errResponse(ctx, fasthttp.StatusUnauthorized, "Not authenticated")
		return nil, false
	}
	return user, true
}

func jsonResponse(ctx *fasthttp.RequestCtx, code int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return
	}
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// errResponse writes the {"detail": msg} error shape the frontend reads.
func errResponse(ctx *fasthttp.RequestCtx, code int, msg string) {
	body, _ := json.Marshal(map[string]string{"detail": msg})
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
