package ctx

import (
	"github.com/valyala/fasthttp"

	dbpkg "energyinsight/internal/db"
)

const (
	UserKey      = "user"
	RequestIDKey = "requestID"
)

func SetUser(ctx *fasthttp.RequestCtx, user *dbpkg.User) {
	ctx.SetUserValue(UserKey, user)
}

func UserFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	v := ctx.UserValue(UserKey)
	if v == nil {
		return nil, false
	}
	u, ok := v.(*dbpkg.User)
	return u, ok && u != nil
}

func SetRequestID(ctx *fasthttp.RequestCtx, id string) {
	ctx.SetUserValue(RequestIDKey, id)
}

func RequestIDFromCtx(ctx *fasthttp.RequestCtx) string {
	s, _ := ctx.UserValue(RequestIDKey).(string)
	return s
}
