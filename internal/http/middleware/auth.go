package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	dbpkg "energyinsight/internal/db"
	httpctx "energyinsight/internal/http/ctx"
	"energyinsight/internal/logger"
)

// TokenResolver maps a bearer token to its user.
type TokenResolver interface {
	UserForToken(ctx context.Context, token string) (*dbpkg.User, error)
}

// BearerAuth validates Bearer access tokens and puts the owner on the context.
func BearerAuth(tokens TokenResolver, timeout time.Duration) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			if len(auth) == 0 {
				unauthorized(ctx, "Not authenticated")
				return
			}

			const prefix = "bearer "
			if len(auth) < len(prefix) || !bytes.EqualFold(auth[:len(prefix)], []byte(prefix)) {
				unauthorized(ctx, "Invalid authorization header")
				return
			}

			token := strings.TrimSpace(string(auth[len(prefix):]))
			if token == "" {
				unauthorized(ctx, "Not authenticated")
				return
			}

			c, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			user, err := tokens.UserForToken(c, token)
			if err != nil {
				if errors.Is(err, dbpkg.ErrTokenNotFound) || errors.Is(err, dbpkg.ErrTokenExpired) {
					unauthorized(ctx, "Could not validate credentials")
					return
				}
				logger.Named("auth").Error(ctx, "token lookup failed", logger.Error(err))
				writeDetail(ctx, fasthttp.StatusInternalServerError, "database error")
				return
			}

			httpctx.SetUser(ctx, user)
			next(ctx)
		}
	}
}

func unauthorized(ctx *fasthttp.RequestCtx, detail string) {
	ctx.Response.Header.Set("WWW-Authenticate", "Bearer")
	writeDetail(ctx, fasthttp.StatusUnauthorized, detail)
}

func writeDetail(ctx *fasthttp.RequestCtx, code int, detail string) {
	ctx.SetStatusCode(code)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(map[string]string{"detail": detail})
	ctx.SetBody(body)
}
