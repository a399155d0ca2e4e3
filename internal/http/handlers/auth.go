package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"energyinsight/internal/config"
	dbpkg "energyinsight/internal/db"
	"energyinsight/internal/logger"
)

// Accounts is the user and token store behind the auth routes.
type Accounts interface {
	CreateUser(ctx context.Context, username, email, password string) (*dbpkg.User, error)
	Authenticate(ctx context.Context, username, password string) (*dbpkg.User, error)
	IssueToken(ctx context.Context, user *dbpkg.User, ttl time.Duration) (*dbpkg.AccessToken, error)
	ChangePassword(ctx context.Context, user *dbpkg.User, current, next string) error
}

type userResponse struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

func newUserResponse(u *dbpkg.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account from a JSON body.
func Register(accounts Accounts, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req registerRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Password) == "" || !strings.Contains(req.Email, "@") {
			errResponse(ctx, fasthttp.StatusBadRequest, "username, a valid email and password are required")
			return
		}

		c, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
		defer cancel()
		user, err := accounts.CreateUser(c, req.Username, req.Email, req.Password)
		switch {
		case errors.Is(err, dbpkg.ErrUserExists):
			errResponse(ctx, fasthttp.StatusConflict, "Username or email already registered")
			return
		case errors.Is(err, dbpkg.ErrInvalidUser):
			errResponse(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		case err != nil:
			logger.Named("auth").Error(ctx, "register failed", logger.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to create user")
			return
		}

		jsonResponse(ctx, fasthttp.StatusCreated, newUserResponse(user))
	}
}

// Token exchanges form credentials for a bearer access token.
func Token(accounts Accounts, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		// FormValue covers urlencoded and multipart bodies.
		username := string(ctx.FormValue("username"))
		password := string(ctx.FormValue("password"))
		if username == "" || password == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "username and password are required")
			return
		}

		c, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
		defer cancel()
		user, err := accounts.Authenticate(c, username, password)
		if err != nil {
			if errors.Is(err, dbpkg.ErrInvalidCredentials) {
				ctx.Response.Header.Set("WWW-Authenticate", "Bearer")
				errResponse(ctx, fasthttp.StatusUnauthorized, "Incorrect username or password")
				return
			}
			logger.Named("auth").Error(ctx, "authenticate failed", logger.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "database error")
			return
		}

		tok, err := accounts.IssueToken(c, user, cfg.TokenTTL())
		if err != nil {
			logger.Named("auth").Error(ctx, "issue token failed", logger.Uint("user_id", user.ID), logger.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to issue token")
			return
		}

		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{
			"access_token": tok.Token,
			"token_type":   "bearer",
			"expires_in":   int(cfg.TokenTTL().Seconds()),
		})
	}
}

// Me returns the authenticated user.
func Me() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, newUserResponse(user))
	}
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ChangePasswordSelf lets the authenticated user replace their password. All
// of the user's access tokens are revoked on success.
func ChangePasswordSelf(accounts Accounts, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}

		var req changePasswordRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			errResponse(ctx, fasthttp.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.CurrentPassword == "" || req.NewPassword == "" || req.ConfirmPassword == "" {
			errResponse(ctx, fasthttp.StatusBadRequest, "all password fields are required")
			return
		}
		if req.NewPassword != req.ConfirmPassword {
			errResponse(ctx, fasthttp.StatusBadRequest, "new passwords do not match")
			return
		}

		c, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
		defer cancel()
		if err := accounts.ChangePassword(c, user, req.CurrentPassword, req.NewPassword); err != nil {
			if errors.Is(err, dbpkg.ErrInvalidCredentials) {
				errResponse(ctx, fasthttp.StatusUnauthorized, "current password is incorrect")
				return
			}
			logger.Named("auth").Error(ctx, "change password failed", logger.Uint("user_id", user.ID), logger.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to update password")
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}
