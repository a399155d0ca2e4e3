package db

import "errors"

var (
	ErrMissingDatabaseURL = errors.New("APP_DATABASE_URL is required (PostgreSQL URL)")
	ErrInvalidDatabaseURL = errors.New("APP_DATABASE_URL must be a postgres:// or postgresql:// URL")

	ErrInvalidUser        = errors.New("username, email and password are required")
	ErrUserExists         = errors.New("username or email already registered")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrTokenNotFound      = errors.New("access token not found")
	ErrTokenExpired       = errors.New("access token expired")
)
