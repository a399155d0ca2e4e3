package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateUser registers a new account with a bcrypt password hash.
func (s *Store) CreateUser(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" || email == "" || password == "" {
		return nil, ErrInvalidUser
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		// A concurrent registration can still win the unique index.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate checks a username/password pair.
func (s *Store) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.Active {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// IssueToken stores a fresh access token for user that expires after ttl.
func (s *Store) IssueToken(ctx context.Context, user *User, ttl time.Duration) (*AccessToken, error) {
	value, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	tok := &AccessToken{
		UserID:    user.ID,
		Token:     value,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(tok).Error; err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	tok.User = *user
	return tok, nil
}

// UserForToken resolves a bearer value to its active owner.
func (s *Store) UserForToken(ctx context.Context, token string) (*User, error) {
	if !strings.HasPrefix(token, TokenPrefix) {
		return nil, ErrTokenNotFound
	}
	var tok AccessToken
	if err := s.db.WithContext(ctx).Where("token = ?", token).Preload("User").First(&tok).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	if tok.Expired(s.now()) {
		return nil, ErrTokenExpired
	}
	if !tok.User.Active {
		return nil, ErrTokenNotFound
	}
	return &tok.User, nil
}

// ChangePassword replaces the password of user after checking the current
// one.
func (s *Store) ChangePassword(ctx context.Context, user *User, current, next string) error {
	if next == "" {
		return ErrInvalidUser
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", user.ID).Update("password_hash", string(hash)).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	// Existing sessions end with the old password.
	if err := s.db.WithContext(ctx).Where("user_id = ?", user.ID).Delete(&AccessToken{}).Error; err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}
	user.PasswordHash = string(hash)
	return nil
}
