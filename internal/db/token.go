package db

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// TokenPrefix marks access tokens issued by this service.
const TokenPrefix = "ei_"

// AccessToken is an opaque bearer credential issued by /token. It belongs to
// one user and stops resolving once ExpiresAt has passed.
type AccessToken struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	// UserID links this token to the user who signed in.
	UserID uint `gorm:"index;not null"`

	// Token is the bearer value handed to the client.
	Token string `gorm:"uniqueIndex;size:255;not null"`

	ExpiresAt time.Time `gorm:"index;not null"`

	User User `gorm:"foreignKey:UserID"`
}

// Expired reports whether the token is no longer valid at now.
func (t AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
