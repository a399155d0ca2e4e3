package db

import (
	"time"
)

// User is an account that owns readings, appliances and access tokens. The
// demo user from config is created as a row in this table on startup.
type User struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Username     string `gorm:"uniqueIndex;size:64;not null"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255;not null" json:"-"`

	// Active users may sign in; inactive ones are rejected by /token and by
	// token resolution.
	Active bool `gorm:"default:true"`
}
