package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"energyinsight/internal/config"
)

// Connect opens a GORM database connection using APP_DATABASE_URL (PostgreSQL URL)
// and migrates the schema.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := strings.TrimSpace(cfg.DatabaseURL)
	if dsn == "" {
		return nil, ErrMissingDatabaseURL
	}
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil, ErrInvalidDatabaseURL
	}

	// PrepareStmt: true prevents the GORM postgres migrator from forcing simple protocol
	// for "SELECT * FROM table LIMIT 1", which would otherwise trigger "insufficient arguments".
	// TranslateError maps unique violations to gorm.ErrDuplicatedKey.
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&User{}, &AccessToken{}, &EnergyReading{}, &Appliance{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Store is the gorm-backed persistence used by the HTTP handlers, the ingest
// pipeline and the background workers.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// NewStore wraps an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// EnsureBootstrapUser makes sure the demo account from config exists and
// returns it. If a user with that username already exists, it is left as-is.
// A nil user and nil error mean bootstrap is disabled.
func (s *Store) EnsureBootstrapUser(ctx context.Context, cfg *config.Config) (*User, error) {
	if cfg.DemoUser == "" || cfg.DemoPassword == "" {
		return nil, nil
	}

	var existing User
	err := s.db.WithContext(ctx).Where("username = ?", cfg.DemoUser).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup bootstrap user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.DemoPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash bootstrap password: %w", err)
	}

	email := cfg.DemoEmail
	if email == "" {
		email = cfg.DemoUser + "@example.com"
	}
	user := &User{
		Username:     cfg.DemoUser,
		Email:        email,
		PasswordHash: string(hash),
		Active:       true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("create bootstrap user: %w", err)
	}
	return user, nil
}
