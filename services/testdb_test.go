package services

import (
	"testing"

	"wattstap-referral-service/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an isolated in-memory database with the real schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Friendship{}))
	return db
}

// newTestAuthService wires the full service stack over a fresh database,
// using the production defaults (1000 initial watts, 5000 bonus, 8-char
// codes, 24h windows).
func newTestAuthService(t *testing.T) (*AuthService, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	telegram := NewTelegramAuthService(testBotToken, 86400)
	users := NewUserService(db, 1000, 8)
	referral := NewReferralService(db, 5000)
	tokens := NewTokenService(testJWTSecret, 86400)
	return NewAuthService(db, telegram, users, referral, tokens), db
}
