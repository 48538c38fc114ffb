package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wattstap-referral-service/models"

	"gorm.io/gorm"
)

// UserService handles user lookup and creation.
type UserService struct {
	DB *gorm.DB

	// InitialWatts is granted to every new user; CodeLength sizes the
	// generated referral codes.
	InitialWatts int64
	CodeLength   int
}

func NewUserService(db *gorm.DB, initialWatts int64, codeLength int) *UserService {
	return &UserService{DB: db, InitialWatts: initialWatts, CodeLength: codeLength}
}

// GetByTelegramID finds a user by Telegram ID. Returns (nil, nil) if absent.
func (s *UserService) GetByTelegramID(tx *gorm.DB, telegramID int64) (*models.User, error) {
	var user models.User
	err := tx.Where("telegram_id = ?", telegramID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID finds a user by internal ID. Returns (nil, nil) if absent.
func (s *UserService) GetByID(tx *gorm.DB, id int64) (*models.User, error) {
	var user models.User
	err := tx.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByReferralCode finds the owner of a referral code. The code is
// normalized first: a literal REF_ prefix is stripped and the rest
// uppercased. Returns (nil, nil) if no user owns the code.
func (s *UserService) GetByReferralCode(tx *gorm.DB, code string) (*models.User, error) {
	cleanCode := strings.ToUpper(strings.ReplaceAll(code, "REF_", ""))

	var user models.User
	err := tx.Where("referral_code = ?", cleanCode).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser creates a new user from Telegram claim data with a fresh
// referral code, the initial watts grant and level 1. The referral linkage
// is always left empty here; only the referral engine sets it, and only for
// this same request.
func (s *UserService) CreateUser(tx *gorm.DB, tgUser *TelegramUser) (*models.User, error) {
	code, err := s.generateUniqueReferralCode(tx)
	if err != nil {
		return nil, err
	}

	user := models.User{
		TelegramID:   tgUser.ID,
		Username:     tgUser.Username,
		FirstName:    tgUser.FirstName,
		LastName:     tgUser.LastName,
		PhotoURL:     tgUser.PhotoURL,
		LanguageCode: tgUser.LanguageCode,
		IsPremium:    tgUser.IsPremium,
		Level:        1,
		Watts:        s.InitialWatts,
		ReferralCode: code,
		LastLoginAt:  time.Now(),
	}
	if err := tx.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// generateUniqueReferralCode makes up to 10 attempts at CodeLength
// characters, re-checking uniqueness each time. If all collide it falls
// back to a single longer attempt, accepted without another check.
func (s *UserService) generateUniqueReferralCode(tx *gorm.DB) (string, error) {
	const maxAttempts = 10

	for i := 0; i < maxAttempts; i++ {
		code, err := models.GenerateReferralCode(s.CodeLength)
		if err != nil {
			return "", fmt.Errorf("generate referral code: %w", err)
		}

		var count int64
		if err := tx.Model(&models.User{}).Where("referral_code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
	}

	return models.GenerateReferralCode(s.CodeLength + 4)
}

// UpdateLastLogin refreshes the last-login timestamp.
func (s *UserService) UpdateLastLogin(tx *gorm.DB, user *models.User) error {
	now := time.Now()
	user.LastLoginAt = now
	return tx.Model(user).Update("last_login_at", now).Error
}

// AddWatts credits watts to a user's balance.
func (s *UserService) AddWatts(tx *gorm.DB, user *models.User, amount int64) error {
	user.Watts += amount
	return tx.Model(user).Update("watts", user.Watts).Error
}
