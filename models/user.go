package models

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Referral codes draw from uppercase letters and digits with the
// easily-confused characters (0, O, I, L, 1) removed, 31 symbols total.
const ReferralCodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// User represents a player in the game.
// Profile fields come from Telegram at creation and are not rewritten on
// later logins; only LastLoginAt moves.
type User struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// Telegram data
	TelegramID   int64   `gorm:"uniqueIndex;not null" json:"telegram_id"`
	Username     *string `gorm:"size:255" json:"username,omitempty"`
	FirstName    string  `gorm:"size:255;not null;default:'User'" json:"first_name"`
	LastName     *string `gorm:"size:255" json:"last_name,omitempty"`
	PhotoURL     *string `gorm:"size:512" json:"photo_url,omitempty"`
	LanguageCode string  `gorm:"size:10;default:'en'" json:"language_code"`
	IsPremium    bool    `gorm:"default:false" json:"is_premium"`

	// Game data
	Level int64 `gorm:"default:1" json:"level"`
	Watts int64 `gorm:"default:0" json:"watts"`

	// Referral system. ReferredByID is set at most once, at creation time.
	ReferralCode string `gorm:"size:16;uniqueIndex;not null" json:"referral_code"`
	ReferredByID *int64 `gorm:"check:chk_users_no_self_referral,referred_by_id <> id" json:"referred_by_id,omitempty"`

	ReferredBy *User `gorm:"foreignKey:ReferredByID" json:"-"`

	// Timestamps
	CreatedAt   time.Time  `gorm:"autoCreateTime;not null" json:"created_at"`
	UpdatedAt   *time.Time `gorm:"autoUpdateTime" json:"updated_at,omitempty"`
	LastLoginAt time.Time  `gorm:"autoCreateTime;not null" json:"last_login_at"`
}

// DisplayName returns the best available name for UI purposes.
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return fmt.Sprintf("User_%d", u.TelegramID)
}

// GenerateReferralCode draws length characters from ReferralCodeAlphabet
// using crypto/rand. Codes are shareable tokens, so a CSPRNG is required.
// Bytes are masked to 5 bits and rejected when they fall outside the
// alphabet, keeping the distribution uniform.
func GenerateReferralCode(length int) (string, error) {
	if length <= 0 {
		length = 8
	}

	const mask = 0x1F // 31 symbols fit in 5 bits
	code := make([]byte, length)
	buf := make([]byte, length*2)

	for pos := 0; pos < length; {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for i := 0; i < len(buf) && pos < length; i++ {
			idx := buf[i] & mask
			if int(idx) < len(ReferralCodeAlphabet) {
				code[pos] = ReferralCodeAlphabet[idx]
				pos++
			}
		}
	}

	return string(code), nil
}
