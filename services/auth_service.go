package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"wattstap-referral-service/models"

	"gorm.io/gorm"
)

// PlayerInfo is the public account summary returned after authentication.
type PlayerInfo struct {
	PlayerID     string `json:"playerId"`
	Nickname     string `json:"nickname"`
	Level        int64  `json:"level"`
	IsNewPlayer  bool   `json:"isNewPlayer"`
	ReferralCode string `json:"referralCode"`
}

// AuthResponse is the full result of a successful authentication.
type AuthResponse struct {
	Token     string          `json:"token"`
	ExpiresIn int64           `json:"expiresIn"`
	Player    PlayerInfo      `json:"player"`
	Referral  *ReferralResult `json:"referral,omitempty"`
}

// AuthService drives the authentication flow:
//
//	validate initData → parse claim → resolve user (lookup-or-create) →
//	apply referral (new users only) → issue token
//
// Resolution and referral application share one database transaction per
// request, so a partial referral (edge without bonus) can never commit.
type AuthService struct {
	DB       *gorm.DB
	Telegram *TelegramAuthService
	Users    *UserService
	Referral *ReferralService
	Tokens   *TokenService
}

func NewAuthService(db *gorm.DB, telegram *TelegramAuthService, users *UserService, referral *ReferralService, tokens *TokenService) *AuthService {
	return &AuthService{DB: db, Telegram: telegram, Users: users, Referral: referral, Tokens: tokens}
}

// Authenticate verifies the signed initData and logs the user in, creating
// the account on first contact. A returned *AuthError means the caller must
// refuse with an authentication-failed outcome; any other error is internal.
//
// The explicit referralCode parameter takes priority over the start_param
// carried inside initData.
func (s *AuthService) Authenticate(initData, referralCode string) (*AuthResponse, error) {
	claim, authErr := s.Telegram.ValidateAndParse(initData)
	if authErr != nil {
		return nil, authErr
	}

	code := referralCode
	if code == "" {
		code = claim.StartParam
	}

	var (
		user           *models.User
		isNewPlayer    bool
		referralResult *ReferralResult
	)

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		existing, err := s.Users.GetByTelegramID(tx, claim.User.ID)
		if err != nil {
			return err
		}

		if existing == nil {
			user, referralResult, isNewPlayer, err = s.registerNewUser(tx, claim, code)
			if err != nil {
				return err
			}
			if !isNewPlayer && code != "" {
				// Lost the creation race to a concurrent first login; the
				// account exists now, so the code no longer applies.
				referralResult = &ReferralResult{
					Applied: false,
					Message: "Referral code can only be applied on first login",
				}
			}
			return nil
		}

		user = existing
		isNewPlayer = false
		if err := s.Users.UpdateLastLogin(tx, user); err != nil {
			return err
		}
		if code != "" {
			referralResult = &ReferralResult{
				Applied: false,
				Message: "Referral code can only be applied on first login",
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	token, err := s.Tokens.Issue(user.ID, user.TelegramID)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token:     token,
		ExpiresIn: s.Tokens.LifetimeSeconds(),
		Player: PlayerInfo{
			PlayerID:     strconv.FormatInt(user.ID, 10),
			Nickname:     user.DisplayName(),
			Level:        user.Level,
			IsNewPlayer:  isNewPlayer,
			ReferralCode: user.ReferralCode,
		},
		Referral: referralResult,
	}, nil
}

// registerNewUser creates the account and applies the referral when one is
// eligible. The insert runs under a savepoint so a telegram_id uniqueness
// violation (two first logins racing) degrades into the existing-user flow
// instead of aborting the whole transaction. The returned bool is false
// only when the race was lost and an existing row is returned instead.
func (s *AuthService) registerNewUser(tx *gorm.DB, claim *InitDataClaim, code string) (*models.User, *ReferralResult, bool, error) {
	var referrer *models.User
	var referralResult *ReferralResult

	if code != "" {
		found, err := s.Users.GetByReferralCode(tx, code)
		if err != nil {
			return nil, nil, false, err
		}
		if found != nil {
			if ok, reason := s.Referral.CanApply(tx, claim.User.ID, found); ok {
				referrer = found
			} else {
				referralResult = &ReferralResult{Applied: false, Message: reason}
			}
		}
	}

	var user *models.User
	err := tx.Transaction(func(inner *gorm.DB) error {
		created, err := s.Users.CreateUser(inner, &claim.User)
		if err != nil {
			return err
		}
		user = created
		return nil
	})
	if err != nil {
		if !isDuplicateKeyErr(err) {
			return nil, nil, false, err
		}
		// Lost the race: another request created this telegram_id between
		// our lookup and insert. The unique index is the authoritative
		// signal, so re-resolve and continue as an existing-user login.
		existing, lookupErr := s.Users.GetByTelegramID(tx, claim.User.ID)
		if lookupErr != nil {
			return nil, nil, false, lookupErr
		}
		if existing == nil {
			return nil, nil, false, fmt.Errorf("create user: %w", err)
		}
		if err := s.Users.UpdateLastLogin(tx, existing); err != nil {
			return nil, nil, false, err
		}
		return existing, nil, false, nil
	}

	if referrer != nil {
		referralResult = s.Referral.Apply(tx, user, referrer)
	} else if referralResult == nil {
		if code != "" {
			referralResult = &ReferralResult{Applied: false, Message: "Invalid referral code"}
		} else {
			referralResult = &ReferralResult{Applied: false, Message: "No referral code provided"}
		}
	}

	return user, referralResult, true, nil
}

// isDuplicateKeyErr reports whether err is a storage uniqueness violation.
// GORM translates these to ErrDuplicatedKey on supported dialects; the
// string checks cover drivers that don't.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
