package services

import (
	"fmt"
	"time"

	"wattstap-referral-service/models"

	"gorm.io/gorm"
)

// ReferrerInfo is the public summary of the user who owns an applied code.
type ReferrerInfo struct {
	UserID    int64   `json:"userId"`
	Nickname  string  `json:"nickname"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	Level     int64   `json:"level"`
}

// ReferralResult reports the outcome of a referral code application.
type ReferralResult struct {
	Applied          bool          `json:"applied"`
	Referrer         *ReferrerInfo `json:"referrer,omitempty"`
	BonusForReferrer int64         `json:"bonusForReferrer"`
	Message          string        `json:"message,omitempty"`
}

// FriendEntry is one row of a friends listing: the friendship edge enriched
// with the friend's public profile.
type FriendEntry struct {
	Friend    models.User
	InvitedAt time.Time
}

// ReferralStats summarizes a user's referral earnings. TotalBonusEarned is
// derived (invited × current rate), never stored.
type ReferralStats struct {
	TotalFriendsInvited int64
	TotalBonusEarned    int64
	BonusPerFriend      int64
}

// ReferralService applies referral codes and reads the friendship graph.
//
// Codes apply only on first login: the engine runs after a new user row is
// created, inside that same request's transaction.
type ReferralService struct {
	DB *gorm.DB

	// BonusWatts is credited to the referrer once per successful referral.
	BonusWatts int64
}

func NewReferralService(db *gorm.DB, bonusWatts int64) *ReferralService {
	return &ReferralService{DB: db, BonusWatts: bonusWatts}
}

// CanApply checks whether a code owned by referrer may be applied for the
// given Telegram ID. Self-referral and already-registered users are refused.
// The existence pre-check here is best-effort; the unique index on
// telegram_id remains the authoritative guard against racing signups.
func (s *ReferralService) CanApply(tx *gorm.DB, newUserTelegramID int64, referrer *models.User) (bool, string) {
	if referrer.TelegramID == newUserTelegramID {
		return false, "Cannot use your own referral code"
	}

	var count int64
	if err := tx.Model(&models.User{}).Where("telegram_id = ?", newUserTelegramID).Count(&count).Error; err != nil {
		return false, fmt.Sprintf("Failed to check existing user: %v", err)
	}
	if count > 0 {
		return false, "Referral code can only be applied on first login"
	}

	return true, "OK"
}

// Apply links a just-created user to their referrer: sets referred_by,
// creates both friendship edges and credits the bonus. The three writes run
// in a nested transaction (savepoint) so a failure rolls them back together
// without poisoning the surrounding login transaction; referral failure is
// never fatal to authentication.
func (s *ReferralService) Apply(tx *gorm.DB, newUser *models.User, referrer *models.User) *ReferralResult {
	wattsBefore := referrer.Watts
	err := tx.Transaction(func(inner *gorm.DB) error {
		newUser.ReferredByID = &referrer.ID
		if err := inner.Model(newUser).Update("referred_by_id", referrer.ID).Error; err != nil {
			return fmt.Errorf("link referred user: %w", err)
		}

		edges := []models.Friendship{
			{UserID: referrer.ID, FriendID: newUser.ID, Source: models.FriendshipSourceReferral},
			{UserID: newUser.ID, FriendID: referrer.ID, Source: models.FriendshipSourceReferral},
		}
		if err := inner.Create(&edges).Error; err != nil {
			return fmt.Errorf("create friendship edges: %w", err)
		}

		referrer.Watts += s.BonusWatts
		if err := inner.Model(referrer).Update("watts", referrer.Watts).Error; err != nil {
			return fmt.Errorf("credit referrer bonus: %w", err)
		}

		return nil
	})
	if err != nil {
		// Restore the in-memory state the rolled-back savepoint reverted.
		// The closure may have failed before the bonus credit, so restore
		// the captured value rather than subtracting.
		newUser.ReferredByID = nil
		referrer.Watts = wattsBefore
		return &ReferralResult{
			Applied: false,
			Message: fmt.Sprintf("Failed to apply referral: %v", err),
		}
	}

	return &ReferralResult{
		Applied: true,
		Referrer: &ReferrerInfo{
			UserID:    referrer.TelegramID,
			Nickname:  referrer.DisplayName(),
			AvatarURL: referrer.PhotoURL,
			Level:     referrer.Level,
		},
		BonusForReferrer: s.BonusWatts,
		Message:          fmt.Sprintf("You were invited by %s!", referrer.DisplayName()),
	}
}

// GetFriends returns all friends of a user, newest friendship first.
func (s *ReferralService) GetFriends(user *models.User) ([]FriendEntry, error) {
	var friendships []models.Friendship
	err := s.DB.Preload("Friend").
		Where("user_id = ?", user.ID).
		Order("created_at DESC").
		Find(&friendships).Error
	if err != nil {
		return nil, err
	}

	entries := make([]FriendEntry, 0, len(friendships))
	for _, f := range friendships {
		if f.Friend == nil {
			continue
		}
		entries = append(entries, FriendEntry{Friend: *f.Friend, InvitedAt: f.CreatedAt})
	}
	return entries, nil
}

// GetFriendsCount returns the number of friendship edges owned by a user.
func (s *ReferralService) GetFriendsCount(userID int64) (int64, error) {
	var count int64
	err := s.DB.Model(&models.Friendship{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

// GetReferralStats counts users referred by this user and derives the total
// bonus from the current rate. Nothing is stored, so a rate change re-prices
// past referrals too.
func (s *ReferralService) GetReferralStats(user *models.User) (*ReferralStats, error) {
	var invited int64
	err := s.DB.Model(&models.User{}).Where("referred_by_id = ?", user.ID).Count(&invited).Error
	if err != nil {
		return nil, err
	}

	return &ReferralStats{
		TotalFriendsInvited: invited,
		TotalBonusEarned:    invited * s.BonusWatts,
		BonusPerFriend:      s.BonusWatts,
	}, nil
}
