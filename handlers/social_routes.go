package handlers

import (
	"fmt"
	"strconv"
	"time"

	"wattstap-referral-service/middleware"
	"wattstap-referral-service/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type friendInfo struct {
	PlayerID      string    `json:"playerId"`
	Nickname      string    `json:"nickname"`
	Level         int64     `json:"level"`
	AvatarURL     *string   `json:"avatarUrl,omitempty"`
	TotalEarnings int64     `json:"totalEarnings"`
	YourBonus     int64     `json:"yourBonus"`
	InvitedAt     time.Time `json:"invitedAt"`
}

// SetupSocialRoutes registers the referral-info and friends listing
// endpoints. Both require an authenticated user.
func SetupSocialRoutes(app *fiber.App, db *gorm.DB, tokens *services.TokenService, referralService *services.ReferralService, botUsername string, production bool) {
	social := app.Group("/social", middleware.RequireAuth(db, tokens))

	social.Get("/my-referral", func(c *fiber.Ctx) error {
		user := middleware.CurrentUser(c)

		stats, err := referralService.GetReferralStats(user)
		if err != nil {
			return serverError(c, production, "failed to get referral stats", err)
		}

		inviteLink := fmt.Sprintf("https://t.me/%s?startattach=REF_%s", botUsername, user.ReferralCode)

		return c.JSON(fiber.Map{
			"referralCode":        user.ReferralCode,
			"inviteLink":          inviteLink,
			"bonusPerFriend":      stats.BonusPerFriend,
			"totalFriendsInvited": stats.TotalFriendsInvited,
			"totalBonusEarned":    stats.TotalBonusEarned,
		})
	})

	social.Get("/friends", func(c *fiber.Ctx) error {
		user := middleware.CurrentUser(c)

		entries, err := referralService.GetFriends(user)
		if err != nil {
			return serverError(c, production, "failed to get friends", err)
		}

		friends := make([]friendInfo, 0, len(entries))
		var totalBonus int64
		for _, entry := range entries {
			friend := entry.Friend

			// Only the referrer earns the bonus, not both sides of the
			// mutual edge.
			var yourBonus int64
			if friend.ReferredByID != nil && *friend.ReferredByID == user.ID {
				yourBonus = referralService.BonusWatts
				totalBonus += yourBonus
			}

			friends = append(friends, friendInfo{
				PlayerID:      strconv.FormatInt(friend.ID, 10),
				Nickname:      friend.DisplayName(),
				Level:         friend.Level,
				AvatarURL:     friend.PhotoURL,
				TotalEarnings: friend.Watts,
				YourBonus:     yourBonus,
				InvitedAt:     entry.InvitedAt,
			})
		}

		return c.JSON(fiber.Map{
			"friends":          friends,
			"totalFriends":     len(friends),
			"totalBonusEarned": totalBonus,
		})
	})
}
