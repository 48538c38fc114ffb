package handlers

import (
	"errors"
	"strconv"

	"wattstap-referral-service/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupDevRoutes registers destructive reset endpoints for testing. main
// only calls this outside production, so error detail is never suppressed
// here.
func SetupDevRoutes(app *fiber.App, db *gorm.DB) {
	dev := app.Group("/dev")

	dev.Delete("/reset-all", func(c *fiber.Ctx) error {
		err := db.Transaction(func(tx *gorm.DB) error {
			// Friendships first, then users (FK order).
			if err := tx.Where("1 = 1").Delete(&models.Friendship{}).Error; err != nil {
				return err
			}
			return tx.Where("1 = 1").Delete(&models.User{}).Error
		})
		if err != nil {
			return serverError(c, false, "reset failed", err)
		}
		return c.JSON(fiber.Map{
			"message": "All users and friendships deleted",
			"status":  "ok",
		})
	})

	dev.Delete("/reset-user/:telegram_id", func(c *fiber.Ctx) error {
		telegramID, err := strconv.ParseInt(c.Params("telegram_id"), 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "telegram_id must be an integer",
			})
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			var user models.User
			if err := tx.Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
				return err
			}

			if err := tx.Where("user_id = ? OR friend_id = ?", user.ID, user.ID).
				Delete(&models.Friendship{}).Error; err != nil {
				return err
			}

			// Detach anyone this user referred before removing the row.
			if err := tx.Model(&models.User{}).Where("referred_by_id = ?", user.ID).
				Update("referred_by_id", nil).Error; err != nil {
				return err
			}

			return tx.Delete(&user).Error
		})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "User with telegram_id " + c.Params("telegram_id") + " not found",
			})
		}
		if err != nil {
			return serverError(c, false, "reset failed", err)
		}

		return c.JSON(fiber.Map{
			"message": "User " + c.Params("telegram_id") + " deleted",
			"status":  "ok",
		})
	})

	dev.Delete("/reset-friendships", func(c *fiber.Ctx) error {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("1 = 1").Delete(&models.Friendship{}).Error; err != nil {
				return err
			}
			return tx.Model(&models.User{}).Where("referred_by_id IS NOT NULL").
				Update("referred_by_id", nil).Error
		})
		if err != nil {
			return serverError(c, false, "reset failed", err)
		}
		return c.JSON(fiber.Map{
			"message": "All friendships and referral connections reset",
			"status":  "ok",
		})
	})
}
