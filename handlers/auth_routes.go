package handlers

import (
	"errors"
	"log"

	"wattstap-referral-service/services"

	"github.com/gofiber/fiber/v2"
)

const maxReferralCodeLength = 16

// telegramAuthRequest accepts both the camelCase wire names and their
// snake_case aliases.
type telegramAuthRequest struct {
	InitData          string `json:"initData"`
	InitDataSnake     string `json:"init_data"`
	ReferralCode      string `json:"referralCode"`
	ReferralCodeSnake string `json:"referral_code"`
}

func (r *telegramAuthRequest) initData() string {
	if r.InitData != "" {
		return r.InitData
	}
	return r.InitDataSnake
}

func (r *telegramAuthRequest) referralCode() string {
	if r.ReferralCode != "" {
		return r.ReferralCode
	}
	return r.ReferralCodeSnake
}

// SetupAuthRoutes registers the Telegram authentication endpoint.
func SetupAuthRoutes(app *fiber.App, authService *services.AuthService, production bool) {
	app.Post("/auth/telegram", func(c *fiber.Ctx) error {
		var req telegramAuthRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON body",
				"cause": err.Error(),
			})
		}

		initData := req.initData()
		if initData == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "initData is required",
			})
		}
		code := req.referralCode()
		if len(code) > maxReferralCodeLength {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "referralCode must be at most 16 characters",
			})
		}

		resp, err := authService.Authenticate(initData, code)
		if err != nil {
			// Signature- and parse-stage failures all surface as a single
			// authentication-failed outcome; the kind stays in the logs.
			var authErr *services.AuthError
			if errors.As(err, &authErr) {
				log.Printf("[AUTH] initData rejected (%s): %s", authErr.Kind, authErr.Detail)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Authentication failed: " + authErr.Detail,
				})
			}
			return serverError(c, production, "authentication failed", err)
		}

		return c.JSON(resp)
	})
}
