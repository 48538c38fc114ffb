package middleware

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"wattstap-referral-service/models"
	"wattstap-referral-service/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// CurrentUserKey is the Locals key holding the authenticated *models.User.
const CurrentUserKey = "current_user"

// RequireAuth validates the Bearer token and loads the user it is bound to.
// Every verification failure (expired, malformed, unknown subject, missing
// account) collapses into one 401 outcome.
func RequireAuth(db *gorm.DB, tokens *services.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return unauthorized(c, "Missing authentication token")
		}

		user, authErr, err := resolveTokenUser(db, tokens, token)
		if err != nil {
			return fmt.Errorf("load token user: %w", err)
		}
		if authErr != nil {
			log.Printf("[AUTH] %s rejected: %v", c.Path(), authErr)
			return unauthorized(c, authErr.Detail)
		}

		c.Locals(CurrentUserKey, user)
		return c.Next()
	}
}

// OptionalAuth loads the user when a valid token is present and continues
// anonymously otherwise. For endpoints that tolerate anonymous access.
func OptionalAuth(db *gorm.DB, tokens *services.TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := bearerToken(c); token != "" {
			user, authErr, err := resolveTokenUser(db, tokens, token)
			if err != nil {
				return fmt.Errorf("load token user: %w", err)
			}
			if authErr == nil {
				c.Locals(CurrentUserKey, user)
			}
		}
		return c.Next()
	}
}

// CurrentUser fetches the authenticated user set by RequireAuth or
// OptionalAuth. Returns nil for anonymous requests.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(CurrentUserKey).(*models.User)
	return user
}

// resolveTokenUser verifies the token and loads its account. A non-nil
// *AuthError means the caller must refuse as unauthenticated; a non-nil
// plain error is an infrastructure fault and must surface as such.
func resolveTokenUser(db *gorm.DB, tokens *services.TokenService, token string) (*models.User, *services.AuthError, error) {
	userID, authErr := tokens.Verify(token)
	if authErr != nil {
		return nil, authErr, nil
	}

	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &services.AuthError{Kind: services.ErrKindTokenInvalid, Detail: "User not found"}, nil
		}
		return nil, nil, err
	}
	return &user, nil, nil
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header == "" {
		return ""
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(c *fiber.Ctx, message string) error {
	c.Set("WWW-Authenticate", "Bearer")
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
	})
}
