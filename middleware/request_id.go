package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDKey is the Locals key holding the request correlation id.
const RequestIDKey = "request_id"

// RequestID tags every request with a correlation id, honoring one supplied
// by the caller, and echoes it back in the response headers.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(RequestIDKey, id)
		c.Set("X-Request-ID", id)
		return c.Next()
	}
}
