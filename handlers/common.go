package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// serverError logs the fault and answers with a stable error code. In
// production the underlying detail is kept out of the response; operators
// get it from the logs.
func serverError(c *fiber.Ctx, production bool, message string, err error) error {
	log.Printf("[ERROR] %s %s: %v", c.Method(), c.Path(), err)

	responseMessage := "An internal error occurred"
	if !production {
		responseMessage = message + ": " + err.Error()
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error": fiber.Map{
			"code":    "INTERNAL_ERROR",
			"message": responseMessage,
		},
	})
}
