// middleware/device.go
package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// DeviceAuthMiddleware guards the remote ledger API used by device agents.
// It accepts any of the given tokens; empty tokens never match.
func DeviceAuthMiddleware(acceptedTokens ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [DEVICE_AUTH] Missing Authorization header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "device authentication token missing",
			})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		for _, accepted := range acceptedTokens {
			if accepted != "" && subtle.ConstantTimeCompare([]byte(token), []byte(accepted)) == 1 {
				return c.Next()
			}
		}

		log.Printf("❌ [DEVICE_AUTH] Invalid token for %s", c.Path())
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid device authentication token",
		})
	}
}
