// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// BearerTokenMiddleware rejects requests whose Authorization header does not
// carry expectedToken. label names the caller in logs (GATEWAY_AUTH, CRON_AUTH).
// An empty expectedToken rejects everything.
func BearerTokenMiddleware(label, expectedToken string) fiber.Handler {
	if expectedToken == "" {
		log.Printf("⚠️  [%s] no token configured, every request will be rejected", label)
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Printf("🚫 [%s] Missing Authorization header for %s", label, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authentication token missing",
				"code":  "UNAUTHORIZED",
			})
		}

		// Parse "Bearer <token>"; a raw token is accepted too.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("❌ [%s] Invalid token for %s", label, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authentication token",
				"code":  "UNAUTHORIZED",
			})
		}

		return c.Next()
	}
}
