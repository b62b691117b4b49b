// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	localUserID    = "user_id"
	localUserRoles = "user_roles"
)

// UserContextMiddleware extracts user identity and roles set by the Gateway.
// Requests without X-User-ID are rejected.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
				"code":  "UNAUTHORIZED",
			})
		}

		c.Locals(localUserID, userID)
		c.Locals(localUserRoles, ParseRoles(c.Get("X-User-Roles")))
		return c.Next()
	}
}

// ParseRoles splits a comma-separated role header, dropping blanks.
func ParseRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// UserID returns the caller set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localUserID).(string)
	return id
}

// HasAnyRole reports whether the caller holds one of the given roles.
func HasAnyRole(c *fiber.Ctx, allowed []string) bool {
	roles, _ := c.Locals(localUserRoles).([]string)
	for _, r := range roles {
		for _, a := range allowed {
			if strings.EqualFold(r, a) {
				return true
			}
		}
	}
	return false
}

// RequireRole rejects callers without one of the allowed roles.
func RequireRole(allowed []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !HasAnyRole(c, allowed) {
			log.Printf("🚫 [USER_CTX] %s lacks roles %v for %s", UserID(c), allowed, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "operator role required",
				"code":  "UNAUTHORIZED",
			})
		}
		return c.Next()
	}
}
