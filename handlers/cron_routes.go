package handlers

import (
	"time"

	"quest-battle-service/middleware"
	"quest-battle-service/services"

	"github.com/gofiber/fiber/v2"
)

// SetupCronRoutes mounts the scheduler endpoint, gated by the cron secret
// instead of a user identity.
func SetupCronRoutes(app *fiber.App, resolution *services.ResolutionService, cronSecret string) {
	cron := app.Group("/cron", middleware.BearerTokenMiddleware("CRON_AUTH", cronSecret))

	sweep := func(c *fiber.Ctx) error {
		report, err := resolution.ResolveExpiredBattles(c.UserContext())
		if err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error":     err.Error(),
				"code":      services.CodeTransactionFailure,
				"timestamp": time.Now().UTC(),
			})
		}
		return c.JSON(report)
	}

	// Some schedulers can only issue GET.
	cron.Post("/resolve-battles", sweep)
	cron.Get("/resolve-battles", sweep)
}
