// handlers/battle_routes.go
package handlers

import (
	"quest-battle-service/middleware"
	"quest-battle-service/models"
	"quest-battle-service/services"

	"github.com/gofiber/fiber/v2"
)

// SetupBattleRoutes mounts the manual trigger and battle views. router must
// already run UserContextMiddleware. Participants may act on their own
// battles; operatorRoles may act on any.
func SetupBattleRoutes(router fiber.Router, resolution *services.ResolutionService, operatorRoles []string) {
	// loadAuthorized fetches the battle and checks the caller may touch it.
	loadAuthorized := func(c *fiber.Ctx) (*models.Battle, error) {
		battle, err := resolution.GetBattle(c.UserContext(), c.Params("id"))
		if err != nil {
			return nil, err
		}
		if !battle.HasParticipant(middleware.UserID(c)) && !middleware.HasAnyRole(c, operatorRoles) {
			return nil, &services.ResolutionError{BattleID: battle.ID, Kind: services.ErrUnauthorized}
		}
		return battle, nil
	}

	router.Get("/battles/:id", func(c *fiber.Ctx) error {
		battle, err := loadAuthorized(c)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(battle)
	})

	router.Get("/battles/:id/standings", func(c *fiber.Ctx) error {
		battle, err := loadAuthorized(c)
		if err != nil {
			return respondError(c, err)
		}
		standings, err := resolution.Standings(c.UserContext(), battle.ID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(standings)
	})

	router.Post("/battles/:id/resolve", func(c *fiber.Ctx) error {
		battle, err := loadAuthorized(c)
		if err != nil {
			return respondError(c, err)
		}
		settlement, err := resolution.ResolveBattle(c.UserContext(), battle.ID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(settlement)
	})
}
