// handlers/progression_routes.go
package handlers

import (
	"strings"

	"quest-battle-service/middleware"
	"quest-battle-service/models"
	"quest-battle-service/services"

	"github.com/gofiber/fiber/v2"
)

type grantRequest struct {
	UserID     string `json:"user_id"`
	Amount     int64  `json:"amount"`
	Reason     string `json:"reason"`
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
}

func SetupProgressionRoutes(router fiber.Router, progressionService *services.ProgressionService, badgeService *services.BadgeService, operatorRoles []string) {
	router.Get("/user/progress", func(c *fiber.Ctx) error {
		view, err := progressionService.GetProgress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(view)
	})

	router.Get("/user/activity", func(c *fiber.Ctx) error {
		page := c.QueryInt("page", 1)
		size := c.QueryInt("size", 20)
		activity, err := progressionService.GetActivity(c.UserContext(), middleware.UserID(c), page, size)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(activity)
	})

	router.Get("/user/badges", func(c *fiber.Ctx) error {
		badges, err := badgeService.ListBadges(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"badges": badges})
	})

	// 🔐 Operators only: XP from sources other than battles.
	router.Post("/admin/xp/grants", middleware.RequireRole(operatorRoles), func(c *fiber.Ctx) error {
		var req grantRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid JSON")
		}
		if req.UserID == "" || req.SourceID == "" {
			return badRequest(c, "user_id and source_id are required")
		}
		if req.Amount <= 0 {
			return badRequest(c, "amount must be positive")
		}

		reason := models.ActivityReason(strings.ToUpper(req.Reason))
		sourceType := strings.ToLower(req.SourceType)
		if sourceType == "" {
			sourceType = models.SourceManual
		}
		if reason == "" {
			reason = models.ReasonManualGrant
			if sourceType == models.SourceQuest {
				reason = models.ReasonQuestCompleted
			}
		}

		prog, err := progressionService.AwardXP(c.UserContext(), services.Credit{
			UserID:     req.UserID,
			Amount:     req.Amount,
			Reason:     reason,
			SourceType: sourceType,
			SourceID:   req.SourceID,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(prog)
	})
}
