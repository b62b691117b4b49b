package handlers

import (
	"log"

	"quest-battle-service/services"

	"github.com/gofiber/fiber/v2"
)

// statusForCode maps service error codes to HTTP statuses.
func statusForCode(code string) int {
	switch code {
	case services.CodeUnauthorized:
		return fiber.StatusForbidden
	case services.CodeNotFound:
		return fiber.StatusNotFound
	case services.CodeAlreadyResolved, services.CodeNotActive:
		return fiber.StatusConflict
	case services.CodeTransactionFailure:
		return fiber.StatusServiceUnavailable
	case services.CodeInvalidRequest:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError renders err as {"error", "code"}. Internal errors are logged
// and their detail is not echoed to the caller.
func respondError(c *fiber.Ctx, err error) error {
	code := services.ErrorCode(err)
	msg := err.Error()
	if code == services.CodeInternal {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		msg = "internal error"
	}
	return c.Status(statusForCode(code)).JSON(fiber.Map{
		"error": msg,
		"code":  code,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  services.CodeInvalidRequest,
	})
}
