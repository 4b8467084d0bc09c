package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/billing"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/security"
)

// ErrorHandler maps ledger errors onto HTTP responses. Internal details stay
// in the log; clients get a category and the correlation id.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var (
		validationErr *apperror.ValidationError
		authErr       *apperror.AuthorizationError
		conflictErr   *apperror.StateConflictError
		providerErr   *apperror.ProviderError
		fiberErr      *fiber.Error
	)

	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "validation_failed",
			"fields": validationErr.Fields,
		})
	case errors.Is(err, billing.ErrWebhookSignature):
		return c.SendStatus(fiber.StatusUnauthorized)
	case errors.Is(err, security.ErrTokenExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "token_expired"})
	case errors.Is(err, security.ErrTokenInvalid):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "token_invalid"})
	case errors.As(err, &authErr):
		log.Debugf("[Auth] %s %s: %v", c.Method(), c.Path(), authErr)
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	case errors.Is(err, apperror.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	case errors.As(err, &conflictErr):
		body := fiber.Map{"error": conflictErr.Reason, "message": conflictErr.Message}
		for k, v := range conflictErr.Details {
			body[k] = v
		}
		return c.Status(fiber.StatusBadRequest).JSON(body)
	case errors.Is(err, billing.ErrDownloadsDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "downloads_unavailable"})
	case errors.As(err, &providerErr):
		id := correlationID(c)
		log.Errorf("[Provider] %s correlation=%s: %v", c.Path(), id, providerErr)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":         "provider_error",
			"provider":      providerErr.Provider,
			"correlationId": id,
		})
	case errors.As(err, &fiberErr):
		return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
	}

	id := correlationID(c)
	log.Errorf("[HTTP] %s %s correlation=%s: %v", c.Method(), c.Path(), id, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":         "internal_error",
		"correlationId": id,
	})
}
