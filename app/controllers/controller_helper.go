package controllers

import (
	"context"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/audit"
)

// RequestIDKey is the Locals key the requestid middleware writes to.
const RequestIDKey = "requestid"

const requestTimeout = 20 * time.Second

var validate = validator.New()

// requestContext bounds the request and carries its correlation id into the audit trail.
func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	ctx := audit.WithCorrelationID(c.UserContext(), correlationID(c))
	return context.WithTimeout(ctx, requestTimeout)
}

func correlationID(c *fiber.Ctx) string {
	if id, ok := c.Locals(RequestIDKey).(string); ok && id != "" {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}

// parseBody decodes the JSON body into dst and runs its validate tags.
func parseBody(c *fiber.Ctx, dst interface{}) error {
	if err := c.BodyParser(dst); err != nil {
		return apperror.Invalid("body", "malformed request body")
	}
	if err := validate.Struct(dst); err != nil {
		return apperror.FromValidator(err)
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.Invalid(name, "must be a positive integer")
	}
	return uint(id), nil
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
