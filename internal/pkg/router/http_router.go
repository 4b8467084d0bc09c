package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/cache"
)

// HttpRouter serves the unauthenticated surface: health and file downloads.
type HttpRouter struct {
	deps Dependencies
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.health)
	// the token is the credential
	app.Get("/downloads/:token", h.deps.Ledger.HandleDownload)
}

func (h HttpRouter) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	checks := fiber.Map{"database": "ok", "cache": "ok"}
	healthy := true

	if sqlDB, err := h.deps.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = "unavailable"
		healthy = false
	}
	if err := cache.Ping(ctx); err != nil {
		log.Warnf("[Health] Cache ping failed: %v", err)
		checks["cache"] = "unavailable"
		healthy = false
	}
	if h.deps.Storage != nil {
		checks["storage"] = "ok"
		if err := h.deps.Storage.CheckBucket(ctx); err != nil {
			log.Warnf("[Health] Bucket check failed: %v", err)
			checks["storage"] = "unavailable"
		}
	} else {
		checks["storage"] = "disabled"
	}

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{"healthy": healthy, "checks": checks})
}
