package router

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreatorVault/app/controllers"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/storage"
)

// Router installs one group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the wired services the routes need.
type Dependencies struct {
	DB          *gorm.DB
	Ledger      *controllers.LedgerController
	RateStorage fiber.Storage
	Storage     *storage.Client
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// health first so it stays outside auth and rate limits
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
