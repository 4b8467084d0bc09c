package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/middleware"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/ratelimit"
)

type ApiRouter struct {
	deps Dependencies
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	lc := h.deps.Ledger
	limit := func(b ratelimit.Budget) fiber.Handler {
		return ratelimit.New(h.deps.RateStorage, b.FromEnv())
	}

	v1 := app.Group("/api/v1")

	// Provider callbacks authenticate by signature, not API key.
	v1.Post("/webhooks/:provider", lc.HandleWebhook)

	api := v1.Group("", middleware.APIKeyAuthMiddleware(middleware.NewUserFinder(h.deps.DB)), middleware.RequireAuth, limit(ratelimit.API))
	api.Get("/account", lc.HandleGetAccount)

	api.Post("/charges", limit(ratelimit.Checkout), lc.HandleCreateCharge)
	api.Post("/charges/:provider/verify", lc.HandleVerifyCharge)
	api.Get("/purchases", lc.HandleListPurchases)
	api.Post("/purchases/:id/download-token", lc.HandleIssueDownloadToken)

	api.Get("/subscriptions", lc.HandleListSubscriptions)
	api.Post("/subscriptions/:id/cancel", lc.HandleCancelSubscription)

	api.Get("/creators/:creatorId/dm-quota", lc.HandleGetDMQuota)
	api.Post("/creators/:creatorId/dm-messages", lc.HandleConsumeDMMessage)

	api.Post("/refunds", limit(ratelimit.Refund), lc.HandleRequestRefund)
	api.Get("/refunds/:id", lc.HandleGetRefund)

	creator := api.Group("/creator", middleware.RequireCreator)
	creator.Get("/balance", lc.HandleGetBalance)
	creator.Get("/payouts", lc.HandleListPayouts)
	creator.Post("/payouts", limit(ratelimit.Payout), lc.HandleRequestPayout)
	creator.Get("/payout-methods", lc.HandleListPayoutMethods)
	creator.Post("/payout-methods", lc.HandleCreatePayoutMethod)
	creator.Post("/payout-methods/:id/default", lc.HandleSetDefaultPayoutMethod)

	admin := api.Group("/admin", middleware.RequireAdmin)
	admin.Get("/stats", lc.HandleAdminStats)
	admin.Get("/refunds", lc.HandleAdminListRefunds)
	admin.Post("/refunds/:id/resolve", lc.HandleAdminResolveRefund)
	admin.Get("/payouts", lc.HandleAdminListPayouts)
	admin.Post("/payouts/:id/transition", lc.HandleAdminTransitionPayout)
	admin.Post("/jobs/:type", lc.HandleAdminTriggerJob)
	admin.Get("/jobs/:id", lc.HandleAdminGetJob)
}
