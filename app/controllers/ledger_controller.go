package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/billing"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

// LedgerController exposes the billing service over HTTP. jobs may be nil,
// in which case admin maintenance triggers run inline.
type LedgerController struct {
	ledger     *billing.Service
	jobs       *jobqueue.Manager
	deliveries *counter.Counter
	statsDB    *gorm.DB
}

type Option func(*LedgerController)

// WithDeliveryCounter tallies webhook outcomes per provider.
func WithDeliveryCounter(c *counter.Counter) Option {
	return func(lc *LedgerController) { lc.deliveries = c }
}

// WithStatistics enables the admin statistics endpoint.
func WithStatistics(db *gorm.DB) Option {
	return func(lc *LedgerController) { lc.statsDB = db }
}

func NewLedgerController(ledger *billing.Service, jobs *jobqueue.Manager, opts ...Option) *LedgerController {
	lc := &LedgerController{ledger: ledger, jobs: jobs}
	for _, opt := range opts {
		opt(lc)
	}
	return lc
}

// HandleCreateCharge starts checkout for a subscription, product, PPV post, DM bundle or tip.
func (lc *LedgerController) HandleCreateCharge(c *fiber.Ctx) error {
	var req billing.ChargeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.PayerID = usercontext.GetUserID(c)

	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := lc.ledger.CreateCharge(ctx, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandleVerifyCharge is the redirect-path completion. 202 means the
// provider outcome is not known yet and the webhook will settle it.
func (lc *LedgerController) HandleVerifyCharge(c *fiber.Ctx) error {
	var proof providers.Proof
	if err := c.BodyParser(&proof); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := lc.ledger.VerifyCharge(ctx, c.Params("provider"), usercontext.GetUserID(c), proof)
	if err != nil {
		return err
	}
	if res.Pending {
		return c.Status(fiber.StatusAccepted).JSON(res)
	}
	return c.JSON(res)
}

func (lc *LedgerController) HandleListPurchases(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	purchases, err := lc.ledger.ListPurchases(ctx, usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"purchases": purchases})
}

// HandleWebhook accepts a raw provider delivery. Any delivery with a valid
// signature is acknowledged with 200, matched or not.
func (lc *LedgerController) HandleWebhook(c *fiber.Ctx) error {
	headers := make(http.Header)
	for k, values := range c.GetReqHeaders() {
		for _, v := range values {
			headers.Add(k, v)
		}
	}
	body := append([]byte(nil), c.Body()...)

	ctx, cancel := requestContext(c)
	defer cancel()
	res, err := lc.ledger.HandleWebhook(ctx, c.Params("provider"), headers, body)
	if err != nil {
		if errors.Is(err, billing.ErrWebhookSignature) {
			lc.countDelivery(ctx, c.Params("provider"), "rejected")
		}
		return err
	}
	lc.countDelivery(ctx, c.Params("provider"), firstNonEmpty(res.Outcome, "duplicate"))
	out := fiber.Map{"received": true}
	if res.Duplicate {
		out["duplicate"] = true
	}
	return c.JSON(out)
}

func (lc *LedgerController) countDelivery(ctx context.Context, provider, outcome string) {
	if lc.deliveries == nil {
		return
	}
	if err := lc.deliveries.AddWebhookDelivery(ctx, provider, outcome); err != nil {
		log.Debugf("[Webhook] Delivery counter unavailable: %v", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
