package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

func (lc *LedgerController) HandleListSubscriptions(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	subs, err := lc.ledger.ListSubscriptions(ctx, usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"subscriptions": subs})
}

func (lc *LedgerController) HandleCancelSubscription(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	sub, err := lc.ledger.CancelSubscription(ctx, usercontext.GetUserID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

// HandleGetDMQuota reports the caller's unused paid messages to a creator.
func (lc *LedgerController) HandleGetDMQuota(c *fiber.Ctx) error {
	creatorID, err := paramID(c, "creatorId")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	quota, err := lc.ledger.DMQuota(ctx, usercontext.GetUserID(c), creatorID)
	if err != nil {
		return err
	}
	return c.JSON(quota)
}

// HandleConsumeDMMessage spends one paid message before the message service delivers it.
func (lc *LedgerController) HandleConsumeDMMessage(c *fiber.Ctx) error {
	creatorID, err := paramID(c, "creatorId")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	bundle, err := lc.ledger.ConsumeDMMessage(ctx, usercontext.GetUserID(c), creatorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"dmPaymentId": bundle.ID,
		"remaining":   bundle.RemainingMessages(),
		"expiresAt":   formatTimePtr(bundle.ExpiresAt),
	})
}
