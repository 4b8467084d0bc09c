package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/billing"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

// HandleGetBalance returns the derived balance of the authenticated creator.
func (lc *LedgerController) HandleGetBalance(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	balance, err := lc.ledger.ComputeBalance(ctx, usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(balance)
}

func (lc *LedgerController) HandleRequestPayout(c *fiber.Ctx) error {
	var req billing.PayoutRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.CreatorID = usercontext.GetUserID(c)

	ctx, cancel := requestContext(c)
	defer cancel()
	payout, err := lc.ledger.RequestPayout(ctx, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payout": payout})
}

func (lc *LedgerController) HandleListPayouts(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	payouts, err := lc.ledger.ListPayouts(ctx, usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payouts": payouts})
}

func (lc *LedgerController) HandleCreatePayoutMethod(c *fiber.Ctx) error {
	var in billing.PayoutMethodInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	in.CreatorID = usercontext.GetUserID(c)

	ctx, cancel := requestContext(c)
	defer cancel()
	method, err := lc.ledger.CreatePayoutMethod(ctx, in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payoutMethod": method})
}

func (lc *LedgerController) HandleListPayoutMethods(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	methods, err := lc.ledger.ListPayoutMethods(ctx, usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payoutMethods": methods})
}

func (lc *LedgerController) HandleSetDefaultPayoutMethod(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	if err := lc.ledger.SetDefaultPayoutMethod(ctx, usercontext.GetUserID(c), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
