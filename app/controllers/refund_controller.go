package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/billing"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

func (lc *LedgerController) HandleRequestRefund(c *fiber.Ctx) error {
	var req billing.RefundRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	req.RequesterID = usercontext.GetUserID(c)

	ctx, cancel := requestContext(c)
	defer cancel()
	refund, err := lc.ledger.RequestRefund(ctx, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"refund": refund})
}

// HandleGetRefund shows a refund to its requester or an admin. Others get 404.
func (lc *LedgerController) HandleGetRefund(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	refund, err := lc.ledger.GetRefund(ctx, id)
	if err != nil {
		return err
	}
	uc := usercontext.GetUserContext(c)
	if refund.RequesterID != uc.UserID && !uc.IsAdmin {
		return apperror.ErrNotFound
	}
	return c.JSON(fiber.Map{"refund": refund})
}
