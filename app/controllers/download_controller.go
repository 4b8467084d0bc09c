package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

// HandleIssueDownloadToken issues a short-lived token for a product purchase.
func (lc *LedgerController) HandleIssueDownloadToken(c *fiber.Ctx) error {
	purchaseID, err := paramID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	grant, err := lc.ledger.IssueDownloadToken(ctx, usercontext.GetUserID(c), purchaseID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(grant)
}

// HandleDownload redeems a token and redirects to a presigned object URL.
// The token is the credential, so the route needs no session.
func (lc *LedgerController) HandleDownload(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	url, err := lc.ledger.RedeemDownload(ctx, c.Params("token"), usercontext.GetUserID(c))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Redirect(url, fiber.StatusFound)
}
