package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

// HandleGetAccount returns account information for the authenticated user.
func (lc *LedgerController) HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	ctx, cancel := requestContext(c)
	defer cancel()

	account, err := lc.ledger.GetAccount(ctx, userCtx.UserID)
	if err != nil {
		return err
	}

	response := fiber.Map{
		"id":              account.ID,
		"username":        account.Name,
		"email":           account.Email,
		"role":            account.Role,
		"status":          account.Status,
		"api_key_prefix":  account.APIKeyPrefix,
		"created_at":      account.CreatedAt.UTC().Format(time.RFC3339),
		"commission_tier": nil,
		"dm_offer":        nil,
	}
	if account.IsCreator() {
		response["commission_tier"] = account.CommissionTier
		if account.OffersPaidDMs() {
			response["dm_offer"] = fiber.Map{
				"price":         account.DMPrice,
				"currency":      account.DMCurrency,
				"message_count": account.DMMessageCount,
				"validity_days": account.DMValidityDays,
			}
		}
	}
	return c.JSON(response)
}
