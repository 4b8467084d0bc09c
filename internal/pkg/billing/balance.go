package billing

import (
	"context"

	"github.com/ManuelReschke/CreatorVault/app/models"
)

// ComputeBalance derives the creator's balance from completed revenue and
// reserving payouts. Nothing is cached; every call reads the records.
func (s *Service) ComputeBalance(ctx context.Context, creatorID uint) (*Balance, error) {
	return computeBalance(ctx, s.repo, creatorID, s.cfg.SettlementCurrency)
}

func computeBalance(ctx context.Context, repo Repository, creatorID uint, currency string) (*Balance, error) {
	breakdown, err := repo.SumEarnings(ctx, creatorID, currency)
	if err != nil {
		return nil, err
	}
	paidOut, err := repo.SumPayouts(ctx, creatorID, currency, models.PayoutReservingStatuses)
	if err != nil {
		return nil, err
	}
	total := breakdown.Total()
	return &Balance{
		CreatorID:        creatorID,
		Currency:         currency,
		TotalEarnings:    total,
		PaidOut:          paidOut,
		AvailableBalance: total - paidOut,
		Breakdown:        breakdown,
	}, nil
}
