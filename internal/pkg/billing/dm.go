package billing

import (
	"context"
	"errors"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
)

// DMQuota is what a fan has left to spend on messages to one creator.
type DMQuota struct {
	CreatorID uint               `json:"creatorId"`
	Remaining int                `json:"remaining"`
	Bundles   []models.DMPayment `json:"bundles"`
}

// ConsumeDMMessage spends one message from the fan's oldest usable bundle.
func (s *Service) ConsumeDMMessage(ctx context.Context, payerID, creatorID uint) (*models.DMPayment, error) {
	dm, err := s.repo.ConsumeDMMessage(ctx, payerID, creatorID, s.now())
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, apperror.Conflict(apperror.ReasonQuotaExhausted, "no paid messages left for this creator")
	}
	return dm, err
}

func (s *Service) DMQuota(ctx context.Context, payerID, creatorID uint) (*DMQuota, error) {
	bundles, err := s.repo.ListActiveDMPayments(ctx, payerID, creatorID, s.now())
	if err != nil {
		return nil, err
	}
	q := &DMQuota{CreatorID: creatorID, Bundles: bundles}
	for i := range bundles {
		q.Remaining += bundles[i].RemainingMessages()
	}
	return q, nil
}
