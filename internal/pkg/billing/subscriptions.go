package billing

import (
	"context"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/audit"
	"github.com/sirupsen/logrus"
)

func (s *Service) ListSubscriptions(ctx context.Context, fanID uint) ([]models.Subscription, error) {
	return s.repo.ListSubscriptionsByFan(ctx, fanID)
}

// CancelSubscription stops an ACTIVE subscription on the fan's request.
// Access runs until EndDate; nothing is refunded.
func (s *Service) CancelSubscription(ctx context.Context, fanID, subscriptionID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.FanID != fanID {
		return nil, apperror.Forbidden("subscription belongs to another fan")
	}
	if sub.Status != models.SubscriptionStatusActive {
		return nil, apperror.Conflict(apperror.ReasonInvalidTransition, "subscription is "+sub.Status)
	}

	moved, err := s.repo.TransitionSubscription(ctx, sub.ID,
		[]string{models.SubscriptionStatusActive}, models.SubscriptionStatusCancelled,
		map[string]interface{}{"cancelled_at": s.now()})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apperror.Conflict(apperror.ReasonInvalidTransition, "subscription changed concurrently")
	}
	audit.Record(ctx, "subscription.cancelled", logrus.Fields{"subscription_id": sub.ID, "fan_id": fanID, "source": "fan"})
	return s.repo.GetSubscription(ctx, sub.ID)
}
