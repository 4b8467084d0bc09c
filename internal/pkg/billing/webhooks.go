package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/audit"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
	"github.com/gofiber/fiber/v2/log"
	"github.com/sirupsen/logrus"
)

// ErrWebhookSignature is returned for any delivery that fails verification.
// The cause is logged, never sent back.
var ErrWebhookSignature = errors.New("webhook signature rejected")

// HandleWebhook verifies a raw provider delivery and applies it at most once.
// Every delivery with a valid signature is acknowledged, matched or not.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, headers http.Header, body []byte) (webhook.Result, error) {
	p, err := s.registry.Get(providerName)
	if err != nil {
		return webhook.Result{}, apperror.ErrNotFound
	}
	h, ok := providers.AsWebhookHandler(p)
	if !ok {
		return webhook.Result{}, apperror.ErrNotFound
	}

	if err := h.VerifyWebhook(headers, body, s.now()); err != nil {
		log.Warnf("[Webhook] %s signature rejected: %v", p.Name(), err)
		return webhook.Result{}, fmt.Errorf("%w: %v", ErrWebhookSignature, err)
	}

	ev, err := h.ParseWebhook(headers, body)
	if err != nil {
		log.Errorf("[Webhook] %s delivery verified but unparseable: %v", p.Name(), err)
		return webhook.Result{Outcome: "unparseable"}, nil
	}

	res, err := s.guard.Handle(ctx, ev, s.ApplyWebhookEvent)
	if errors.Is(err, webhook.ErrMissingEventID) {
		log.Errorf("[Webhook] %s %s delivery has no event identity", p.Name(), ev.Type)
		return webhook.Result{Outcome: "missing_event_id"}, nil
	}
	if err != nil {
		return webhook.Result{}, err
	}
	log.Infof("[Webhook] %s %s (%s): %s", p.Name(), ev.Type, ev.ID, res.Outcome)
	return res, nil
}

// ApplyWebhookEvent maps a normalized event onto the state machines. It is
// safe to call repeatedly for the same event.
func (s *Service) ApplyWebhookEvent(ctx context.Context, ev *webhook.Event) (string, error) {
	switch ev.Kind {
	case webhook.KindPaymentSucceeded, webhook.KindPaymentFailed:
		return s.applyPaymentEvent(ctx, ev)
	case webhook.KindSubscriptionCancelled:
		return s.applySubscriptionCancelled(ctx, ev)
	case webhook.KindRefundProcessed:
		return s.applyRefundProcessed(ctx, ev)
	case webhook.KindRefundFailed:
		return s.applyRefundFailed(ctx, ev)
	}
	return "ignored", nil
}

func (s *Service) applyPaymentEvent(ctx context.Context, ev *webhook.Event) (string, error) {
	rec, err := s.locateCharge(ctx, ev.Provider, ev.OrderID, ev.Reference)
	if errors.Is(err, apperror.ErrNotFound) {
		if ev.Kind == webhook.KindPaymentSucceeded {
			return s.applyTipEvent(ctx, ev)
		}
		return "unmatched", nil
	}
	if err != nil {
		return "", err
	}

	status, err := s.settle(ctx, rec, settlement{
		success:       ev.Kind == webhook.KindPaymentSucceeded,
		chargeID:      ev.ChargeID,
		amount:        ev.Amount,
		currency:      ev.Currency,
		methodClass:   ev.MethodClass,
		failureReason: ev.FailureReason,
	})
	if apperror.IsConflict(err, apperror.ReasonInvalidTransition) {
		// Recorded as an anomaly; retrying the delivery cannot change it.
		return fmt.Sprintf("%s %d anomaly: %s", rec.Kind, rec.ID, strings.ToLower(status)), nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %d %s", rec.Kind, rec.ID, strings.ToLower(status)), nil
}

// applyTipEvent records a tip from the event notes, fetching the order when
// the provider does not echo them on the payment.
func (s *Service) applyTipEvent(ctx context.Context, ev *webhook.Event) (string, error) {
	notes := ev.Notes
	if notes["kind"] != string(KindTip) && ev.OrderID != "" {
		p, err := s.registry.Get(ev.Provider)
		if err == nil && providers.SupportsNotes(p) {
			details, err := p.FetchOrder(ctx, ev.OrderID)
			if err != nil {
				return "", err
			}
			notes = details.Notes
		}
	}
	if notes["kind"] != string(KindTip) {
		return "unmatched", nil
	}

	created, err := s.recordTip(ctx, ev.Provider, ev.OrderID, ev.ChargeID, notes, ev.Amount, ev.Currency)
	if err != nil {
		return "", err
	}
	if !created {
		return "tip already recorded", nil
	}
	return "tip recorded", nil
}

func (s *Service) applySubscriptionCancelled(ctx context.Context, ev *webhook.Event) (string, error) {
	sub, err := s.repo.FindSubscriptionByProviderRef(ctx, ev.SubscriptionRef)
	if errors.Is(err, apperror.ErrNotFound) {
		if id := parseID(ev.SubscriptionRef); id != 0 {
			sub, err = s.repo.GetSubscription(ctx, id)
		}
	}
	if errors.Is(err, apperror.ErrNotFound) {
		return "unmatched", nil
	}
	if err != nil {
		return "", err
	}

	moved, err := s.repo.TransitionSubscription(ctx, sub.ID,
		[]string{models.SubscriptionStatusPending, models.SubscriptionStatusActive}, models.SubscriptionStatusCancelled,
		map[string]interface{}{"cancelled_at": s.now()})
	if err != nil {
		return "", err
	}
	if !moved {
		return fmt.Sprintf("subscription %d already %s", sub.ID, strings.ToLower(sub.Status)), nil
	}
	audit.Record(ctx, "subscription.cancelled", logrus.Fields{"subscription_id": sub.ID, "fan_id": sub.FanID, "source": ev.Provider})
	return fmt.Sprintf("subscription %d cancelled", sub.ID), nil
}

func (s *Service) applyRefundProcessed(ctx context.Context, ev *webhook.Event) (string, error) {
	rf, err := s.repo.FindRefund(ctx, ev.RefundReference, ev.RefundID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "unmatched", nil
	}
	if err != nil {
		return "", err
	}

	switch rf.Status {
	case models.RefundStatusApproved:
		if rf.ProviderRefundID == "" && ev.RefundID != "" {
			if err := s.repo.SetProviderRefundID(ctx, rf.ID, ev.RefundID); err != nil {
				return "", err
			}
			rf.ProviderRefundID = ev.RefundID
		}
		if err := s.completeRefund(ctx, rf); err != nil {
			return "", err
		}
		return fmt.Sprintf("refund %d completed", rf.ID), nil
	case models.RefundStatusCompleted:
		return fmt.Sprintf("refund %d already completed", rf.ID), nil
	}

	audit.Anomaly(ctx, "refund.unexpected_provider_refund", logrus.Fields{
		"refund_id": rf.ID, "status": rf.Status, "provider": ev.Provider, "provider_refund_id": ev.RefundID,
	})
	return fmt.Sprintf("refund %d anomaly: %s", rf.ID, strings.ToLower(rf.Status)), nil
}

// applyRefundFailed puts an APPROVED refund back to PENDING for another review.
func (s *Service) applyRefundFailed(ctx context.Context, ev *webhook.Event) (string, error) {
	rf, err := s.repo.FindRefund(ctx, ev.RefundReference, ev.RefundID)
	if errors.Is(err, apperror.ErrNotFound) {
		return "unmatched", nil
	}
	if err != nil {
		return "", err
	}
	if rf.Status != models.RefundStatusApproved {
		if rf.Status == models.RefundStatusCompleted {
			audit.Anomaly(ctx, "refund.failed_after_completion", logrus.Fields{"refund_id": rf.ID, "provider": ev.Provider})
		}
		return fmt.Sprintf("refund %d %s", rf.ID, strings.ToLower(rf.Status)), nil
	}

	moved, err := s.revertRefund(ctx, rf, "provider refund failed: "+firstNonEmpty(ev.FailureReason, ev.Type))
	if err != nil {
		return "", err
	}
	if !moved {
		return fmt.Sprintf("refund %d moved concurrently", rf.ID), nil
	}
	return fmt.Sprintf("refund %d reverted to pending", rf.ID), nil
}

// PurgeWebhookEvents deletes recorded events past the retention period.
func (s *Service) PurgeWebhookEvents(ctx context.Context) (int64, error) {
	n, err := s.guard.Purge(ctx)
	if err != nil {
		return 0, err
	}
	log.Infof("[Webhook] Purged %d recorded events", n)
	return n, nil
}
