package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/audit"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const minRefundReason = 10

func refundSourceTable(kind string) string {
	if kind == models.RefundSourcePayment {
		return tablePayments
	}
	return tablePurchases
}

// RequestRefund opens a PENDING refund on a completed payment or purchase
// owned by the requester, inside the refund window.
func (s *Service) RequestRefund(ctx context.Context, req RefundRequest) (*models.Refund, error) {
	if (req.PurchaseID == 0) == (req.PaymentID == 0) {
		return nil, apperror.Invalid("purchaseId", "exactly one of purchaseId or paymentId is required")
	}
	reason := strings.TrimSpace(req.Reason)
	if len(reason) < minRefundReason {
		return nil, apperror.Invalid("reason", fmt.Sprintf("min=%d", minRefundReason))
	}

	sourceKind, sourceID := models.RefundSourcePurchase, req.PurchaseID
	if req.PaymentID != 0 {
		sourceKind, sourceID = models.RefundSourcePayment, req.PaymentID
	}
	rec, err := s.repo.GetChargeRecord(ctx, refundSourceTable(sourceKind), sourceID)
	if err != nil {
		return nil, err
	}
	if rec.PayerID != req.RequesterID {
		return nil, apperror.Forbidden("transaction belongs to another payer")
	}
	if !rec.IsCompleted() {
		return nil, apperror.Conflict(apperror.ReasonNotRefundable, "only completed transactions can be refunded")
	}
	if rec.CompletedAt == nil || s.now().After(rec.CompletedAt.Add(s.cfg.RefundWindow)) {
		return nil, apperror.Conflict(apperror.ReasonRefundWindowExpired, "the refund window has passed")
	}

	refund := &models.Refund{
		Reference:   uuid.NewString(),
		RequesterID: req.RequesterID,
		SourceKind:  sourceKind,
		SourceID:    sourceID,
		Amount:      rec.GrossAmount,
		Currency:    rec.Currency,
		Reason:      reason,
		Status:      models.RefundStatusPending,
	}
	lockKey := fmt.Sprintf("refund:%s:%d", sourceKind, sourceID)
	err = s.withLock(ctx, lockKey, func() error {
		return s.repo.Transaction(ctx, func(tx Repository) error {
			active, err := tx.HasActiveRefund(ctx, sourceKind, sourceID)
			if err != nil {
				return err
			}
			if active {
				return apperror.Conflict(apperror.ReasonRefundActive, "a refund for this transaction is already open")
			}
			return tx.CreateRefund(ctx, refund)
		})
	})
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, "refund.requested", logrus.Fields{
		"refund_id": refund.ID, "reference": refund.Reference, "source_kind": sourceKind,
		"source_id": sourceID, "requester_id": req.RequesterID, "amount": refund.Amount, "currency": refund.Currency,
	})
	return refund, nil
}

func (s *Service) GetRefund(ctx context.Context, id uint) (*models.Refund, error) {
	return s.repo.GetRefund(ctx, id)
}

func (s *Service) ListRefunds(ctx context.Context, status string) ([]models.Refund, error) {
	return s.repo.ListRefundsByStatus(ctx, strings.ToUpper(firstNonEmpty(status, models.RefundStatusPending)))
}

// ResolveRefund is the admin decision on a PENDING refund. REJECTED only
// records the note. APPROVED refunds through the provider and, on success,
// completes the refund and marks the source REFUNDED in one transaction.
// A refunded subscription payment also cancels its subscription.
func (s *Service) ResolveRefund(ctx context.Context, adminID, refundID uint, status, note string) (*models.Refund, error) {
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != models.RefundStatusApproved && status != models.RefundStatusRejected {
		return nil, apperror.Invalid("status", "oneof=APPROVED REJECTED")
	}
	refund, err := s.repo.GetRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if !refundTransitions.allows(refund.Status, status) || refund.Status != models.RefundStatusPending {
		return nil, apperror.Conflict(apperror.ReasonInvalidTransition, "refund is "+strings.ToLower(refund.Status))
	}

	resolution := map[string]interface{}{
		"review_note": note,
		"reviewer_id": adminID,
		"resolved_at": s.now(),
	}

	if status == models.RefundStatusRejected {
		moved, err := s.repo.TransitionRefund(ctx, refund.ID, models.RefundStatusPending, models.RefundStatusRejected, resolution)
		if err != nil {
			return nil, err
		}
		if !moved {
			return nil, apperror.Conflict(apperror.ReasonInvalidTransition, "refund changed concurrently")
		}
		audit.Record(ctx, "refund.rejected", logrus.Fields{"refund_id": refund.ID, "admin_id": adminID})
		return s.repo.GetRefund(ctx, refund.ID)
	}

	rec, err := s.repo.GetChargeRecord(ctx, refundSourceTable(refund.SourceKind), refund.SourceID)
	if err != nil {
		return nil, err
	}
	refunder, err := s.refunderFor(rec.Provider)
	if err != nil {
		return nil, err
	}
	moved, err := s.repo.TransitionRefund(ctx, refund.ID, models.RefundStatusPending, models.RefundStatusApproved, resolution)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, apperror.Conflict(apperror.ReasonInvalidTransition, "refund changed concurrently")
	}
	refund.Status = models.RefundStatusApproved
	audit.Record(ctx, "refund.approved", logrus.Fields{"refund_id": refund.ID, "admin_id": adminID, "amount": refund.Amount})

	if err := s.issueRefund(ctx, refund, rec, refunder); err != nil {
		return nil, err
	}
	return s.repo.GetRefund(ctx, refund.ID)
}

// refunderFor reports a provider without refund support as a permanent conflict.
func (s *Service) refunderFor(provider string) (providers.Refunder, error) {
	p, err := s.registry.Get(provider)
	if err != nil {
		return nil, apperror.Conflict(apperror.ReasonUnsupported, "provider "+provider+" is not configured")
	}
	refunder, ok := providers.AsRefunder(p)
	if !ok {
		return nil, apperror.Conflict(apperror.ReasonUnsupported, "provider "+provider+" does not support refunds")
	}
	return refunder, nil
}

// issueRefund calls the provider for an APPROVED refund. The refund
// reference is the provider idempotency key, so a retry never refunds twice.
// An unknown outcome keeps the refund APPROVED for the reconciler; a definite
// rejection puts it back to PENDING.
func (s *Service) issueRefund(ctx context.Context, refund *models.Refund, rec *ChargeRecord, refunder providers.Refunder) error {
	res, err := refunder.RefundPayment(ctx, providers.RefundRequest{
		ChargeID:       rec.ProviderChargeID,
		OrderID:        rec.OrderID(),
		Amount:         refund.Amount,
		Currency:       refund.Currency,
		IdempotencyKey: refund.Reference,
	})
	if err == nil && res != nil && isFailedRefundStatus(res.Status) {
		err = &apperror.ProviderError{Provider: rec.Provider, Op: "refund", Err: errors.New("refund " + res.Status)}
	}
	if err != nil {
		if apperror.IsUnknownOutcome(err) {
			audit.Anomaly(ctx, "refund.outcome_unknown", logrus.Fields{"refund_id": refund.ID, "provider": rec.Provider, "error": err.Error()})
			log.Warnf("[Refund] %d left APPROVED, provider outcome unknown: %v", refund.ID, err)
			return nil
		}
		if _, revertErr := s.revertRefund(ctx, refund, "provider rejected refund: "+err.Error()); revertErr != nil {
			log.Errorf("[Refund] Failed to revert refund %d: %v", refund.ID, revertErr)
		}
		return err
	}

	if res != nil && res.RefundID != "" {
		if err := s.repo.SetProviderRefundID(ctx, refund.ID, res.RefundID); err != nil {
			return err
		}
		refund.ProviderRefundID = res.RefundID
	}
	return s.completeRefund(ctx, refund)
}

func isFailedRefundStatus(status string) bool {
	switch strings.ToLower(status) {
	case "failed", "cancelled", "canceled":
		return true
	}
	return false
}

// completeRefund moves APPROVED -> COMPLETED and the source to REFUNDED atomically.
func (s *Service) completeRefund(ctx context.Context, refund *models.Refund) error {
	rec, err := s.repo.GetChargeRecord(ctx, refundSourceTable(refund.SourceKind), refund.SourceID)
	if err != nil {
		return err
	}
	var moved, cancelled bool
	err = s.repo.Transaction(ctx, func(tx Repository) error {
		var err error
		moved, err = tx.TransitionRefund(ctx, refund.ID, models.RefundStatusApproved, models.RefundStatusCompleted,
			map[string]interface{}{"completed_at": s.now()})
		if err != nil || !moved {
			return err
		}
		refunded, err := tx.MarkChargeRefunded(ctx, rec)
		if err != nil {
			return err
		}
		if !refunded {
			log.Warnf("[Refund] Source %s %d of refund %d was not COMPLETED", refund.SourceKind, refund.SourceID, refund.ID)
		}
		if rec.Kind != KindSubscription || rec.SubscriptionID == 0 {
			return nil
		}
		// A refunded period grants no access.
		cancelled, err = tx.TransitionSubscription(ctx, rec.SubscriptionID,
			[]string{models.SubscriptionStatusPending, models.SubscriptionStatusActive}, models.SubscriptionStatusCancelled,
			map[string]interface{}{"cancelled_at": s.now()})
		return err
	})
	if err != nil {
		return err
	}
	if moved {
		refund.Status = models.RefundStatusCompleted
		audit.Record(ctx, "refund.completed", logrus.Fields{
			"refund_id": refund.ID, "reference": refund.Reference, "provider_refund_id": refund.ProviderRefundID,
			"source_kind": refund.SourceKind, "source_id": refund.SourceID, "creator_id": rec.CreatorID, "amount": refund.Amount,
		})
	}
	if cancelled {
		audit.Record(ctx, "subscription.cancelled", logrus.Fields{
			"subscription_id": rec.SubscriptionID, "fan_id": rec.PayerID, "source": "refund", "refund_id": refund.ID,
		})
	}
	return nil
}

// revertRefund returns an APPROVED refund to PENDING and clears the decision.
func (s *Service) revertRefund(ctx context.Context, refund *models.Refund, note string) (bool, error) {
	note = truncateUTF8(note, 500)
	moved, err := s.repo.TransitionRefund(ctx, refund.ID, models.RefundStatusApproved, models.RefundStatusPending, map[string]interface{}{
		"review_note":        note,
		"reviewer_id":        nil,
		"resolved_at":        nil,
		"provider_refund_id": "",
	})
	if err != nil {
		return false, err
	}
	if moved {
		refund.Status = models.RefundStatusPending
		audit.Anomaly(ctx, "refund.reverted", logrus.Fields{"refund_id": refund.ID, "note": note})
	}
	return moved, nil
}
