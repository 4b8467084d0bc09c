package billing

import (
	"context"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// ReconcileRefunds closes refunds stuck in APPROVED. A refund the provider
// already acknowledged is completed; one that never got a provider id and is
// older than StaleRefundAfter is sent again under the same idempotency key.
func (s *Service) ReconcileRefunds(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	refunds, err := s.repo.ListRefundsByStatus(ctx, models.RefundStatusApproved)
	if err != nil {
		return report, err
	}
	cutoff := s.now().Add(-s.cfg.StaleRefundAfter)

	for i := range refunds {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		rf := &refunds[i]
		report.Examined++

		if rf.ProviderRefundID != "" {
			if err := s.completeRefund(ctx, rf); err != nil {
				log.Errorf("[Reconcile] Failed to complete refund %d: %v", rf.ID, err)
				report.Failed++
				continue
			}
			report.Completed++
			continue
		}
		if rf.UpdatedAt.After(cutoff) {
			continue
		}

		rec, err := s.repo.GetChargeRecord(ctx, refundSourceTable(rf.SourceKind), rf.SourceID)
		if err != nil {
			log.Errorf("[Reconcile] Refund %d source lookup failed: %v", rf.ID, err)
			report.Failed++
			continue
		}
		refunder, err := s.refunderFor(rec.Provider)
		if err != nil {
			log.Errorf("[Reconcile] Refund %d cannot be reissued: %v", rf.ID, err)
			report.Failed++
			continue
		}
		if err := s.issueRefund(ctx, rf, rec, refunder); err != nil {
			log.Errorf("[Reconcile] Reissue of refund %d failed: %v", rf.ID, err)
			report.Failed++
			continue
		}
		report.Reissued++
	}

	log.Infof("[Reconcile] Refunds examined=%d completed=%d reissued=%d failed=%d",
		report.Examined, report.Completed, report.Reissued, report.Failed)
	return report, nil
}
