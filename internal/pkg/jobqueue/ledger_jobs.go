package jobqueue

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/billing"
)

// Ledger is the part of the billing service the maintenance jobs drive.
type Ledger interface {
	ReconcileRefunds(ctx context.Context) (billing.ReconcileReport, error)
	PurgeWebhookEvents(ctx context.Context) (int64, error)
}

// RegisterLedgerJobs binds the refund reconciliation and webhook purge jobs.
func RegisterLedgerJobs(q *Queue, ledger Ledger) {
	q.Register(JobTypeReconcileRefunds, reconcileRefundsHandler(ledger))
	q.Register(JobTypePurgeWebhooks, purgeWebhooksHandler(ledger))
}

func reconcileRefundsHandler(ledger Ledger) Handler {
	return func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		report, err := ledger.ReconcileRefunds(ctx)
		if err != nil {
			return nil, err
		}
		if report.Examined > 0 {
			log.Infof("[JobQueue] Refund reconciliation %s: %+v", job.ID, report)
		}
		return map[string]interface{}{
			"examined":  report.Examined,
			"completed": report.Completed,
			"reissued":  report.Reissued,
			"failed":    report.Failed,
		}, nil
	}
}

func purgeWebhooksHandler(ledger Ledger) Handler {
	return func(ctx context.Context, job *Job) (map[string]interface{}, error) {
		n, err := ledger.PurgeWebhookEvents(ctx)
		if err != nil {
			return nil, err
		}
		log.Infof("[JobQueue] Purged %d webhook events (job %s)", n, job.ID)
		return map[string]interface{}{"deleted": n}, nil
	}
}
