package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/statistics"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/usercontext"
)

type resolveRefundInput struct {
	Status string `json:"status" validate:"required,oneof=APPROVED REJECTED approved rejected"`
	Note   string `json:"note" validate:"max=1000"`
}

type transitionPayoutInput struct {
	Status      string `json:"status" validate:"required"`
	Note        string `json:"note" validate:"max=1000"`
	ExternalRef string `json:"externalRef" validate:"max=255"`
}

func (lc *LedgerController) HandleAdminListRefunds(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	refunds, err := lc.ledger.ListRefunds(ctx, c.Query("status"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"refunds": refunds})
}

func (lc *LedgerController) HandleAdminResolveRefund(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in resolveRefundInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	refund, err := lc.ledger.ResolveRefund(ctx, usercontext.GetUserID(c), id, in.Status, in.Note)
	if err != nil {
		return err
	}
	statistics.Invalidate(ctx)
	return c.JSON(fiber.Map{"refund": refund})
}

func (lc *LedgerController) HandleAdminListPayouts(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	status := c.Query("status", "PENDING")
	payouts, err := lc.ledger.ListPayoutsByStatus(ctx, status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"payouts": payouts})
}

func (lc *LedgerController) HandleAdminTransitionPayout(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var in transitionPayoutInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	payout, err := lc.ledger.TransitionPayout(ctx, usercontext.GetUserID(c), id, in.Status, in.Note, in.ExternalRef)
	if err != nil {
		return err
	}
	statistics.Invalidate(ctx)
	return c.JSON(fiber.Map{"payout": payout})
}

// HandleAdminTriggerJob queues a maintenance job. Without a queue the job
// runs inline and its result is returned directly.
func (lc *LedgerController) HandleAdminTriggerJob(c *fiber.Ctx) error {
	jobType := jobqueue.JobType(c.Params("type"))
	if jobType != jobqueue.JobTypeReconcileRefunds && jobType != jobqueue.JobTypePurgeWebhooks {
		return apperror.Invalid("type", "oneof=reconcile_refunds purge_webhook_events")
	}
	adminID := usercontext.GetUserID(c)

	if lc.jobs == nil {
		ctx, cancel := requestContext(c)
		defer cancel()
		result, err := lc.runInline(ctx, jobType)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"type": jobType, "status": jobqueue.JobStatusCompleted, "result": result})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()
	job, err := lc.jobs.Trigger(ctx, jobType, adminID)
	if err != nil {
		return err
	}
	log.Infof("[Admin] User %d queued %s job %s", adminID, jobType, job.ID)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"jobId": job.ID, "type": job.Type, "status": job.Status})
}

func (lc *LedgerController) runInline(ctx context.Context, jobType jobqueue.JobType) (interface{}, error) {
	if jobType == jobqueue.JobTypeReconcileRefunds {
		return lc.ledger.ReconcileRefunds(ctx)
	}
	purged, err := lc.ledger.PurgeWebhookEvents(ctx)
	if err != nil {
		return nil, err
	}
	return fiber.Map{"purged": purged}, nil
}

func (lc *LedgerController) HandleAdminGetJob(c *fiber.Ctx) error {
	if lc.jobs == nil {
		return apperror.ErrNotFound
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()
	job, err := lc.jobs.GetQueue().GetJob(ctx, c.Params("id"))
	if err != nil {
		return apperror.ErrNotFound
	}
	return c.JSON(fiber.Map{
		"jobId":       job.ID,
		"type":        job.Type,
		"status":      job.Status,
		"retries":     job.RetryCount,
		"error":       job.ErrorMsg,
		"result":      job.Result,
		"createdAt":   job.CreatedAt.UTC().Format(time.RFC3339),
		"processedAt": formatTimePtr(job.ProcessedAt),
		"completedAt": formatTimePtr(job.CompletedAt),
	})
}

// HandleAdminStats returns the cached ledger overview plus live webhook counters.
func (lc *LedgerController) HandleAdminStats(c *fiber.Ctx) error {
	if lc.statsDB == nil {
		return apperror.ErrNotFound
	}
	ctx, cancel := requestContext(c)
	defer cancel()
	stats, err := statistics.Get(ctx, lc.statsDB)
	if err != nil {
		return err
	}
	if lc.deliveries != nil {
		if deliveries, err := lc.deliveries.WebhookDeliveries(ctx); err == nil {
			stats.WebhookDeliveries = deliveries
		}
	}
	return c.JSON(stats)
}
