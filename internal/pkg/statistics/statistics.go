package statistics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/cache"
)

const (
	CacheKeyLedger  = "statistics:ledger"
	CacheExpiration = 5 * time.Minute
)

// LedgerStats is the admin overview of money in flight.
type LedgerStats struct {
	GeneratedAt         time.Time        `json:"generatedAt"`
	RefundsByStatus     map[string]int64 `json:"refundsByStatus"`
	PayoutsByStatus     map[string]int64 `json:"payoutsByStatus"`
	PendingPayoutAmount int64            `json:"pendingPayoutAmount"`
	CompletedToday      int64            `json:"completedChargesToday"`
	PendingCharges      int64            `json:"pendingCharges"`
	TipsToday           int64            `json:"tipsToday"`
	WebhookDeliveries   map[string]int64 `json:"webhookDeliveries,omitempty"`
}

type statusCount struct {
	Status string
	Count  int64
}

func countByStatus(ctx context.Context, db *gorm.DB, model interface{}) (map[string]int64, error) {
	var rows []statusCount
	err := db.WithContext(ctx).Model(model).Select("status, COUNT(*) as count").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// Collect reads the figures straight from the database.
func Collect(ctx context.Context, db *gorm.DB, now time.Time) (*LedgerStats, error) {
	stats := &LedgerStats{GeneratedAt: now.UTC()}
	var err error

	if stats.RefundsByStatus, err = countByStatus(ctx, db, &models.Refund{}); err != nil {
		return nil, err
	}
	if stats.PayoutsByStatus, err = countByStatus(ctx, db, &models.Payout{}); err != nil {
		return nil, err
	}
	err = db.WithContext(ctx).Model(&models.Payout{}).
		Where("status IN ?", []string{models.PayoutStatusPending, models.PayoutStatusProcessing}).
		Select("COALESCE(SUM(amount), 0)").Row().Scan(&stats.PendingPayoutAmount)
	if err != nil {
		return nil, err
	}

	dayStart := now.UTC().Truncate(24 * time.Hour)
	for _, model := range []interface{}{&models.Payment{}, &models.Purchase{}, &models.DMPayment{}} {
		var completed, pending int64
		if err := db.WithContext(ctx).Model(model).
			Where("status = ? AND completed_at >= ?", models.ChargeStatusCompleted, dayStart).
			Count(&completed).Error; err != nil {
			return nil, err
		}
		if err := db.WithContext(ctx).Model(model).
			Where("status = ?", models.ChargeStatusPending).Count(&pending).Error; err != nil {
			return nil, err
		}
		stats.CompletedToday += completed
		stats.PendingCharges += pending
	}
	if err := db.WithContext(ctx).Model(&models.Tip{}).
		Where("created_at >= ?", dayStart).Count(&stats.TipsToday).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// Get returns cached statistics, collecting and caching them on a miss.
// A cache outage degrades to a direct read.
func Get(ctx context.Context, db *gorm.DB) (*LedgerStats, error) {
	if raw, err := cache.Get(ctx, CacheKeyLedger); err == nil {
		var stats LedgerStats
		if json.Unmarshal([]byte(raw), &stats) == nil {
			return &stats, nil
		}
	} else if !cache.IsMiss(err) {
		log.Warnf("[Statistics] Cache read failed: %v", err)
	}

	stats, err := Collect(ctx, db, time.Now())
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(stats); err == nil {
		if err := cache.Set(ctx, CacheKeyLedger, raw, CacheExpiration); err != nil {
			log.Warnf("[Statistics] Cache write failed: %v", err)
		}
	}
	return stats, nil
}

// Invalidate drops the cached figures, e.g. after an admin decision.
func Invalidate(ctx context.Context) {
	if err := cache.Delete(ctx, CacheKeyLedger); err != nil {
		log.Debugf("[Statistics] Cache invalidation failed: %v", err)
	}
}
