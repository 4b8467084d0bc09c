package statistics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
)

func TestCollect(t *testing.T) {
	db, err := database.OpenMemory(uuid.NewString())
	require.NoError(t, err)
	now := time.Now().UTC()

	require.NoError(t, db.Create(&models.Payout{CreatorID: 1, Amount: 4000, Currency: "INR", PayoutMethodID: 1, Status: models.PayoutStatusPending}).Error)
	require.NoError(t, db.Create(&models.Payout{CreatorID: 1, Amount: 1000, Currency: "INR", PayoutMethodID: 1, Status: models.PayoutStatusProcessing}).Error)
	require.NoError(t, db.Create(&models.Payout{CreatorID: 1, Amount: 9000, Currency: "INR", PayoutMethodID: 1, Status: models.PayoutStatusPaid}).Error)
	require.NoError(t, db.Create(&models.Refund{Reference: uuid.NewString(), RequesterID: 2, SourceKind: models.RefundSourcePurchase,
		SourceID: 1, Amount: 500, Currency: "INR", Reason: "wrong file entirely", Status: models.RefundStatusPending}).Error)

	require.NoError(t, db.Create(&models.Purchase{Kind: models.PurchaseKindPPV, Charge: models.Charge{
		Reference: uuid.NewString(), PayerID: 2, CreatorID: 1, GrossAmount: 500, Currency: "INR", Provider: "razorpay",
		Status: models.ChargeStatusCompleted, CompletedAt: &now,
	}}).Error)
	require.NoError(t, db.Create(&models.Payment{SubscriptionID: 1, Charge: models.Charge{
		Reference: uuid.NewString(), PayerID: 2, CreatorID: 1, GrossAmount: 1000, Currency: "INR", Provider: "stripe",
		Status: models.ChargeStatusPending,
	}}).Error)
	require.NoError(t, db.Create(&models.Tip{TipperID: 2, CreatorID: 1, Amount: 100, Currency: "INR",
		Provider: "razorpay", ProviderChargeID: "pay_tip", NetEarnings: 80}).Error)

	stats, err := Collect(context.Background(), db, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.PayoutsByStatus[models.PayoutStatusPending])
	assert.Equal(t, int64(1), stats.PayoutsByStatus[models.PayoutStatusPaid])
	assert.Equal(t, int64(5000), stats.PendingPayoutAmount)
	assert.Equal(t, int64(1), stats.RefundsByStatus[models.RefundStatusPending])
	assert.Equal(t, int64(1), stats.CompletedToday)
	assert.Equal(t, int64(1), stats.PendingCharges)
	assert.Equal(t, int64(1), stats.TipsToday)
}
