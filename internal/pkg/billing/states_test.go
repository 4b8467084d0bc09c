package billing

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/fees"
)

func TestTransitionsSourcesAndGuard(t *testing.T) {
	assert.Equal(t, []string{models.ChargeStatusPending}, chargeTransitions.sources(models.ChargeStatusCompleted))
	assert.Equal(t, []string{models.ChargeStatusCompleted}, chargeTransitions.sources(models.ChargeStatusRefunded))
	assert.Equal(t, []string{models.SubscriptionStatusActive, models.SubscriptionStatusPending},
		subscriptionTransitions.sources(models.SubscriptionStatusCancelled))
	assert.Empty(t, subscriptionTransitions.sources(models.SubscriptionStatusPending))

	_, err := subscriptionTransitions.guard(models.SubscriptionStatusActive, models.SubscriptionStatusCancelled)
	assert.ErrorIs(t, err, errIllegalTransition)
	_, err = refundTransitions.guard(models.RefundStatusCompleted)
	assert.ErrorIs(t, err, errIllegalTransition)
	from, err := refundTransitions.guard(models.RefundStatusPending, models.RefundStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, []string{models.RefundStatusApproved}, from)
}

func TestPayoutSourceState(t *testing.T) {
	tests := []struct {
		to   string
		from string
		ok   bool
	}{
		{models.PayoutStatusProcessing, models.PayoutStatusPending, true},
		{models.PayoutStatusRejected, models.PayoutStatusPending, true},
		{models.PayoutStatusPaid, models.PayoutStatusProcessing, true},
		{models.PayoutStatusFailed, models.PayoutStatusProcessing, true},
		{models.PayoutStatusPending, "", false},
	}
	for _, tt := range tests {
		from, ok := payoutSourceState(tt.to)
		assert.Equal(t, tt.ok, ok, tt.to)
		assert.Equal(t, tt.from, from, tt.to)
	}
}

func (f *ledgerFixture) seedPayment(t *testing.T, chargeStatus, subStatus string) (*ChargeRecord, *models.Subscription) {
	t.Helper()
	sub := &models.Subscription{FanID: f.fan.ID, TierID: f.tier.ID, CreatorID: f.creator.ID, Status: subStatus}
	require.NoError(t, f.db.Create(sub).Error)
	p := &models.Payment{SubscriptionID: sub.ID, Charge: models.Charge{
		Reference: uuid.NewString(), PayerID: f.fan.ID, CreatorID: f.creator.ID,
		GrossAmount: 10000, Currency: "INR", Provider: "razorpay", Status: chargeStatus,
	}}
	require.NoError(t, f.db.Create(p).Error)
	return paymentRecord(p), sub
}

func TestRepositoryChargeUpdatesFollowTable(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	repo := NewRepository(f.db)
	earnings := fees.Earnings{GrossAmount: 10000, NetEarnings: 10000, Currency: "INR"}

	failed, _ := f.seedPayment(t, models.ChargeStatusFailed, models.SubscriptionStatusCancelled)
	moved, err := repo.CompleteCharge(ctx, failed, earnings, "pay_late", time.Now())
	require.NoError(t, err)
	assert.False(t, moved, "FAILED -> COMPLETED")
	moved, err = repo.MarkChargeRefunded(ctx, failed)
	require.NoError(t, err)
	assert.False(t, moved, "FAILED -> REFUNDED")

	pending, _ := f.seedPayment(t, models.ChargeStatusPending, models.SubscriptionStatusPending)
	moved, err = repo.MarkChargeRefunded(ctx, pending)
	require.NoError(t, err)
	assert.False(t, moved, "PENDING -> REFUNDED")
	moved, err = repo.CompleteCharge(ctx, pending, earnings, "pay_1", time.Now())
	require.NoError(t, err)
	assert.True(t, moved)
	moved, err = repo.FailCharge(ctx, pending, "late failure")
	require.NoError(t, err)
	assert.False(t, moved, "COMPLETED -> FAILED")
	moved, err = repo.MarkChargeRefunded(ctx, pending)
	require.NoError(t, err)
	assert.True(t, moved)

	status, err := repo.ChargeStatus(ctx, pending)
	require.NoError(t, err)
	assert.Equal(t, models.ChargeStatusRefunded, status)
}

func TestRepositoryRejectsTransitionsOutsideTables(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()
	repo := NewRepository(f.db)

	_, sub := f.seedPayment(t, models.ChargeStatusFailed, models.SubscriptionStatusCancelled)
	_, err := repo.TransitionSubscription(ctx, sub.ID, []string{models.SubscriptionStatusCancelled}, models.SubscriptionStatusActive, nil)
	assert.ErrorIs(t, err, errIllegalTransition)

	got, err := repo.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, got.Status)

	_, err = repo.TransitionRefund(ctx, 1, models.RefundStatusPending, models.RefundStatusCompleted, nil)
	assert.ErrorIs(t, err, errIllegalTransition)
	_, err = repo.TransitionPayout(ctx, 1, models.PayoutStatusPending, models.PayoutStatusPaid, nil)
	assert.ErrorIs(t, err, errIllegalTransition)
}

func TestTruncateUTF8KeepsCharactersWhole(t *testing.T) {
	s := strings.Repeat("a", 199) + "é"
	got := truncateUTF8(s, 200)
	assert.Equal(t, strings.Repeat("a", 199), got)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, "héllo", truncateUTF8("héllo", 6))
	assert.Equal(t, "h", truncateUTF8("héllo", 2))
	assert.Equal(t, "", truncateUTF8("日本", 2))
}
