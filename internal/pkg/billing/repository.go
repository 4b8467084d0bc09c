package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/apperror"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/database"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/fees"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the ledger service. State changes
// are conditional updates reporting whether a row actually moved.
type Repository interface {
	webhook.Store

	// Transaction runs fn against a repository bound to one DB transaction.
	Transaction(ctx context.Context, fn func(tx Repository) error) error
	// LockCreator takes a row lock on the creator for the rest of the transaction.
	LockCreator(ctx context.Context, creatorID uint) error

	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetSubscriptionTier(ctx context.Context, id uint) (*models.SubscriptionTier, error)
	GetProduct(ctx context.Context, id uint) (*models.Product, error)
	GetPost(ctx context.Context, id uint) (*models.Post, error)

	CreateSubscriptionWithPayment(ctx context.Context, sub *models.Subscription, payment *models.Payment) error
	CreatePurchase(ctx context.Context, p *models.Purchase) error
	CreateDMPayment(ctx context.Context, d *models.DMPayment) error
	SetProviderOrderID(ctx context.Context, rec *ChargeRecord, orderID string) error
	DeleteCharge(ctx context.Context, rec *ChargeRecord) error

	FindChargeByOrder(ctx context.Context, provider, orderID string) (*ChargeRecord, error)
	FindChargeByReference(ctx context.Context, reference string) (*ChargeRecord, error)
	GetChargeRecord(ctx context.Context, table string, id uint) (*ChargeRecord, error)
	FindOpenPurchase(ctx context.Context, payerID uint, kind string, resourceID uint) (*models.Purchase, error)
	FindOpenSubscription(ctx context.Context, fanID, tierID uint) (*models.Subscription, error)
	ListPurchasesByPayer(ctx context.Context, payerID uint) ([]models.Purchase, error)

	CompleteCharge(ctx context.Context, rec *ChargeRecord, e fees.Earnings, chargeID string, at time.Time) (bool, error)
	FailCharge(ctx context.Context, rec *ChargeRecord, reason string) (bool, error)
	MarkChargeRefunded(ctx context.Context, rec *ChargeRecord) (bool, error)
	ChargeStatus(ctx context.Context, rec *ChargeRecord) (string, error)

	GetSubscription(ctx context.Context, id uint) (*models.Subscription, error)
	FindSubscriptionByProviderRef(ctx context.Context, ref string) (*models.Subscription, error)
	ListSubscriptionsByFan(ctx context.Context, fanID uint) ([]models.Subscription, error)
	TransitionSubscription(ctx context.Context, id uint, from []string, to string, updates map[string]interface{}) (bool, error)
	AbandonSubscription(ctx context.Context, id uint, reason string, at time.Time) error

	SetDMExpiry(ctx context.Context, id uint, expiresAt time.Time) error
	ConsumeDMMessage(ctx context.Context, payerID, creatorID uint, now time.Time) (*models.DMPayment, error)
	ListActiveDMPayments(ctx context.Context, payerID, creatorID uint, now time.Time) ([]models.DMPayment, error)

	CreateTipIfNotExists(ctx context.Context, tip *models.Tip) (bool, error)

	SumEarnings(ctx context.Context, creatorID uint, currency string) (Breakdown, error)
	SumPayouts(ctx context.Context, creatorID uint, currency string, statuses []string) (int64, error)

	CreatePayout(ctx context.Context, p *models.Payout) error
	GetPayout(ctx context.Context, id uint) (*models.Payout, error)
	ListPayoutsByCreator(ctx context.Context, creatorID uint) ([]models.Payout, error)
	ListPayoutsByStatus(ctx context.Context, status string) ([]models.Payout, error)
	TransitionPayout(ctx context.Context, id uint, from, to string, updates map[string]interface{}) (bool, error)

	CreatePayoutMethod(ctx context.Context, m *models.PayoutMethod) error
	GetPayoutMethod(ctx context.Context, id uint) (*models.PayoutMethod, error)
	ListPayoutMethods(ctx context.Context, creatorID uint) ([]models.PayoutMethod, error)
	CountPayoutMethods(ctx context.Context, creatorID uint) (int64, error)
	SetDefaultPayoutMethod(ctx context.Context, creatorID, methodID uint) error

	CreateRefund(ctx context.Context, rf *models.Refund) error
	GetRefund(ctx context.Context, id uint) (*models.Refund, error)
	FindRefund(ctx context.Context, reference, providerRefundID string) (*models.Refund, error)
	HasActiveRefund(ctx context.Context, sourceKind string, sourceID uint) (bool, error)
	ListRefundsByStatus(ctx context.Context, status string) ([]models.Refund, error)
	TransitionRefund(ctx context.Context, id uint, from, to string, updates map[string]interface{}) (bool, error)
	SetProviderRefundID(ctx context.Context, id uint, providerRefundID string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) LockCreator(ctx context.Context, creatorID uint) error {
	q := r.db.WithContext(ctx)
	if !database.IsSQLite(r.db) {
		// SQLite has no row locks; its single writer already serializes.
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var u models.User
	return notFound(q.Select("id").Where("id = ?", creatorID).First(&u).Error)
}

// notFound maps gorm's not-found error onto the package sentinel.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.ErrNotFound
	}
	return err
}

func (r *gormRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *gormRepository) GetSubscriptionTier(ctx context.Context, id uint) (*models.SubscriptionTier, error) {
	var t models.SubscriptionTier
	if err := r.db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *gormRepository) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormRepository) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	var p models.Post
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormRepository) CreateSubscriptionWithPayment(ctx context.Context, sub *models.Subscription, payment *models.Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		payment.SubscriptionID = sub.ID
		return tx.Create(payment).Error
	})
}

func (r *gormRepository) CreatePurchase(ctx context.Context, p *models.Purchase) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormRepository) CreateDMPayment(ctx context.Context, d *models.DMPayment) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func chargeModel(table string) (interface{}, error) {
	switch table {
	case tablePayments:
		return &models.Payment{}, nil
	case tablePurchases:
		return &models.Purchase{}, nil
	case tableDMPayments:
		return &models.DMPayment{}, nil
	}
	return nil, fmt.Errorf("unknown charge table %q", table)
}

func (r *gormRepository) SetProviderOrderID(ctx context.Context, rec *ChargeRecord, orderID string) error {
	m, err := chargeModel(rec.Table)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Model(m).Where("id = ?", rec.ID).Update("provider_order_id", orderID).Error
}

// DeleteCharge removes a PENDING charge whose provider order could not be
// created. The companion PENDING subscription goes with a payment.
func (r *gormRepository) DeleteCharge(ctx context.Context, rec *ChargeRecord) error {
	m, err := chargeModel(rec.Table)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND status = ?", rec.ID, models.ChargeStatusPending).Delete(m).Error; err != nil {
			return err
		}
		if rec.Table == tablePayments && rec.SubscriptionID != 0 {
			return tx.Where("id = ? AND status = ?", rec.SubscriptionID, models.SubscriptionStatusPending).
				Delete(&models.Subscription{}).Error
		}
		return nil
	})
}

// findCharge runs the same condition against every charge table.
func (r *gormRepository) findCharge(ctx context.Context, query string, args ...interface{}) (*ChargeRecord, error) {
	db := r.db.WithContext(ctx)

	var payment models.Payment
	err := db.Where(query, args...).First(&payment).Error
	if err == nil {
		return paymentRecord(&payment), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var purchase models.Purchase
	err = db.Where(query, args...).First(&purchase).Error
	if err == nil {
		return purchaseRecord(&purchase), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var dm models.DMPayment
	err = db.Where(query, args...).First(&dm).Error
	if err == nil {
		return dmRecord(&dm), nil
	}
	return nil, notFound(err)
}

func (r *gormRepository) FindChargeByOrder(ctx context.Context, provider, orderID string) (*ChargeRecord, error) {
	if orderID == "" {
		return nil, apperror.ErrNotFound
	}
	return r.findCharge(ctx, "provider = ? AND provider_order_id = ?", provider, orderID)
}

func (r *gormRepository) FindChargeByReference(ctx context.Context, reference string) (*ChargeRecord, error) {
	if reference == "" {
		return nil, apperror.ErrNotFound
	}
	return r.findCharge(ctx, "reference = ?", reference)
}

func (r *gormRepository) GetChargeRecord(ctx context.Context, table string, id uint) (*ChargeRecord, error) {
	db := r.db.WithContext(ctx)
	switch table {
	case tablePayments:
		var p models.Payment
		if err := db.First(&p, id).Error; err != nil {
			return nil, notFound(err)
		}
		return paymentRecord(&p), nil
	case tablePurchases:
		var p models.Purchase
		if err := db.First(&p, id).Error; err != nil {
			return nil, notFound(err)
		}
		return purchaseRecord(&p), nil
	case tableDMPayments:
		var d models.DMPayment
		if err := db.First(&d, id).Error; err != nil {
			return nil, notFound(err)
		}
		return dmRecord(&d), nil
	}
	return nil, fmt.Errorf("unknown charge table %q", table)
}

func (r *gormRepository) FindOpenPurchase(ctx context.Context, payerID uint, kind string, resourceID uint) (*models.Purchase, error) {
	column := "product_id"
	if kind == models.PurchaseKindPPV {
		column = "post_id"
	}
	var p models.Purchase
	err := r.db.WithContext(ctx).
		Where("payer_id = ? AND kind = ? AND "+column+" = ? AND status IN ?", payerID, kind, resourceID,
			[]string{models.ChargeStatusPending, models.ChargeStatusCompleted}).
		Order("id DESC").
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormRepository) FindOpenSubscription(ctx context.Context, fanID, tierID uint) (*models.Subscription, error) {
	var s models.Subscription
	err := r.db.WithContext(ctx).
		Where("fan_id = ? AND tier_id = ? AND status IN ?", fanID, tierID,
			[]string{models.SubscriptionStatusPending, models.SubscriptionStatusActive}).
		Order("id DESC").
		First(&s).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *gormRepository) ListPurchasesByPayer(ctx context.Context, payerID uint) ([]models.Purchase, error) {
	var out []models.Purchase
	err := r.db.WithContext(ctx).Where("payer_id = ?", payerID).Order("id DESC").Find(&out).Error
	return out, err
}

// CompleteCharge moves PENDING -> COMPLETED and writes the fee split. It
// reports false when the row was not PENDING, leaving it untouched.
func (r *gormRepository) CompleteCharge(ctx context.Context, rec *ChargeRecord, e fees.Earnings, chargeID string, at time.Time) (bool, error) {
	m, err := chargeModel(rec.Table)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Model(m).
		Where("id = ? AND status IN ?", rec.ID, chargeTransitions.sources(models.ChargeStatusCompleted)).
		Updates(map[string]interface{}{
			"status":                         models.ChargeStatusCompleted,
			"provider_charge_id":             chargeID,
			"method_class":                   e.MethodClass,
			"commission_tier":                e.CommissionTier,
			"payment_fee":                    e.PaymentFee,
			"payment_fee_percentage":         e.PaymentFeePercentage,
			"platform_commission":            e.PlatformCommission,
			"platform_commission_percentage": e.PlatformCommissionPercentage,
			"creator_share_percentage":       e.CreatorSharePercentage,
			"net_earnings":                   e.NetEarnings,
			"failure_reason":                 "",
			"completed_at":                   at,
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) FailCharge(ctx context.Context, rec *ChargeRecord, reason string) (bool, error) {
	m, err := chargeModel(rec.Table)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Model(m).
		Where("id = ? AND status IN ?", rec.ID, chargeTransitions.sources(models.ChargeStatusFailed)).
		Updates(map[string]interface{}{
			"status":         models.ChargeStatusFailed,
			"failure_reason": truncateUTF8(reason, 255),
		})
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) MarkChargeRefunded(ctx context.Context, rec *ChargeRecord) (bool, error) {
	m, err := chargeModel(rec.Table)
	if err != nil {
		return false, err
	}
	res := r.db.WithContext(ctx).Model(m).
		Where("id = ? AND status IN ?", rec.ID, chargeTransitions.sources(models.ChargeStatusRefunded)).
		Update("status", models.ChargeStatusRefunded)
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) ChargeStatus(ctx context.Context, rec *ChargeRecord) (string, error) {
	m, err := chargeModel(rec.Table)
	if err != nil {
		return "", err
	}
	var status string
	err = r.db.WithContext(ctx).Model(m).Select("status").Where("id = ?", rec.ID).Scan(&status).Error
	return status, err
}

func (r *gormRepository) GetSubscription(ctx context.Context, id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.WithContext(ctx).First(&s, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *gormRepository) FindSubscriptionByProviderRef(ctx context.Context, ref string) (*models.Subscription, error) {
	if ref == "" {
		return nil, apperror.ErrNotFound
	}
	var s models.Subscription
	if err := r.db.WithContext(ctx).Where("provider_subscription_id = ?", ref).First(&s).Error; err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *gormRepository) ListSubscriptionsByFan(ctx context.Context, fanID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.WithContext(ctx).Where("fan_id = ?", fanID).Order("id DESC").Find(&subs).Error
	return subs, err
}

func (r *gormRepository) TransitionSubscription(ctx context.Context, id uint, from []string, to string, updates map[string]interface{}) (bool, error) {
	from, err := subscriptionTransitions.guard(to, from...)
	if err != nil {
		return false, err
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

// AbandonSubscription cancels a PENDING subscription and fails its PENDING payments.
func (r *gormRepository) AbandonSubscription(ctx context.Context, id uint, reason string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, err := subscriptionTransitions.guard(models.SubscriptionStatusCancelled, models.SubscriptionStatusPending)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.Subscription{}).
			Where("id = ? AND status IN ?", id, from).
			Updates(map[string]interface{}{"status": models.SubscriptionStatusCancelled, "cancelled_at": at}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Payment{}).
			Where("subscription_id = ? AND status IN ?", id, chargeTransitions.sources(models.ChargeStatusFailed)).
			Updates(map[string]interface{}{"status": models.ChargeStatusFailed, "failure_reason": truncateUTF8(reason, 255)}).Error
	})
}

func (r *gormRepository) SetDMExpiry(ctx context.Context, id uint, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.DMPayment{}).Where("id = ?", id).Update("expires_at", expiresAt).Error
}

const dmUsable = "status = ? AND messages_used < messages_allowed AND (expires_at IS NULL OR expires_at > ?)"

// ConsumeDMMessage spends one message from the oldest usable bundle. The
// guarded UPDATE keeps messages_used <= messages_allowed under concurrency;
// a lost race moves on to the next bundle.
func (r *gormRepository) ConsumeDMMessage(ctx context.Context, payerID, creatorID uint, now time.Time) (*models.DMPayment, error) {
	db := r.db.WithContext(ctx)
	for attempt := 0; attempt < 3; attempt++ {
		var dm models.DMPayment
		err := db.Where("payer_id = ? AND creator_id = ? AND "+dmUsable, payerID, creatorID, models.ChargeStatusCompleted, now).
			Order("id ASC").
			First(&dm).Error
		if err != nil {
			return nil, notFound(err)
		}
		res := db.Model(&models.DMPayment{}).
			Where("id = ? AND "+dmUsable, dm.ID, models.ChargeStatusCompleted, now).
			UpdateColumn("messages_used", gorm.Expr("messages_used + 1"))
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			dm.MessagesUsed++
			return &dm, nil
		}
	}
	return nil, apperror.ErrNotFound
}

func (r *gormRepository) ListActiveDMPayments(ctx context.Context, payerID, creatorID uint, now time.Time) ([]models.DMPayment, error) {
	var out []models.DMPayment
	err := r.db.WithContext(ctx).
		Where("payer_id = ? AND creator_id = ? AND "+dmUsable, payerID, creatorID, models.ChargeStatusCompleted, now).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// CreateTipIfNotExists inserts a tip once per (provider, provider_charge_id).
func (r *gormRepository) CreateTipIfNotExists(ctx context.Context, tip *models.Tip) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_charge_id"},
		},
		DoNothing: true,
	}).Create(tip)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

type kindTotal struct {
	Kind  string
	Total int64
}

func (r *gormRepository) sumNet(ctx context.Context, model interface{}, creatorID uint, currency string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(model).
		Select("COALESCE(SUM(net_earnings), 0)").
		Where("creator_id = ? AND status = ? AND currency = ?", creatorID, models.ChargeStatusCompleted, currency).
		Scan(&total).Error
	return total, err
}

// SumEarnings aggregates COMPLETED net earnings per category in one currency.
func (r *gormRepository) SumEarnings(ctx context.Context, creatorID uint, currency string) (Breakdown, error) {
	var b Breakdown
	var err error

	if b.Subscriptions, err = r.sumNet(ctx, &models.Payment{}, creatorID, currency); err != nil {
		return b, err
	}
	if b.DirectMessages, err = r.sumNet(ctx, &models.DMPayment{}, creatorID, currency); err != nil {
		return b, err
	}

	var rows []kindTotal
	err = r.db.WithContext(ctx).Model(&models.Purchase{}).
		Select("kind, COALESCE(SUM(net_earnings), 0) AS total").
		Where("creator_id = ? AND status = ? AND currency = ?", creatorID, models.ChargeStatusCompleted, currency).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return b, err
	}
	for _, row := range rows {
		switch row.Kind {
		case models.PurchaseKindProduct:
			b.Products = row.Total
		case models.PurchaseKindPPV:
			b.PayPerView = row.Total
		}
	}

	err = r.db.WithContext(ctx).Model(&models.Tip{}).
		Select("COALESCE(SUM(net_earnings), 0)").
		Where("creator_id = ? AND currency = ?", creatorID, currency).
		Scan(&b.Tips).Error
	return b, err
}

func (r *gormRepository) SumPayouts(ctx context.Context, creatorID uint, currency string, statuses []string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Payout{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("creator_id = ? AND currency = ? AND status IN ?", creatorID, currency, statuses).
		Scan(&total).Error
	return total, err
}

func (r *gormRepository) CreatePayout(ctx context.Context, p *models.Payout) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormRepository) GetPayout(ctx context.Context, id uint) (*models.Payout, error) {
	var p models.Payout
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *gormRepository) ListPayoutsByCreator(ctx context.Context, creatorID uint) ([]models.Payout, error) {
	var out []models.Payout
	err := r.db.WithContext(ctx).Where("creator_id = ?", creatorID).Order("id DESC").Find(&out).Error
	return out, err
}

func (r *gormRepository) ListPayoutsByStatus(ctx context.Context, status string) ([]models.Payout, error) {
	var out []models.Payout
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *gormRepository) TransitionPayout(ctx context.Context, id uint, from, to string, updates map[string]interface{}) (bool, error) {
	if _, err := payoutTransitions.guard(to, from); err != nil {
		return false, err
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) CreatePayoutMethod(ctx context.Context, m *models.PayoutMethod) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *gormRepository) GetPayoutMethod(ctx context.Context, id uint) (*models.PayoutMethod, error) {
	var m models.PayoutMethod
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *gormRepository) ListPayoutMethods(ctx context.Context, creatorID uint) ([]models.PayoutMethod, error) {
	var out []models.PayoutMethod
	err := r.db.WithContext(ctx).Where("creator_id = ?", creatorID).Order("is_default DESC, id ASC").Find(&out).Error
	return out, err
}

func (r *gormRepository) CountPayoutMethods(ctx context.Context, creatorID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.PayoutMethod{}).Where("creator_id = ?", creatorID).Count(&n).Error
	return n, err
}

func (r *gormRepository) SetDefaultPayoutMethod(ctx context.Context, creatorID, methodID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PayoutMethod{}).
			Where("creator_id = ? AND id <> ?", creatorID, methodID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		res := tx.Model(&models.PayoutMethod{}).
			Where("creator_id = ? AND id = ?", creatorID, methodID).
			Update("is_default", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.ErrNotFound
		}
		return nil
	})
}

func (r *gormRepository) CreateRefund(ctx context.Context, rf *models.Refund) error {
	return r.db.WithContext(ctx).Create(rf).Error
}

func (r *gormRepository) GetRefund(ctx context.Context, id uint) (*models.Refund, error) {
	var rf models.Refund
	if err := r.db.WithContext(ctx).First(&rf, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rf, nil
}

// FindRefund locates a refund by our reference first, then by the provider's refund id.
func (r *gormRepository) FindRefund(ctx context.Context, reference, providerRefundID string) (*models.Refund, error) {
	db := r.db.WithContext(ctx)
	var rf models.Refund
	if reference != "" {
		err := db.Where("reference = ?", reference).First(&rf).Error
		if err == nil {
			return &rf, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if providerRefundID != "" {
		if err := db.Where("provider_refund_id = ?", providerRefundID).First(&rf).Error; err != nil {
			return nil, notFound(err)
		}
		return &rf, nil
	}
	return nil, apperror.ErrNotFound
}

func (r *gormRepository) HasActiveRefund(ctx context.Context, sourceKind string, sourceID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("source_kind = ? AND source_id = ? AND status IN ?", sourceKind, sourceID, models.RefundActiveStatuses).
		Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) ListRefundsByStatus(ctx context.Context, status string) ([]models.Refund, error) {
	var out []models.Refund
	err := r.db.WithContext(ctx).Where("status = ?", status).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *gormRepository) TransitionRefund(ctx context.Context, id uint, from, to string, updates map[string]interface{}) (bool, error) {
	if _, err := refundTransitions.guard(to, from); err != nil {
		return false, err
	}
	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).Model(&models.Refund{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected > 0, res.Error
}

func (r *gormRepository) SetProviderRefundID(ctx context.Context, id uint, providerRefundID string) error {
	return r.db.WithContext(ctx).Model(&models.Refund{}).Where("id = ?", id).Update("provider_refund_id", providerRefundID).Error
}

func (r *gormRepository) WebhookEventExists(ctx context.Context, provider, eventID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Count(&n).Error
	return n > 0, err
}

// RecordWebhookEvent inserts the event row; the unique (provider,
// provider_event_id) index turns a concurrent duplicate into created=false.
func (r *gormRepository) RecordWebhookEvent(ctx context.Context, ev *webhook.Event, outcome string) (bool, error) {
	row := &models.WebhookEvent{
		Provider:        ev.Provider,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(ev.Raw),
		Outcome:         truncateUTF8(outcome, 255),
	}
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(row)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) PurgeWebhookEvents(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.WebhookEvent{})
	return res.RowsAffected, res.Error
}
