package billing

import (
	"time"

	"github.com/ManuelReschke/CreatorVault/app/models"
	"github.com/ManuelReschke/CreatorVault/internal/pkg/providers"
)

// ChargeKind is the product a charge pays for.
type ChargeKind string

const (
	KindSubscription ChargeKind = "subscription"
	KindProduct      ChargeKind = "product"
	KindPPV          ChargeKind = "ppv"
	KindDM           ChargeKind = "dm"
	KindTip          ChargeKind = "tip"
)

// Tables holding a models.Charge.
const (
	tablePayments   = "payments"
	tablePurchases  = "purchases"
	tableDMPayments = "dm_payments"
)

// ChargeRecord is a provider-backed revenue row loaded from any of the charge tables.
type ChargeRecord struct {
	Table          string
	ID             uint
	Kind           ChargeKind
	SubscriptionID uint
	ResourceID     uint
	ValidityDays   int
	models.Charge
}

func paymentRecord(p *models.Payment) *ChargeRecord {
	return &ChargeRecord{Table: tablePayments, ID: p.ID, Kind: KindSubscription, SubscriptionID: p.SubscriptionID, Charge: p.Charge}
}

func purchaseRecord(p *models.Purchase) *ChargeRecord {
	kind := KindProduct
	if p.Kind == models.PurchaseKindPPV {
		kind = KindPPV
	}
	return &ChargeRecord{Table: tablePurchases, ID: p.ID, Kind: kind, ResourceID: p.ResourceID(), Charge: p.Charge}
}

func dmRecord(d *models.DMPayment) *ChargeRecord {
	return &ChargeRecord{Table: tableDMPayments, ID: d.ID, Kind: KindDM, ValidityDays: d.ValidityDays, Charge: d.Charge}
}

// ChargeRequest starts a checkout. Amounts come from the catalog except for tips.
type ChargeRequest struct {
	Kind      ChargeKind `json:"kind" validate:"required,oneof=subscription product ppv dm tip"`
	Provider  string     `json:"provider" validate:"required"`
	PayerID   uint       `json:"-"`
	TierID    uint       `json:"tierId"`
	ProductID uint       `json:"productId"`
	PostID    uint       `json:"postId"`
	CreatorID uint       `json:"creatorId"`
	Amount    int64      `json:"amount"`
	Currency  string     `json:"currency" validate:"omitempty,len=3"`
	Message   string     `json:"message" validate:"max=500"`
	ReturnURL string     `json:"returnUrl" validate:"omitempty,url"`
}

type ChargeResult struct {
	Kind      ChargeKind       `json:"kind"`
	Reference string           `json:"reference"`
	RecordID  uint             `json:"recordId,omitempty"`
	Order     *providers.Order `json:"order"`
}

// VerifyResult reports the local status after a redirect verification.
// Pending is set when the provider outcome is not yet known.
type VerifyResult struct {
	Kind      ChargeKind `json:"kind"`
	Reference string     `json:"reference,omitempty"`
	RecordID  uint       `json:"recordId,omitempty"`
	Status    string     `json:"status"`
	Pending   bool       `json:"pending,omitempty"`
}

// Breakdown buckets completed net earnings per revenue category.
type Breakdown struct {
	Subscriptions  int64 `json:"subscriptions"`
	Products       int64 `json:"products"`
	PayPerView     int64 `json:"payPerView"`
	Tips           int64 `json:"tips"`
	DirectMessages int64 `json:"directMessages"`
}

func (b Breakdown) Total() int64 {
	return b.Subscriptions + b.Products + b.PayPerView + b.Tips + b.DirectMessages
}

// Balance is derived on every read; AvailableBalance == TotalEarnings - PaidOut.
type Balance struct {
	CreatorID        uint      `json:"creatorId"`
	Currency         string    `json:"currency"`
	TotalEarnings    int64     `json:"totalEarnings"`
	PaidOut          int64     `json:"paidOut"`
	AvailableBalance int64     `json:"availableBalance"`
	Breakdown        Breakdown `json:"breakdown"`
}

type PayoutRequest struct {
	CreatorID      uint  `json:"-"`
	Amount         int64 `json:"amount" validate:"required,gt=0"`
	PayoutMethodID uint  `json:"payoutMethodId" validate:"required"`
}

type PayoutMethodInput struct {
	CreatorID uint              `json:"-"`
	Type      string            `json:"type" validate:"required,oneof=bank upi"`
	Label     string            `json:"label" validate:"max=100"`
	Details   map[string]string `json:"details" validate:"required"`
}

// RefundRequest names exactly one of PurchaseID or PaymentID.
type RefundRequest struct {
	RequesterID uint   `json:"-"`
	PurchaseID  uint   `json:"purchaseId"`
	PaymentID   uint   `json:"paymentId"`
	Reason      string `json:"reason" validate:"required,min=10,max=2000"`
}

// ReconcileReport summarizes one refund reconciliation pass.
type ReconcileReport struct {
	Examined  int `json:"examined"`
	Completed int `json:"completed"`
	Reissued  int `json:"reissued"`
	Failed    int `json:"failed"`
}

// DownloadGrant is an issued download token.
type DownloadGrant struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
