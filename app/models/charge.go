package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Charge status values shared by Payment, Purchase and DMPayment.
const (
	ChargeStatusPending   = "PENDING"
	ChargeStatusCompleted = "COMPLETED"
	ChargeStatusFailed    = "FAILED"
	ChargeStatusRefunded  = "REFUNDED"
)

// Charge holds the columns every provider-backed revenue record carries.
// It is embedded by Payment, Purchase and DMPayment; the composite index
// names are expanded per table.
//
// Once Status is COMPLETED the amount and fee columns are never written again.
type Charge struct {
	Reference                    string          `gorm:"type:varchar(64);not null;index:,unique,composite:reference" json:"reference"`
	PayerID                      uint            `gorm:"not null;index:,composite:payer" json:"payer_id"`
	CreatorID                    uint            `gorm:"not null;index:,composite:creator_status,priority:1" json:"creator_id"`
	GrossAmount                  int64           `gorm:"not null" json:"gross_amount"`
	Currency                     string          `gorm:"type:varchar(3);not null" json:"currency"`
	Provider                     string          `gorm:"type:varchar(20);not null;index:,unique,composite:provider_order,priority:1" json:"provider"`
	ProviderOrderID              *string         `gorm:"type:varchar(191);index:,unique,composite:provider_order,priority:2" json:"provider_order_id,omitempty"`
	ProviderChargeID             string          `gorm:"type:varchar(191);not null;default:''" json:"provider_charge_id,omitempty"`
	MethodClass                  string          `gorm:"type:varchar(32);not null;default:''" json:"method_class,omitempty"`
	CommissionTier               string          `gorm:"type:varchar(32);not null;default:''" json:"commission_tier,omitempty"`
	PaymentFee                   int64           `gorm:"not null;default:0" json:"payment_fee"`
	PaymentFeePercentage         decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"payment_fee_percentage"`
	PlatformCommission           int64           `gorm:"not null;default:0" json:"platform_commission"`
	PlatformCommissionPercentage decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"platform_commission_percentage"`
	CreatorSharePercentage       decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"creator_share_percentage"`
	NetEarnings                  int64           `gorm:"not null;default:0" json:"net_earnings"`
	Status                       string          `gorm:"type:varchar(16);not null;default:'PENDING';index:,composite:creator_status,priority:2" json:"status"`
	FailureReason                string          `gorm:"type:varchar(255);not null;default:''" json:"failure_reason,omitempty"`
	CompletedAt                  *time.Time      `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

func (c *Charge) IsPending() bool   { return c.Status == ChargeStatusPending }
func (c *Charge) IsCompleted() bool { return c.Status == ChargeStatusCompleted }

// OrderID returns the provider order id or an empty string before the order exists.
func (c *Charge) OrderID() string {
	if c.ProviderOrderID == nil {
		return ""
	}
	return *c.ProviderOrderID
}
