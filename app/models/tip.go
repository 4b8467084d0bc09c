package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tip is a revenue record that exists only once the money has arrived.
// It has no pending state; the who-tipped-whom context travels in the
// provider order notes until then.
type Tip struct {
	ID                           uint            `gorm:"primaryKey" json:"id"`
	TipperID                     uint            `gorm:"not null;index" json:"tipper_id"`
	CreatorID                    uint            `gorm:"not null;index" json:"creator_id"`
	Amount                       int64           `gorm:"not null" json:"amount"`
	Currency                     string          `gorm:"type:varchar(3);not null" json:"currency"`
	Provider                     string          `gorm:"type:varchar(20);not null;index:ux_tips_provider_charge,unique,priority:1" json:"provider"`
	ProviderOrderID              string          `gorm:"type:varchar(191);not null;default:''" json:"provider_order_id"`
	ProviderChargeID             string          `gorm:"type:varchar(191);not null;index:ux_tips_provider_charge,unique,priority:2" json:"provider_charge_id"`
	PaymentFee                   int64           `gorm:"not null;default:0" json:"payment_fee"`
	PaymentFeePercentage         decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"payment_fee_percentage"`
	PlatformCommission           int64           `gorm:"not null;default:0" json:"platform_commission"`
	PlatformCommissionPercentage decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"platform_commission_percentage"`
	NetEarnings                  int64           `gorm:"not null" json:"net_earnings"`
	Message                      string          `gorm:"type:varchar(500);not null;default:''" json:"message,omitempty"`
	CreatedAt                    time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
