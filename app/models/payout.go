package models

import "time"

const (
	PayoutStatusPending    = "PENDING"
	PayoutStatusProcessing = "PROCESSING"
	PayoutStatusPaid       = "PAID"
	PayoutStatusFailed     = "FAILED"
	PayoutStatusRejected   = "REJECTED"
)

// PayoutReservingStatuses are the states whose amount counts against the balance.
var PayoutReservingStatuses = []string{PayoutStatusPending, PayoutStatusProcessing, PayoutStatusPaid}

// Payout is a creator withdrawal request.
type Payout struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CreatorID      uint       `gorm:"not null;index:idx_payouts_creator_status,priority:1" json:"creator_id"`
	Amount         int64      `gorm:"not null" json:"amount"`
	Currency       string     `gorm:"type:varchar(3);not null" json:"currency"`
	PayoutMethodID uint       `gorm:"not null" json:"payout_method_id"`
	Status         string     `gorm:"type:varchar(16);not null;default:'PENDING';index:idx_payouts_creator_status,priority:2" json:"status"`
	ReviewNote     string     `gorm:"type:varchar(500);not null;default:''" json:"review_note,omitempty"`
	ExternalRef    string     `gorm:"type:varchar(191);not null;default:''" json:"external_ref,omitempty"`
	ProcessedAt    *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

const (
	PayoutMethodBank = "bank"
	PayoutMethodUPI  = "upi"
)

// PayoutMethod is a creator-owned payout destination.
type PayoutMethod struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CreatorID   uint      `gorm:"not null;index" json:"creator_id"`
	Type        string    `gorm:"type:varchar(16);not null" json:"type"`
	Label       string    `gorm:"type:varchar(100);not null;default:''" json:"label"`
	DetailsJSON string    `gorm:"type:text;not null" json:"-"`
	IsDefault   bool      `gorm:"default:false" json:"is_default"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
